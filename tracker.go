package pummel

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	histogramMin     = 1 // microseconds
	histogramMax     = int64(10 * time.Minute / time.Microsecond)
	histogramSigFigs = 3
)

// Tracker accumulates per-attempt durations shared by every worker of a
// job. Record is the only mutation point and is serialized.
type Tracker struct {
	mu        sync.Mutex
	samples   []time.Duration
	sum       time.Duration
	avg       time.Duration
	histogram *hdrhistogram.Histogram
}

// NewTracker sizes the sample set for total attempts.
func NewTracker(total int) *Tracker {
	if total < 0 {
		total = 0
	}
	return &Tracker{
		samples:   make([]time.Duration, 0, total),
		histogram: hdrhistogram.New(histogramMin, histogramMax, histogramSigFigs),
	}
}

// Record appends d to the samples and returns the updated running average
// together with the number of samples seen so far.
func (t *Tracker) Record(d time.Duration) (time.Duration, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples = append(t.samples, d)
	t.sum += d
	t.avg = t.sum / time.Duration(len(t.samples))

	us := int64(d / time.Microsecond)
	if us < histogramMin {
		us = histogramMin
	}
	if us > histogramMax {
		us = histogramMax
	}
	// In range after clamping, the error cannot fire.
	_ = t.histogram.RecordValue(us)

	return t.avg, len(t.samples)
}

// Average returns the current running average.
func (t *Tracker) Average() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.avg
}

// Count returns the number of recorded samples.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}

// Samples returns a copy of the recorded durations in completion order.
func (t *Tracker) Samples() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]time.Duration, len(t.samples))
	copy(out, t.samples)
	return out
}

// Histogram returns a copy of the latency histogram, in microseconds.
func (t *Tracker) Histogram() *hdrhistogram.Histogram {
	t.mu.Lock()
	defer t.mu.Unlock()
	return hdrhistogram.Import(t.histogram.Export())
}

// ETA projects the time left for total attempts when count of them have
// completed at an average of avg each.
func ETA(avg time.Duration, count, total int) time.Duration {
	if count >= total {
		return 0
	}
	return avg * time.Duration(total-count)
}
