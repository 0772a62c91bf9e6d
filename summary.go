package pummel

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Percentiles is a list of percentiles to include in a latency
// distribution, e.g. 50, 99.9.
type Percentiles []float64

// DefaultPercentiles is used when GenerateLatencyDistribution gets nil.
var DefaultPercentiles = Percentiles{
	10, 25, 50, 75, 90, 95, 99, 99.9, 99.99, 99.999, 100,
}

// Summary is the outcome of one job.
type Summary struct {
	Attempts  int
	Succeeded int
	Failed    int
	Elapsed   time.Duration
	Average   time.Duration

	// Histogram holds every attempt's latency in microseconds.
	Histogram *hdrhistogram.Histogram
}

// Percentile returns the latency at percentile p, or zero without samples.
func (s *Summary) Percentile(p float64) time.Duration {
	if s.Histogram == nil || s.Histogram.TotalCount() == 0 {
		return 0
	}
	return time.Duration(s.Histogram.ValueAtQuantile(p)) * time.Microsecond
}

// Throughput returns completed attempts per second.
func (s *Summary) Throughput() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Attempts) / s.Elapsed.Seconds()
}

// String returns a stringified version of the Summary.
func (s *Summary) String() string {
	return fmt.Sprintf(
		"{Attempts: %d, Succeeded: %d, Failed: %d, Elapsed: %s, Throughput: %.2f/s, Avg: %s, P50: %s, P99: %s, Max: %s}",
		s.Attempts, s.Succeeded, s.Failed, s.Elapsed, s.Throughput(),
		s.Average, s.Percentile(50), s.Percentile(99), s.Percentile(100),
	)
}

// GenerateLatencyDistribution writes the latency at each percentile to
// file, in milliseconds. A nil percentiles uses DefaultPercentiles.
func (s *Summary) GenerateLatencyDistribution(percentiles Percentiles, file string) error {
	if percentiles == nil {
		percentiles = DefaultPercentiles
	}

	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := fmt.Fprintf(w, "%12s %12s\n", "Value(ms)", "Percentile"); err != nil {
		return err
	}
	for _, p := range percentiles {
		ms := float64(s.Percentile(p)) / float64(time.Millisecond)
		if _, err := fmt.Fprintf(w, "%12.6f %12.6f\n", ms, p/100); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}
