package pummel

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Config tunes a Dispatcher. The zero value is usable.
type Config struct {
	// Concurrency caps sends in flight. Defaults to DefaultConcurrency.
	Concurrency int

	// Rate limits how many attempts start per second. Zero means unpaced.
	Rate float64

	// Burst is the number of attempts allowed to start at once when Rate
	// is set. Defaults to 1.
	Burst int

	// Progress receives the per-attempt success lines.
	Progress io.Writer

	Logger   zerolog.Logger
	Observer Observer
}

// Dispatcher runs jobs against a Sender.
type Dispatcher struct {
	sender      Sender
	concurrency int
	pacer       *rate.Limiter
	reporter    *Reporter
	observer    Observer
	log         zerolog.Logger
}

// NewDispatcher returns a Dispatcher sending through sender.
func NewDispatcher(sender Sender, cfg Config) *Dispatcher {
	d := &Dispatcher{
		sender:      sender,
		concurrency: cfg.Concurrency,
		reporter:    NewReporter(cfg.Progress, cfg.Logger),
		observer:    cfg.Observer,
		log:         cfg.Logger,
	}
	if d.concurrency <= 0 {
		d.concurrency = DefaultConcurrency
	}
	if d.observer == nil {
		d.observer = nopObserver{}
	}
	if cfg.Rate > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		d.pacer = rate.NewLimiter(rate.Limit(cfg.Rate), burst)
	}
	return d
}

// Run sends job.Payload job.Iterations times and blocks until every
// attempt has completed. Failed attempts are reported and never retried.
func (d *Dispatcher) Run(job Job) *Summary {
	if job.Iterations <= 0 {
		s := &Summary{}
		d.reporter.Summary(s)
		return s
	}

	limiter := NewLimiter(d.concurrency)
	tracker := NewTracker(job.Iterations)
	res := &results{}

	d.log.Debug().
		Int("iterations", job.Iterations).
		Int("concurrency", limiter.Capacity()).
		Str("topic", job.Topic).
		Int("payload_bytes", len(job.Payload)).
		Msg("dispatching")

	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < job.Iterations; i++ {
		if d.pacer != nil {
			// Background never cancels and one token never exceeds burst.
			_ = d.pacer.Wait(context.Background())
		}
		// At most limiter.Capacity() attempts exist at once.
		permit := limiter.Acquire()
		d.observer.SlotAcquired()

		wg.Add(1)
		go func(a attempt) {
			defer wg.Done()
			d.runAttempt(a, permit, tracker, res)
		}(attempt{index: i, job: job})
	}
	wg.Wait()

	s := &Summary{
		Attempts:  job.Iterations,
		Succeeded: int(atomic.LoadInt64(&res.ok)),
		Failed:    int(atomic.LoadInt64(&res.fail)),
		Elapsed:   time.Since(start),
		Average:   tracker.Average(),
		Histogram: tracker.Histogram(),
	}
	d.reporter.Summary(s)
	return s
}

type results struct {
	ok   int64
	fail int64
}

func (r *results) succeeded() { atomic.AddInt64(&r.ok, 1) }
func (r *results) failed()    { atomic.AddInt64(&r.fail, 1) }
