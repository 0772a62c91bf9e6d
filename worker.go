package pummel

import (
	"context"
	"fmt"
	"time"
)

// attempt is one iteration of a job, run while holding permit.
type attempt struct {
	index int // 0-based
	job   Job
}

func (d *Dispatcher) runAttempt(a attempt, permit *Permit, tracker *Tracker, res *results) {
	defer permit.Release()
	defer func() {
		if r := recover(); r != nil {
			res.failed()
			d.fault(a, r)
		}
	}()

	start := time.Now()
	meta, err := d.send(a.job)
	elapsed := time.Since(start)

	avg, count := tracker.Record(elapsed)
	eta := ETA(avg, count, a.job.Iterations)
	d.observer.AttemptDone(err == nil, elapsed)

	// Outcomes are counted last so a fault while reporting counts once.
	if err != nil {
		d.reporter.Failed(a.index+1, a.job.Iterations, err)
		res.failed()
		return
	}
	d.reporter.Sent(a.index+1, a.job.Iterations, eta, meta)
	res.succeeded()
}

// fault reports a worker that panicked outside the send primitive. A
// reporter that faults again is ignored.
func (d *Dispatcher) fault(a attempt, r any) {
	defer func() { _ = recover() }()
	d.reporter.Failed(a.index+1, a.job.Iterations, fmt.Errorf("%w: %v", ErrAttemptPanicked, r))
}

func (d *Dispatcher) send(job Job) (meta Metadata, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrAttemptPanicked, r)
		}
	}()

	ctx := context.Background()
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}
	return d.sender.Send(ctx, job.message())
}
