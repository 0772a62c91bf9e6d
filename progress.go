package pummel

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Reporter formats per-attempt and per-job status lines. Success lines go
// to the display writer and overwrite each other; failures and the summary
// go to the logger.
type Reporter struct {
	mu  sync.Mutex
	out io.Writer
	log zerolog.Logger
}

// NewReporter returns a Reporter writing progress to out. A nil out
// discards progress lines.
func NewReporter(out io.Writer, log zerolog.Logger) *Reporter {
	if out == nil {
		out = io.Discard
	}
	return &Reporter{out: out, log: log}
}

// Sent reports a successful attempt. index is 1-based.
func (r *Reporter) Sent(index, total int, eta time.Duration, meta Metadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "%d/%d [ETA: %v] - Message sent: %v\r", index, total, eta, meta)
}

// Failed reports a failed attempt. index is 1-based.
func (r *Reporter) Failed(index, total int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log.Error().
		Int("attempt", index).
		Msgf("%d/%d Failed to send message: %v", index, total, err)
}

// Summary reports the end of a job.
func (r *Reporter) Summary(s *Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.Attempts > 0 {
		// Move past the progress line left without a newline.
		fmt.Fprintln(r.out)
	}
	r.log.Info().
		Int("succeeded", s.Succeeded).
		Int("failed", s.Failed).
		Dur("avg", s.Average).
		Dur("p50", s.Percentile(50)).
		Dur("p99", s.Percentile(99)).
		Msgf("Sent %d/%d messages in %v", s.Attempts, s.Attempts, s.Elapsed)
}
