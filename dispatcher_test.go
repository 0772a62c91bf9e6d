package pummel

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeSender counts calls and tracks the peak number of concurrent sends.
type fakeSender struct {
	delay time.Duration
	fn    func(n int64) (Metadata, error)

	calls int64
	cur   int64
	peak  int64

	mu   sync.Mutex
	seen []Message
}

func (f *fakeSender) Send(ctx context.Context, msg Message) (Metadata, error) {
	n := atomic.AddInt64(&f.calls, 1)
	c := atomic.AddInt64(&f.cur, 1)
	defer atomic.AddInt64(&f.cur, -1)
	for {
		p := atomic.LoadInt64(&f.peak)
		if c <= p || atomic.CompareAndSwapInt64(&f.peak, p, c) {
			break
		}
	}

	f.mu.Lock()
	f.seen = append(f.seen, msg)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Metadata{}, ctx.Err()
		}
	}
	if f.fn != nil {
		return f.fn(n)
	}
	return Metadata{Offset: n}, nil
}

type countingObserver struct {
	acquired int64
	ok, fail int64
}

func (o *countingObserver) SlotAcquired() { atomic.AddInt64(&o.acquired, 1) }
func (o *countingObserver) AttemptDone(ok bool, _ time.Duration) {
	if ok {
		atomic.AddInt64(&o.ok, 1)
	} else {
		atomic.AddInt64(&o.fail, 1)
	}
}

// attemptSender fails the attempt whose 1-based position in the launch
// order matches failAt. Launch order is fixed by the dispatcher loop, and
// with capacity 1 sends happen in that order.
type attemptSender struct {
	failAt int64
	calls  int64
}

func (s *attemptSender) Send(context.Context, Message) (Metadata, error) {
	n := atomic.AddInt64(&s.calls, 1)
	if n == s.failAt {
		return Metadata{}, errors.New("broker rejected message")
	}
	return Metadata{Partition: 0, Offset: n}, nil
}

func newTestConfig(progress, logs *bytes.Buffer, concurrency int) Config {
	return Config{
		Concurrency: concurrency,
		Progress:    progress,
		Logger:      zerolog.New(logs),
	}
}

func TestDispatcherSendsExactlyN(t *testing.T) {
	for _, n := range []int{1, 7, 64} {
		sender := &fakeSender{}
		obs := &countingObserver{}
		var progress, logs bytes.Buffer
		cfg := newTestConfig(&progress, &logs, 4)
		cfg.Observer = obs

		s := NewDispatcher(sender, cfg).Run(Job{Topic: "t", Key: "k", Payload: []byte("p"), Iterations: n})

		if got := atomic.LoadInt64(&sender.calls); got != int64(n) {
			t.Fatalf("n=%d: expected %d sends, got %d", n, n, got)
		}
		if s.Attempts != n || s.Succeeded != n || s.Failed != 0 {
			t.Fatalf("n=%d: unexpected summary %+v", n, s)
		}
		if got := s.Histogram.TotalCount(); got != int64(n) {
			t.Fatalf("n=%d: expected %d samples, got %d", n, n, got)
		}
		if obs.acquired != int64(n) || obs.ok != int64(n) {
			t.Fatalf("n=%d: observer saw %d acquires, %d ok", n, obs.acquired, obs.ok)
		}
		if got := strings.Count(progress.String(), "Message sent:"); got != n {
			t.Fatalf("n=%d: expected %d progress lines, got %d", n, n, got)
		}
	}
}

func TestDispatcherPassesJobToSender(t *testing.T) {
	sender := &fakeSender{}
	var progress, logs bytes.Buffer
	NewDispatcher(sender, newTestConfig(&progress, &logs, 2)).
		Run(Job{Topic: "orders", Key: "k1", Payload: []byte("hello"), Iterations: 3})

	for _, m := range sender.seen {
		if m.Topic != "orders" || m.Key != "k1" || string(m.Payload) != "hello" {
			t.Fatalf("unexpected message %+v", m)
		}
	}
}

func TestDispatcherBoundsInFlight(t *testing.T) {
	sender := &fakeSender{delay: 5 * time.Millisecond}
	var progress, logs bytes.Buffer
	NewDispatcher(sender, newTestConfig(&progress, &logs, 3)).
		Run(Job{Topic: "t", Payload: []byte("p"), Iterations: 40})

	if sender.peak > 3 {
		t.Fatalf("peak in-flight %d exceeds capacity 3", sender.peak)
	}
	if sender.peak < 2 {
		t.Fatalf("expected sends to overlap, peak was %d", sender.peak)
	}
}

func TestDispatcherConstantLatencyScenario(t *testing.T) {
	const T = 40 * time.Millisecond
	sender := &fakeSender{delay: T}
	var progress, logs bytes.Buffer

	s := NewDispatcher(sender, newTestConfig(&progress, &logs, 2)).
		Run(Job{Topic: "t", Payload: []byte("p"), Iterations: 5})

	lines := strings.Split(strings.TrimSpace(progress.String()), "\r")
	if len(lines) != 5 {
		t.Fatalf("expected 5 progress lines, got %d: %q", len(lines), progress.String())
	}
	if !strings.Contains(progress.String(), "[ETA: 0s]") {
		t.Fatalf("expected a final ETA of 0s in %q", progress.String())
	}

	// ceil(5/2) rounds of T.
	if s.Elapsed < 3*T {
		t.Fatalf("elapsed %v shorter than 3 rounds of %v", s.Elapsed, T)
	}
	if s.Elapsed > 3*T+T*5 {
		t.Fatalf("elapsed %v much longer than expected", s.Elapsed)
	}
	if s.Average < T || s.Average > 2*T {
		t.Fatalf("average %v should be about %v", s.Average, T)
	}
	if !strings.Contains(logs.String(), "Sent 5/5 messages in") {
		t.Fatalf("missing summary in logs: %s", logs.String())
	}
}

func TestDispatcherFailureDoesNotAbort(t *testing.T) {
	sender := &attemptSender{failAt: 2}
	obs := &countingObserver{}
	var progress, logs bytes.Buffer
	cfg := newTestConfig(&progress, &logs, 1)
	cfg.Observer = obs

	s := NewDispatcher(sender, cfg).Run(Job{Topic: "t", Payload: []byte("p"), Iterations: 3})

	if s.Histogram.TotalCount() != 3 {
		t.Fatalf("failures must be recorded too, got %d samples", s.Histogram.TotalCount())
	}
	if s.Succeeded != 2 || s.Failed != 1 {
		t.Fatalf("unexpected outcome counts %+v", s)
	}
	if obs.fail != 1 || obs.ok != 2 {
		t.Fatalf("observer saw ok=%d fail=%d", obs.ok, obs.fail)
	}
	out := logs.String()
	if strings.Count(out, "Failed to send message") != 1 {
		t.Fatalf("expected exactly one failure line: %s", out)
	}
	if !strings.Contains(out, "2/3 Failed to send message: broker rejected message") {
		t.Fatalf("failure line should reference attempt 2: %s", out)
	}
	if !strings.Contains(out, "Sent 3/3 messages in") {
		t.Fatalf("summary should report all attempts: %s", out)
	}
	if got := strings.Count(progress.String(), "Message sent:"); got != 2 {
		t.Fatalf("expected 2 success lines, got %d", got)
	}
}

func TestDispatcherRecoversPanickingSender(t *testing.T) {
	sender := &fakeSender{fn: func(n int64) (Metadata, error) {
		if n == 1 {
			panic("boom")
		}
		return Metadata{Offset: n}, nil
	}}
	var progress, logs bytes.Buffer

	s := NewDispatcher(sender, newTestConfig(&progress, &logs, 1)).
		Run(Job{Topic: "t", Payload: []byte("p"), Iterations: 3})

	if s.Failed != 1 || s.Succeeded != 2 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.Histogram.TotalCount() != 3 {
		t.Fatalf("panicking attempt must still be recorded")
	}
	if !strings.Contains(logs.String(), ErrAttemptPanicked.Error()) {
		t.Fatalf("expected panic to be logged: %s", logs.String())
	}
}

type faultyObserver struct{}

func (faultyObserver) SlotAcquired()                   {}
func (faultyObserver) AttemptDone(bool, time.Duration) { panic("observer fault") }

// faultyWriter panics on success lines and accepts everything else.
type faultyWriter struct{}

func (faultyWriter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("Message sent")) {
		panic("display fault")
	}
	return len(p), nil
}

func TestDispatcherSurvivesWorkerFaults(t *testing.T) {
	cases := []struct {
		name  string
		setup func(cfg *Config)
		fault string
	}{
		{"observer", func(cfg *Config) { cfg.Observer = faultyObserver{} }, "observer fault"},
		{"progress writer", func(cfg *Config) { cfg.Progress = faultyWriter{} }, "display fault"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			sender := &fakeSender{}
			var progress, logs bytes.Buffer
			cfg := newTestConfig(&progress, &logs, 2)
			c.setup(&cfg)

			s := NewDispatcher(sender, cfg).Run(Job{Topic: "t", Payload: []byte("p"), Iterations: 3})

			if sender.calls != 3 {
				t.Fatalf("expected 3 sends, got %d", sender.calls)
			}
			if s.Failed != 3 || s.Succeeded != 0 {
				t.Fatalf("faulted attempts must count as failures: %+v", s)
			}
			out := logs.String()
			if got := strings.Count(out, ErrAttemptPanicked.Error()+": "+c.fault); got != 3 {
				t.Fatalf("expected 3 fault lines, got %d: %s", got, out)
			}
			if !strings.Contains(out, "Sent 3/3 messages in") {
				t.Fatalf("summary missing: %s", out)
			}
		})
	}
}

func TestDispatcherZeroIterations(t *testing.T) {
	sender := &fakeSender{}
	var progress, logs bytes.Buffer

	s := NewDispatcher(sender, newTestConfig(&progress, &logs, 2)).
		Run(Job{Topic: "t", Payload: []byte("p")})

	if sender.calls != 0 {
		t.Fatalf("expected no sends, got %d", sender.calls)
	}
	if s.Elapsed != 0 || s.Attempts != 0 {
		t.Fatalf("expected empty summary, got %+v", s)
	}
	if progress.Len() != 0 {
		t.Fatalf("expected no progress output, got %q", progress.String())
	}
	if !strings.Contains(logs.String(), "Sent 0/0 messages in 0s") {
		t.Fatalf("missing summary: %s", logs.String())
	}
}

func TestDispatcherTimeoutReachesSender(t *testing.T) {
	sender := &fakeSender{delay: time.Second}
	var progress, logs bytes.Buffer

	job := Job{Topic: "t", Payload: []byte("p"), Iterations: 2, Timeout: 10 * time.Millisecond}
	s := NewDispatcher(sender, newTestConfig(&progress, &logs, 2)).Run(job)

	if s.Failed != 2 {
		t.Fatalf("expected both attempts to time out, got %+v", s)
	}
	if !strings.Contains(logs.String(), context.DeadlineExceeded.Error()) {
		t.Fatalf("expected deadline error in logs: %s", logs.String())
	}
}

func TestDispatcherPacesLaunches(t *testing.T) {
	sender := &fakeSender{}
	var progress, logs bytes.Buffer
	cfg := newTestConfig(&progress, &logs, 10)
	cfg.Rate = 50
	cfg.Burst = 1

	s := NewDispatcher(sender, cfg).Run(Job{Topic: "t", Payload: []byte("p"), Iterations: 6})

	// First token is free, the remaining five arrive every 20ms.
	if s.Elapsed < 80*time.Millisecond {
		t.Fatalf("launches were not paced, elapsed %v", s.Elapsed)
	}
}

func TestProduceMissingPayloadAbortsBeforeDispatch(t *testing.T) {
	sender := &fakeSender{}
	var progress, logs bytes.Buffer
	path := filepath.Join(t.TempDir(), "missing.json")

	s, err := Produce(path, "t", "", 5, 0, sender, newTestConfig(&progress, &logs, 2))
	if err == nil {
		t.Fatalf("expected an error")
	}
	if !errors.Is(err, ErrPayloadUnreadable) || !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("unexpected error %v", err)
	}
	if s != nil {
		t.Fatalf("expected no summary")
	}
	if sender.calls != 0 || progress.Len() != 0 || logs.Len() != 0 {
		t.Fatalf("nothing should run: calls=%d progress=%q logs=%q", sender.calls, progress.String(), logs.String())
	}
}

func TestProduceReadsPayloadAndDefaultsKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.json")
	if err := os.WriteFile(path, []byte(`{"id":1}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	sender := &fakeSender{}
	var progress, logs bytes.Buffer

	s, err := Produce(path, "events", "", 2, 0, sender, newTestConfig(&progress, &logs, 2))
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if s.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", s.Attempts)
	}
	for _, m := range sender.seen {
		if m.Key != DefaultKey || string(m.Payload) != `{"id":1}` {
			t.Fatalf("unexpected message %+v", m)
		}
	}
}

func TestNewJobRejectsNegativeIterations(t *testing.T) {
	if _, err := NewJob("whatever", "t", "k", -1); !errors.Is(err, ErrInvalidIterations) {
		t.Fatalf("expected ErrInvalidIterations, got %v", err)
	}
}

func TestSummaryLatencyDistribution(t *testing.T) {
	tr := NewTracker(100)
	for i := 1; i <= 100; i++ {
		tr.Record(time.Duration(i) * time.Millisecond)
	}
	s := &Summary{Attempts: 100, Succeeded: 100, Elapsed: time.Second, Average: tr.Average(), Histogram: tr.Histogram()}

	if p := s.Percentile(50); p < 49*time.Millisecond || p > 51*time.Millisecond {
		t.Fatalf("p50 = %v", p)
	}
	if s.Throughput() != 100 {
		t.Fatalf("throughput = %v", s.Throughput())
	}

	file := filepath.Join(t.TempDir(), "dist.txt")
	if err := s.GenerateLatencyDistribution(Percentiles{50, 99}, file); err != nil {
		t.Fatalf("GenerateLatencyDistribution: %v", err)
	}
	b, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %q", string(b))
	}
	if !strings.Contains(lines[0], "Percentile") {
		t.Fatalf("missing header: %q", lines[0])
	}
}

func TestUnsupportedListener(t *testing.T) {
	var l Listener = UnsupportedListener{}
	if err := l.Listen(context.Background(), "t", "g"); !errors.Is(err, ErrListenUnsupported) {
		t.Fatalf("expected ErrListenUnsupported, got %v", err)
	}
}

func TestMetadataString(t *testing.T) {
	if got := (Metadata{Partition: 2, Offset: 41}).String(); got != "(2, 41)" {
		t.Fatalf("got %q", got)
	}
	if got := (Metadata{Offset: 7, Detail: "stream=s"}).String(); got != "(0, 7) stream=s" {
		t.Fatalf("got %q", got)
	}
}
