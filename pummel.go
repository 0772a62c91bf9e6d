// Package pummel sends one payload to a message broker many times with a
// bounded number of sends in flight, reporting progress and an ETA derived
// from the running average send latency.
package pummel

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrListenUnsupported is returned by listeners for brokers whose
	// consumption path does not exist yet.
	ErrListenUnsupported = errors.New("pummel: listen is not supported yet")

	// ErrAttemptPanicked marks an attempt that panicked while sending or
	// reporting.
	ErrAttemptPanicked = errors.New("pummel: attempt panicked")
)

// Message is what a single attempt hands to the send primitive.
type Message struct {
	Topic   string
	Key     string
	Payload []byte
}

// Metadata describes where the broker stored a message. Fields a broker
// does not report are left at their zero value.
type Metadata struct {
	Partition int32
	Offset    int64
	Detail    string
}

func (m Metadata) String() string {
	if m.Detail == "" {
		return fmt.Sprintf("(%d, %d)", m.Partition, m.Offset)
	}
	return fmt.Sprintf("(%d, %d) %s", m.Partition, m.Offset, m.Detail)
}

// Sender is the send primitive. Implementations must be safe for
// concurrent use; the per-send timeout travels as the context deadline.
type Sender interface {
	Send(ctx context.Context, msg Message) (Metadata, error)
}

// Requester is a Sender bound to a broker connection.
type Requester interface {
	Sender

	// Setup prepares the Requester for sending.
	Setup() error

	// Teardown is called once the job is over.
	Teardown() error
}

// RequesterFactory creates the Requester used by a job.
type RequesterFactory interface {
	GetRequester() Requester
}

// Listener consumes messages from a topic.
type Listener interface {
	Listen(ctx context.Context, topic, groupID string) error
}

// UnsupportedListener is the only Listener for now.
type UnsupportedListener struct{}

func (UnsupportedListener) Listen(context.Context, string, string) error {
	return ErrListenUnsupported
}

// Observer is notified about attempt lifecycle events.
type Observer interface {
	SlotAcquired()
	AttemptDone(ok bool, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) SlotAcquired()                   {}
func (nopObserver) AttemptDone(bool, time.Duration) {}
