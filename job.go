package pummel

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// DefaultKey is the message key used when none is given.
const DefaultKey = "test"

var (
	// ErrPayloadUnreadable is returned when the payload file cannot be read.
	ErrPayloadUnreadable = errors.New("pummel: payload unreadable")

	// ErrInvalidIterations is returned for a negative iteration count.
	ErrInvalidIterations = errors.New("pummel: iterations must be >= 0")
)

// Job describes one dispatch run. It is never mutated once built.
type Job struct {
	Topic      string
	Key        string
	Payload    []byte
	Iterations int

	// Timeout bounds every single send. Zero leaves it to the sender.
	Timeout time.Duration
}

// NewJob reads the whole payload file and builds a Job around it.
func NewJob(path, topic, key string, iterations int) (Job, error) {
	if iterations < 0 {
		return Job{}, fmt.Errorf("%w: got %d", ErrInvalidIterations, iterations)
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return Job{}, fmt.Errorf("%w: %s: %w", ErrPayloadUnreadable, path, err)
	}
	if key == "" {
		key = DefaultKey
	}
	return Job{
		Topic:      topic,
		Key:        key,
		Payload:    payload,
		Iterations: iterations,
	}, nil
}

func (j Job) message() Message {
	return Message{Topic: j.Topic, Key: j.Key, Payload: j.Payload}
}

// Produce reads the payload at path and dispatches it. A read failure is
// returned before any attempt starts.
func Produce(path, topic, key string, iterations int, timeout time.Duration, sender Sender, cfg Config) (*Summary, error) {
	job, err := NewJob(path, topic, key, iterations)
	if err != nil {
		return nil, err
	}
	job.Timeout = timeout
	return NewDispatcher(sender, cfg).Run(job), nil
}
