package requester

import (
	"context"
	"sync"

	lift "github.com/liftbridge-io/go-liftbridge/v2"

	"github.com/ssd532/pummel"
)

// LiftbridgeRequesterFactory implements RequesterFactory by creating a
// Requester which publishes messages to a Liftbridge stream and waits for
// the leader's ack. Streams are created on first use unless the
// liftbridge.create.streams property is "false".
type LiftbridgeRequesterFactory struct {
	URLs  []string
	Props map[string]string
}

// GetRequester returns a new Requester.
func (l *LiftbridgeRequesterFactory) GetRequester() pummel.Requester {
	return &liftbridgeRequester{
		urls:          l.URLs,
		createStreams: prop(l.Props, "liftbridge.create.streams", "true") != "false",
	}
}

type liftbridgeRequester struct {
	urls          []string
	createStreams bool
	client        lift.Client

	mu      sync.Mutex
	created map[string]bool
}

// Setup prepares the Requester for sending.
func (l *liftbridgeRequester) Setup() error {
	client, err := lift.Connect(l.urls)
	if err != nil {
		return err
	}
	l.client = client
	l.created = map[string]bool{}
	return nil
}

// ensureStream creates the stream for topic once, tolerating streams that
// already exist.
func (l *liftbridgeRequester) ensureStream(ctx context.Context, topic string) error {
	if !l.createStreams {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.created[topic] {
		return nil
	}
	if err := l.client.CreateStream(ctx, topic, topic); err != nil && err != lift.ErrStreamExists {
		return err
	}
	l.created[topic] = true
	return nil
}

// Send publishes msg to the stream named by its topic.
func (l *liftbridgeRequester) Send(ctx context.Context, msg pummel.Message) (pummel.Metadata, error) {
	if err := l.ensureStream(ctx, msg.Topic); err != nil {
		return pummel.Metadata{}, err
	}
	ack, err := l.client.Publish(ctx, msg.Topic, msg.Payload,
		lift.Key([]byte(msg.Key)), lift.AckPolicyLeader())
	if err != nil {
		return pummel.Metadata{}, err
	}
	meta := pummel.Metadata{Detail: "stream=" + msg.Topic}
	if ack != nil {
		meta.Offset = ack.Offset()
	}
	return meta, nil
}

// Teardown is called upon job completion.
func (l *liftbridgeRequester) Teardown() error {
	if l.client == nil {
		return nil
	}
	err := l.client.Close()
	l.client = nil
	return err
}
