package requester

import (
	"context"

	"github.com/nsqio/go-nsq"

	"github.com/ssd532/pummel"
)

// NSQRequesterFactory implements RequesterFactory by creating a Requester
// which publishes messages to the first nsqd address.
type NSQRequesterFactory struct {
	URLs  []string
	Props map[string]string
}

// GetRequester returns a new Requester.
func (n *NSQRequesterFactory) GetRequester() pummel.Requester {
	return &nsqRequester{addr: n.URLs[0]}
}

type nsqRequester struct {
	addr     string
	producer *nsq.Producer
}

// Setup prepares the Requester for sending.
func (n *nsqRequester) Setup() error {
	producer, err := nsq.NewProducer(n.addr, nsq.NewConfig())
	if err != nil {
		return err
	}
	if err := producer.Ping(); err != nil {
		producer.Stop()
		return err
	}
	n.producer = producer
	return nil
}

// Send publishes msg synchronously. NSQ messages carry no key.
func (n *nsqRequester) Send(ctx context.Context, msg pummel.Message) (pummel.Metadata, error) {
	return withContext(ctx, func() (pummel.Metadata, error) {
		if err := n.producer.Publish(msg.Topic, msg.Payload); err != nil {
			return pummel.Metadata{}, err
		}
		return pummel.Metadata{Detail: "topic=" + msg.Topic}, nil
	})
}

// Teardown is called upon job completion.
func (n *nsqRequester) Teardown() error {
	if n.producer != nil {
		n.producer.Stop()
		n.producer = nil
	}
	return nil
}
