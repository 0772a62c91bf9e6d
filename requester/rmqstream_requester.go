package requester

import (
	"context"
	"sync"

	"github.com/rabbitmq/rabbitmq-stream-go-client/pkg/amqp"
	"github.com/rabbitmq/rabbitmq-stream-go-client/pkg/message"
	"github.com/rabbitmq/rabbitmq-stream-go-client/pkg/stream"

	"github.com/ssd532/pummel"
)

// RMQStreamRequesterFactory implements RequesterFactory by creating a
// Requester which publishes messages to existing RabbitMQ streams.
type RMQStreamRequesterFactory struct {
	URLs  []string
	Props map[string]string
}

// GetRequester returns a new Requester.
func (r *RMQStreamRequesterFactory) GetRequester() pummel.Requester {
	return &rmqstreamRequester{urls: r.URLs}
}

// rmqstreamRequester keeps one producer per stream, created on first use.
type rmqstreamRequester struct {
	urls []string
	env  *stream.Environment

	mu        sync.Mutex
	producers map[string]*stream.Producer
}

// Setup prepares the Requester for sending.
func (r *rmqstreamRequester) Setup() error {
	env, err := stream.NewEnvironment(stream.NewEnvironmentOptions().SetUris(r.urls))
	if err != nil {
		return err
	}
	r.env = env
	r.producers = map[string]*stream.Producer{}
	return nil
}

func (r *rmqstreamRequester) producer(name string) (*stream.Producer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.producers[name]; ok {
		return p, nil
	}
	p, err := r.env.NewProducer(name, stream.NewProducerOptions().SetBatchSize(1))
	if err != nil {
		return nil, err
	}
	r.producers[name] = p
	return p, nil
}

// Send publishes msg to the stream named by its topic. Stream messages
// carry no key.
func (r *rmqstreamRequester) Send(ctx context.Context, msg pummel.Message) (pummel.Metadata, error) {
	p, err := r.producer(msg.Topic)
	if err != nil {
		return pummel.Metadata{}, err
	}
	return withContext(ctx, func() (pummel.Metadata, error) {
		if err := p.BatchSend([]message.StreamMessage{amqp.NewMessage(msg.Payload)}); err != nil {
			return pummel.Metadata{}, err
		}
		return pummel.Metadata{Detail: "stream=" + msg.Topic}, nil
	})
}

// Teardown is called upon job completion.
func (r *rmqstreamRequester) Teardown() error {
	if r.env == nil {
		return nil
	}
	r.mu.Lock()
	for name, p := range r.producers {
		if err := p.Close(); err != nil {
			r.mu.Unlock()
			return err
		}
		delete(r.producers, name)
	}
	r.mu.Unlock()

	err := r.env.Close()
	r.env = nil
	return err
}
