package requester

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/ssd532/pummel"
)

var errNacked = errors.New("requester: message nacked by broker")

// AMQPRequesterFactory implements RequesterFactory by creating a Requester
// which publishes messages to an AMQP exchange (amqp.exchange property,
// default the default exchange) with the topic as routing key.
type AMQPRequesterFactory struct {
	URLs  []string
	Props map[string]string
}

// GetRequester returns a new Requester.
func (a *AMQPRequesterFactory) GetRequester() pummel.Requester {
	return &amqpRequester{
		url:      a.URLs[0],
		exchange: prop(a.Props, "amqp.exchange", ""),
	}
}

// amqpRequester publishes in confirm mode. A channel is not meant for
// concurrent publishers, so sends are serialized.
type amqpRequester struct {
	url      string
	exchange string
	conn     *amqp.Connection

	mu       sync.Mutex
	channel  *amqp.Channel
	confirms chan amqp.Confirmation
	tag      uint64
}

// Setup prepares the Requester for sending.
func (a *amqpRequester) Setup() error {
	conn, err := amqp.Dial(a.url)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return err
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return err
	}
	a.conn = conn
	a.channel = ch
	a.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 64))
	return nil
}

// Send publishes msg and waits for the broker's confirmation. The key
// becomes the message id.
func (a *amqpRequester) Send(ctx context.Context, msg pummel.Message) (pummel.Metadata, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.channel.Publish(a.exchange, msg.Topic, false, false, amqp.Publishing{
		MessageId:    msg.Key,
		Body:         msg.Payload,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return pummel.Metadata{}, err
	}
	a.tag++

	for {
		select {
		case c, ok := <-a.confirms:
			if !ok {
				return pummel.Metadata{}, amqp.ErrClosed
			}
			// Confirms of sends that timed out earlier arrive first.
			if c.DeliveryTag < a.tag {
				continue
			}
			if !c.Ack {
				return pummel.Metadata{}, errNacked
			}
			return pummel.Metadata{Offset: int64(c.DeliveryTag), Detail: "routing_key=" + msg.Topic}, nil
		case <-ctx.Done():
			return pummel.Metadata{}, ctx.Err()
		}
	}
}

// Teardown is called upon job completion.
func (a *amqpRequester) Teardown() error {
	if a.conn == nil {
		return nil
	}
	if err := a.channel.Close(); err != nil {
		return err
	}
	err := a.conn.Close()
	a.conn = nil
	a.channel = nil
	return err
}
