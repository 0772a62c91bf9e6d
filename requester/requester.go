// Package requester binds pummel's send primitive to concrete brokers. Each
// broker has a RequesterFactory holding connection settings and an
// unexported Requester that owns the client.
package requester

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ssd532/pummel"
	"github.com/ssd532/pummel/internal/config"
)

// ErrUnknownKind is returned by New for a broker kind it does not know.
var ErrUnknownKind = errors.New("requester: unknown broker kind")

// defaultWait bounds blocking calls of clients that need an explicit
// duration when the send carries no deadline.
const defaultWait = 30 * time.Second

var factories = map[string]func(urls []string, props map[string]string) pummel.RequesterFactory{
	"kafka": func(urls []string, props map[string]string) pummel.RequesterFactory {
		return &KafkaRequesterFactory{URLs: urls, Props: props}
	},
	"nats": func(urls []string, props map[string]string) pummel.RequesterFactory {
		return &NATSRequesterFactory{URLs: urls, Props: props}
	},
	"jetstream": func(urls []string, props map[string]string) pummel.RequesterFactory {
		return &JetStreamRequesterFactory{URLs: urls, Props: props}
	},
	"stan": func(urls []string, props map[string]string) pummel.RequesterFactory {
		return &STANRequesterFactory{URLs: urls, Props: props}
	},
	"liftbridge": func(urls []string, props map[string]string) pummel.RequesterFactory {
		return &LiftbridgeRequesterFactory{URLs: urls, Props: props}
	},
	"rmqstream": func(urls []string, props map[string]string) pummel.RequesterFactory {
		return &RMQStreamRequesterFactory{URLs: urls, Props: props}
	},
	"amqp": func(urls []string, props map[string]string) pummel.RequesterFactory {
		return &AMQPRequesterFactory{URLs: urls, Props: props}
	},
	"nsq": func(urls []string, props map[string]string) pummel.RequesterFactory {
		return &NSQRequesterFactory{URLs: urls, Props: props}
	},
	"redis": func(urls []string, props map[string]string) pummel.RequesterFactory {
		return &RedisRequesterFactory{URLs: urls, Props: props}
	},
	"cassandra": func(urls []string, props map[string]string) pummel.RequesterFactory {
		return &CassandraRequesterFactory{URLs: urls, Props: props}
	},
	"mqtt": func(urls []string, props map[string]string) pummel.RequesterFactory {
		return &MQTTRequesterFactory{URLs: urls, Props: props}
	},
}

// Kinds lists the broker kinds New accepts.
func Kinds() []string {
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// New returns the factory for kind. Broker addresses come from the
// bootstrap.servers property.
func New(kind string, props map[string]string) (pummel.RequesterFactory, error) {
	mk, ok := factories[strings.ToLower(strings.TrimSpace(kind))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownKind, kind, strings.Join(Kinds(), ", "))
	}
	urls := config.Brokers(props)
	if len(urls) == 0 {
		return nil, fmt.Errorf("requester: %s: no brokers in %s", kind, config.KeyBootstrapServers)
	}
	return mk(urls, props), nil
}

// withContext runs a blocking client call that cannot take ctx itself.
// The call always runs to completion, so a sender never returns while its
// broker call is still in flight. A call that finishes after ctx is done
// reports ctx's error.
func withContext(ctx context.Context, fn func() (pummel.Metadata, error)) (pummel.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return pummel.Metadata{}, err
	}
	meta, err := fn()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if err != nil {
			return pummel.Metadata{}, fmt.Errorf("%w: %w", ctxErr, err)
		}
		return pummel.Metadata{}, ctxErr
	}
	return meta, err
}

// waitFor returns how long a client may block for ctx.
func waitFor(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		return time.Until(dl)
	}
	return defaultWait
}

func prop(props map[string]string, key, def string) string {
	if v := strings.TrimSpace(props[key]); v != "" {
		return v
	}
	return def
}

func intProp(props map[string]string, key string, def int) (int, error) {
	v := strings.TrimSpace(props[key])
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("requester: %s: %w", key, err)
	}
	return n, nil
}

// clientID builds a client id unique to this run.
func clientID(props map[string]string) string {
	return prop(props, "client.id", "pummel") + "-" + uuid.NewString()[:8]
}
