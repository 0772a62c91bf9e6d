package requester

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Shopify/sarama"

	"github.com/ssd532/pummel"
	"github.com/ssd532/pummel/internal/config"
)

// KafkaRequesterFactory implements RequesterFactory by creating a Requester
// which publishes messages to Kafka through a synchronous producer.
type KafkaRequesterFactory struct {
	URLs  []string
	Props map[string]string
}

// GetRequester returns a new Requester.
func (k *KafkaRequesterFactory) GetRequester() pummel.Requester {
	return &kafkaRequester{urls: k.URLs, props: k.Props}
}

// kafkaRequester implements Requester by publishing each message with a
// SyncProducer, which is safe for concurrent use.
type kafkaRequester struct {
	urls     []string
	props    map[string]string
	producer sarama.SyncProducer
}

// Setup prepares the Requester for sending.
func (k *kafkaRequester) Setup() error {
	cfg, err := newSaramaConfig(k.props)
	if err != nil {
		return err
	}
	producer, err := sarama.NewSyncProducer(k.urls, cfg)
	if err != nil {
		return err
	}
	k.producer = producer
	return nil
}

// Send publishes msg and reports the partition and offset it landed on.
func (k *kafkaRequester) Send(ctx context.Context, msg pummel.Message) (pummel.Metadata, error) {
	pm := &sarama.ProducerMessage{
		Topic: msg.Topic,
		Key:   sarama.StringEncoder(msg.Key),
		Value: sarama.ByteEncoder(msg.Payload),
	}
	return withContext(ctx, func() (pummel.Metadata, error) {
		partition, offset, err := k.producer.SendMessage(pm)
		if err != nil {
			return pummel.Metadata{}, err
		}
		return pummel.Metadata{Partition: partition, Offset: offset}, nil
	})
}

// Teardown is called upon job completion.
func (k *kafkaRequester) Teardown() error {
	if k.producer == nil {
		return nil
	}
	err := k.producer.Close()
	k.producer = nil
	return err
}

// newSaramaConfig maps librdkafka-style properties onto a sarama config.
func newSaramaConfig(props map[string]string) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	if v := prop(props, "client.id", ""); v != "" {
		cfg.ClientID = v
	}
	if v := prop(props, "kafka.version", ""); v != "" {
		version, err := sarama.ParseKafkaVersion(v)
		if err != nil {
			return nil, fmt.Errorf("requester: kafka.version: %w", err)
		}
		cfg.Version = version
	}

	switch v := prop(props, "acks", "all"); v {
	case "all", "-1":
		cfg.Producer.RequiredAcks = sarama.WaitForAll
	case "1":
		cfg.Producer.RequiredAcks = sarama.WaitForLocal
	case "0":
		cfg.Producer.RequiredAcks = sarama.NoResponse
	default:
		return nil, fmt.Errorf("requester: acks: invalid value %q", v)
	}

	switch v := strings.ToLower(prop(props, "compression.type", "none")); v {
	case "none":
		cfg.Producer.Compression = sarama.CompressionNone
	case "gzip":
		cfg.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		return nil, fmt.Errorf("requester: compression.type: invalid value %q", v)
	}

	if v := prop(props, "message.max.bytes", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("requester: message.max.bytes: %w", err)
		}
		cfg.Producer.MaxMessageBytes = n
	}
	if v := prop(props, "request.timeout.ms", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("requester: request.timeout.ms: %w", err)
		}
		cfg.Producer.Timeout = time.Duration(n) * time.Millisecond
	}

	protocol := config.Plaintext
	if v := prop(props, config.KeySecurityProtocol, ""); v != "" {
		p, err := config.ParseSecurityProtocol(v)
		if err != nil {
			return nil, err
		}
		protocol = p
	}
	switch protocol {
	case config.SSL, config.SASLSSL:
		cfg.Net.TLS.Enable = true
	}
	switch protocol {
	case config.SASLPlaintext, config.SASLSSL:
		cfg.Net.SASL.Enable = true
		cfg.Net.SASL.User = props[config.KeySASLUsername]
		cfg.Net.SASL.Password = props[config.KeySASLPassword]
		switch m := strings.ToUpper(prop(props, config.KeySASLMechanism, "PLAIN")); m {
		case "PLAIN":
			cfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		case "SCRAM-SHA-256":
			cfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			cfg.Net.SASL.SCRAMClientGeneratorFunc = scramGenerator(scramSHA256)
		case "SCRAM-SHA-512":
			cfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			cfg.Net.SASL.SCRAMClientGeneratorFunc = scramGenerator(scramSHA512)
		default:
			return nil, fmt.Errorf("requester: sasl.mechanism %q is not supported (PLAIN, SCRAM-SHA-256, SCRAM-SHA-512)", m)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
