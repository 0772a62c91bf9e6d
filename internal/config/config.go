// Package config loads and persists the broker connection settings shared by
// every pummel invocation.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	yaml "go.yaml.in/yaml/v3"
)

// DefaultFile is the config file used when none is given.
const DefaultFile = "rdkafka-config.yml"

// Property names understood across brokers.
const (
	KeyBootstrapServers = "bootstrap.servers"
	KeyGroupID          = "group.id"
	KeySecurityProtocol = "security.protocol"
	KeySASLUsername     = "sasl.username"
	KeySASLPassword     = "sasl.password"
	KeySASLMechanism    = "sasl.mechanism"
)

var (
	ErrNotFound             = errors.New("config: no such file or directory")
	ErrUnsupportedExtension = errors.New("config: unsupported file extension (allowed: yaml | yml | json)")
)

// Config is the persisted connection configuration. Connection properties
// apply to every client, Producer and Consumer only to their side.
type Config struct {
	Connection map[string]string `yaml:"connection" json:"connection"`
	Producer   map[string]string `yaml:"producer" json:"producer"`
	Consumer   map[string]string `yaml:"consumer" json:"consumer"`
}

// New returns a Config pointing at brokers.
func New(brokers []string) *Config {
	return &Config{
		Connection: map[string]string{KeyBootstrapServers: strings.Join(brokers, ",")},
		Producer:   map[string]string{},
		Consumer:   map[string]string{},
	}
}

type format int

const (
	formatYAML format = iota
	formatJSON
)

func formatOf(path string) (format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yml", ".yaml":
		return formatYAML, nil
	case ".json":
		return formatJSON, nil
	case "":
		return 0, fmt.Errorf("%s: %w", path, ErrNotFound)
	default:
		return 0, fmt.Errorf("%s: %w: %s", path, ErrUnsupportedExtension, strings.TrimPrefix(ext, "."))
	}
}

// Exists reports whether a file is present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Load reads a YAML or JSON config file, chosen by extension.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, err
	}
	f, err := formatOf(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	switch f {
	case formatJSON:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("invalid JSON syntax: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("invalid YAML syntax: %w", err)
		}
	}
	cfg.normalize()
	return &cfg, nil
}

// Write stores cfg at path in the format its extension names.
func (c *Config) Write(path string) error {
	f, err := formatOf(path)
	if err != nil {
		return err
	}

	var b []byte
	switch f {
	case formatJSON:
		b, err = json.MarshalIndent(c, "", "  ")
	default:
		b, err = yaml.Marshal(c)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// LoadOrCreate loads path when it exists and otherwise writes a fresh config
// for brokers there. created reports which branch ran.
func LoadOrCreate(path string, brokers []string, log zerolog.Logger) (cfg *Config, created bool, err error) {
	if Exists(path) {
		log.Debug().Str("path", path).Msg("config file exists, loading")
		cfg, err = Load(path)
		return cfg, false, err
	}

	log.Debug().Str("path", path).Msg("config file not found, creating")
	cfg = New(brokers)
	if err := cfg.Write(path); err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

func (c *Config) normalize() {
	if c.Connection == nil {
		c.Connection = map[string]string{}
	}
	if c.Producer == nil {
		c.Producer = map[string]string{}
	}
	if c.Consumer == nil {
		c.Consumer = map[string]string{}
	}
}

// ProducerProps merges connection, producer and override properties, later
// sources winning.
func (c *Config) ProducerProps(overrides map[string]string) map[string]string {
	return merge(c.Connection, c.Producer, overrides)
}

// ConsumerProps merges connection, consumer and override properties and sets
// group.id when groupID is not empty.
func (c *Config) ConsumerProps(groupID string, overrides map[string]string) map[string]string {
	props := merge(c.Connection, c.Consumer, overrides)
	if groupID != "" {
		props[KeyGroupID] = groupID
	}
	return props
}

// Brokers splits the bootstrap.servers property.
func Brokers(props map[string]string) []string {
	var out []string
	for _, b := range strings.Split(props[KeyBootstrapServers], ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Keys returns the property names in props, sorted. Used for logging
// without leaking values.
func Keys(props map[string]string) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func merge(layers ...map[string]string) map[string]string {
	out := map[string]string{}
	for _, l := range layers {
		for k, v := range l {
			out[k] = v
		}
	}
	return out
}
