package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

func TestWriteLoadRoundTrip(t *testing.T) {
	for _, name := range []string{"cfg.yml", "cfg.yaml", "cfg.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			cfg := New([]string{"a:9092", "b:9092"})
			cfg.Producer["acks"] = "all"

			if err := cfg.Write(path); err != nil {
				t.Fatalf("Write: %v", err)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !reflect.DeepEqual(got, cfg) {
				t.Fatalf("round trip mismatch: %+v vs %+v", got, cfg)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "absent.yml")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing file: expected ErrNotFound, got %v", err)
	}

	toml := filepath.Join(dir, "cfg.toml")
	if err := os.WriteFile(toml, []byte("x = 1"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(toml); !errors.Is(err, ErrUnsupportedExtension) {
		t.Fatalf("toml: expected ErrUnsupportedExtension, got %v", err)
	}

	noext := filepath.Join(dir, "cfg")
	if err := os.WriteFile(noext, []byte("{}"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(noext); !errors.Is(err, ErrNotFound) {
		t.Fatalf("no extension: expected ErrNotFound, got %v", err)
	}

	bad := filepath.Join(dir, "bad.yml")
	if err := os.WriteFile(bad, []byte("connection: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatalf("expected a YAML syntax error")
	}
}

func TestLoadFillsMissingSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yml")
	if err := os.WriteFile(path, []byte("connection:\n  bootstrap.servers: k:9092\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Producer == nil || cfg.Consumer == nil {
		t.Fatalf("sections should be non-nil: %+v", cfg)
	}
	if got := Brokers(cfg.ProducerProps(nil)); !reflect.DeepEqual(got, []string{"k:9092"}) {
		t.Fatalf("unexpected brokers %v", got)
	}
}

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	log := zerolog.Nop()

	cfg, created, err := LoadOrCreate(path, []string{"localhost:9092"}, log)
	if err != nil || !created {
		t.Fatalf("first call: created=%v err=%v", created, err)
	}
	if cfg.Connection[KeyBootstrapServers] != "localhost:9092" {
		t.Fatalf("unexpected connection %v", cfg.Connection)
	}

	// Brokers passed later do not replace the persisted ones.
	cfg, created, err = LoadOrCreate(path, []string{"other:9092"}, log)
	if err != nil || created {
		t.Fatalf("second call: created=%v err=%v", created, err)
	}
	if cfg.Connection[KeyBootstrapServers] != "localhost:9092" {
		t.Fatalf("persisted brokers lost: %v", cfg.Connection)
	}
}

func TestPropsMergeOrder(t *testing.T) {
	cfg := New([]string{"k:9092"})
	cfg.Connection["client.id"] = "base"
	cfg.Producer["client.id"] = "producer"
	cfg.Consumer["auto.offset.reset"] = "earliest"

	p := cfg.ProducerProps(map[string]string{KeySASLUsername: "bob"})
	if p["client.id"] != "producer" || p[KeySASLUsername] != "bob" {
		t.Fatalf("unexpected producer props %v", p)
	}
	if _, ok := p["auto.offset.reset"]; ok {
		t.Fatalf("consumer props leaked into producer props")
	}

	c := cfg.ConsumerProps("g1", map[string]string{"client.id": "cli"})
	if c[KeyGroupID] != "g1" || c["client.id"] != "cli" || c["auto.offset.reset"] != "earliest" {
		t.Fatalf("unexpected consumer props %v", c)
	}
	if _, ok := cfg.Connection[KeyGroupID]; ok {
		t.Fatalf("merge must not mutate the config")
	}
}

func TestBrokersAndKeys(t *testing.T) {
	props := map[string]string{KeyBootstrapServers: " a:1, ,b:2 ", "z": "1"}
	if got := Brokers(props); !reflect.DeepEqual(got, []string{"a:1", "b:2"}) {
		t.Fatalf("Brokers = %v", got)
	}
	if got := Keys(props); !reflect.DeepEqual(got, []string{KeyBootstrapServers, "z"}) {
		t.Fatalf("Keys = %v", got)
	}
	if got := Brokers(nil); got != nil {
		t.Fatalf("Brokers(nil) = %v", got)
	}
}

func TestSecurityProtocol(t *testing.T) {
	for _, s := range []string{"PLAINTEXT", "SSL", "SASL_PLAINTEXT", "SASL_SSL"} {
		if p, err := ParseSecurityProtocol(s); err != nil || string(p) != s {
			t.Fatalf("ParseSecurityProtocol(%q) = %q, %v", s, p, err)
		}
	}
	if _, err := ParseSecurityProtocol("ssl"); !errors.Is(err, ErrInvalidSecurityProtocol) {
		t.Fatalf("expected ErrInvalidSecurityProtocol, got %v", err)
	}

	var p SecurityProtocol
	if err := p.Set("SASL_SSL"); err != nil || p.String() != "SASL_SSL" {
		t.Fatalf("Set: %v %q", err, p.String())
	}
}

func TestOverridesMap(t *testing.T) {
	if m := (Overrides{}).Map(); len(m) != 0 {
		t.Fatalf("empty overrides should be empty, got %v", m)
	}
	m := Overrides{SecurityProtocol: SASLSSL, SASLUsername: "u", SASLPassword: "p", SASLMechanism: "PLAIN"}.Map()
	want := map[string]string{
		KeySecurityProtocol: "SASL_SSL",
		KeySASLUsername:     "u",
		KeySASLPassword:     "p",
		KeySASLMechanism:    "PLAIN",
	}
	if !reflect.DeepEqual(m, want) {
		t.Fatalf("Map = %v", m)
	}
}
