package logx

import (
	"bytes"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		" DEBUG ": zerolog.DebugLevel,
		"info":    zerolog.InfoLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"bogus":   zerolog.WarnLevel,
		"":        zerolog.WarnLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in, zerolog.WarnLevel); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewHonoursLevel(t *testing.T) {
	t.Setenv(EnvLevel, "")
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Out: &buf})
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn line missing: %q", out)
	}
}

func TestEnvOverridesLevel(t *testing.T) {
	t.Setenv(EnvLevel, "debug")
	var buf bytes.Buffer
	l := New(Options{Level: "error", Out: &buf})
	l.Debug().Msg("from env")
	if !strings.Contains(buf.String(), "from env") {
		t.Fatalf("env level not applied: %q", buf.String())
	}
}

func TestDebugAddsCaller(t *testing.T) {
	t.Setenv(EnvLevel, "")
	var buf bytes.Buffer
	l := New(Options{Level: "info", Debug: true, Out: &buf})
	l.Info().Msg("x")
	if !strings.Contains(buf.String(), "logging_test.go:") {
		t.Fatalf("expected short caller in %q", buf.String())
	}
}

func TestWriterBridgesStdLogger(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	std := log.New(Writer(zl, zerolog.InfoLevel), "[sarama] ", 0)
	std.Println("connected to broker")
	if !strings.Contains(buf.String(), `"message":"[sarama] connected to broker"`) {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestNewSetsGlobalsOnce(t *testing.T) {
	t.Setenv(EnvLevel, "")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			New(Options{Out: &bytes.Buffer{}})
		}()
	}
	wg.Wait()
	if zerolog.ErrorFieldName != "err" {
		t.Fatalf("ErrorFieldName = %q", zerolog.ErrorFieldName)
	}

	prev := zerolog.ErrorFieldName
	zerolog.ErrorFieldName = "error"
	defer func() { zerolog.ErrorFieldName = prev }()
	New(Options{Out: &bytes.Buffer{}})
	if zerolog.ErrorFieldName != "error" {
		t.Fatalf("New reset ErrorFieldName to %q", zerolog.ErrorFieldName)
	}
}
