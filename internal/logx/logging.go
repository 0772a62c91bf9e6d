package logx

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// EnvLevel names the environment variable that overrides the log level.
const EnvLevel = "PUMMEL_LOG"

const consoleTimeFormat = "15:04:05.000"

// Options selects the logger layout.
type Options struct {
	Level string
	Debug bool

	// Out defaults to stderr so progress lines on stdout stay readable.
	Out io.Writer
}

var globalsOnce sync.Once

// New returns a console logger. The first call also sets zerolog's
// package-level field names.
func New(opts Options) zerolog.Logger {
	globalsOnce.Do(func() {
		zerolog.ErrorFieldName = "err"
		zerolog.CallerMarshalFunc = shortCaller
	})

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	level := opts.Level
	if env := strings.TrimSpace(os.Getenv(EnvLevel)); env != "" {
		level = env
	}

	cw := zerolog.ConsoleWriter{Out: out, TimeFormat: consoleTimeFormat}
	ctx := zerolog.New(cw).Level(ParseLevel(level, zerolog.InfoLevel)).With().Timestamp()
	if opts.Debug {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// ParseLevel maps a level name to a zerolog level, falling back to def.
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "OFF", "DISABLED":
		return zerolog.Disabled
	default:
		return def
	}
}

// Writer adapts a logger to io.Writer at the given level, for libraries that
// only accept a *log.Logger.
func Writer(l zerolog.Logger, level zerolog.Level) io.Writer {
	return levelWriter{l: l, level: level}
}

type levelWriter struct {
	l     zerolog.Logger
	level zerolog.Level
}

func (w levelWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	w.l.WithLevel(w.level).Msg(msg)
	return len(p), nil
}

func shortCaller(_ uintptr, file string, line int) string {
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}
