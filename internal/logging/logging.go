// Package logging builds the zerolog logger and adapts it to the small
// key/value logger interfaces and status sinks used across nodepack.
package logging

import (
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures a logger.
type Options struct {
	Level        string // trace, debug, info, warn, error
	Format       string // console or json
	Writer       io.Writer
	WithCaller   bool
	StaticFields map[string]string
}

// FromEnv reads NODEPACK_LOG_LEVEL and NODEPACK_LOG_FORMAT.
func FromEnv() Options {
	return Options{
		Level:  strings.ToLower(getenv("NODEPACK_LOG_LEVEL", "info")),
		Format: strings.ToLower(getenv("NODEPACK_LOG_FORMAT", "console")),
	}
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

// Build creates a logger from opt.
func Build(opt Options) zerolog.Logger {
	var w io.Writer = os.Stderr
	if opt.Writer != nil {
		w = opt.Writer
	}
	if opt.Format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(w).Level(parseLevel(opt.Level)).With().Timestamp()
	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil && opt.Level == "trace" {
		ctx = ctx.Str("go_version", bi.GoVersion)
	}
	for k, v := range opt.StaticFields {
		ctx = ctx.Str(k, v)
	}

	log := ctx.Logger()
	if opt.WithCaller {
		log = log.With().Caller().Logger()
	}
	return log
}

// parseLevel defaults to info for unknown strings
func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// KV adapts a zerolog.Logger to the Debug/Info/Warn/Error key/value
// interface components accept.
type KV struct {
	log zerolog.Logger
}

// New wraps l.
func New(l zerolog.Logger) *KV {
	return &KV{log: l}
}

func (k *KV) Debug(msg string, keysAndValues ...interface{}) {
	k.emit(k.log.Debug(), msg, keysAndValues)
}

func (k *KV) Info(msg string, keysAndValues ...interface{}) {
	k.emit(k.log.Info(), msg, keysAndValues)
}

func (k *KV) Warn(msg string, keysAndValues ...interface{}) {
	k.emit(k.log.Warn(), msg, keysAndValues)
}

func (k *KV) Error(msg string, keysAndValues ...interface{}) {
	k.emit(k.log.Error(), msg, keysAndValues)
}

func (k *KV) emit(e *zerolog.Event, msg string, keysAndValues []interface{}) {
	if e == nil {
		return
	}
	if len(keysAndValues)%2 == 1 {
		keysAndValues = append(keysAndValues, "(MISSING)")
	}
	e.Fields(keysAndValues).Msg(msg)
}
