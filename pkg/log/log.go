// Package log builds the process logger: zerolog underneath, exposed as a
// logr.Logger so library packages stay independent of the backend.
package log

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
)

// New returns a logger writing JSON to stderr when running in Kubernetes
// and human readable output to stdout otherwise. level is a zerolog level
// name; "debug" and "trace" also enable the V(1) and V(2) logs of the
// scheduler.
func New(level string) (logr.Logger, error) {
	var output io.Writer
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		output = os.Stderr
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02T15:04:05.999Z07:00"}
	}
	return NewWithWriter(output, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level string) (logr.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return logr.Discard(), fmt.Errorf("parse log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(lvl)
	zerologr.NameFieldName = "logger"
	zerologr.NameSeparator = "/"

	zl := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return zerologr.New(&zl), nil
}
