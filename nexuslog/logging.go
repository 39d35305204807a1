// Package nexuslog provides the structured logging infrastructure shared by
// every Nexus Store component. It is built on logrus and implements the same
// stdout/stderr stream-splitting convention used across the rest of the
// ecosystem: error-level entries are routed to stderr so that container
// orchestrators and log shippers can treat them with higher priority, while
// every other level goes to stdout.
package nexuslog

import (
	"bytes"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes logrus output between stdout and stderr based on
// the formatted entry's level, without parsing the entry itself.
type OutputSplitter struct{}

// Write implements io.Writer. It is safe for concurrent use since it only
// inspects p and delegates to the (already thread-safe) OS streams.
func (OutputSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte("level=fatal")) ||
		bytes.Contains(p, []byte(`"level":"error"`)) || bytes.Contains(p, []byte(`"level":"fatal"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Default is the package-level logger used when a component is constructed
// without an explicit logger override.
var Default = New(Config{Level: logrus.InfoLevel, Format: "text"})

// Config configures a logger built with New.
type Config struct {
	Level      logrus.Level
	Format     string // "json" or "text"
	AddCaller  bool
	TimeFormat string
}

// New builds a *logrus.Logger wired with the package's OutputSplitter.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(cfg.Level)
	logger.SetReportCaller(cfg.AddCaller)

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timeFormat})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{TimestampFormat: timeFormat, FullTimestamp: true})
	}

	logger.SetOutput(OutputSplitter{})
	return logger
}

// OperationFields returns the standard field set attached to every
// interceptor and reliability-layer log line: the store operation, the
// elapsed duration, and, when present, the failure.
func OperationFields(operation string, duration time.Duration, err error) logrus.Fields {
	fields := logrus.Fields{
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	return fields
}
