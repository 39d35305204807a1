// Package metrics defines the typed metric shapes the store and its
// interceptors report, and two baseline Reporter implementations: a no-op
// and a logrus-backed one.
package metrics

import (
	"time"

	"github.com/sirupsen/logrus"
)

// OperationMetric is reported once per completed Store operation, and by
// TimingInterceptor once per chain call it applies to.
type OperationMetric struct {
	Operation string
	Duration  time.Duration
	Success   bool
	ErrorMsg  string
}

// CacheMetric is reported on cache hit/miss/invalidate events.
type CacheMetric struct {
	Event string // "hit", "miss", "invalidate"
	Key   string
}

// SyncMetric is reported by the store around backend sync activity: the
// sync half of a write dispatched per its write policy, and Store.Sync.
type SyncMetric struct {
	Operation string
	Duration  time.Duration
	Success   bool
	Retries   int
}

// ErrorMetric is reported whenever a typed error surfaces from the store.
type ErrorMetric struct {
	Kind      string
	Operation string
	Retryable bool
}

// PoolMetric is reported by the store on each circuit breaker state
// change it observes.
type PoolMetric struct {
	Name  string
	State string
	Value float64
}

// Reporter receives typed metrics from across the store. All methods must
// be safe for concurrent use and must never block the caller meaningfully
// (implementations that fan out to slow sinks should do so asynchronously).
type Reporter interface {
	ReportOperation(OperationMetric)
	ReportCache(CacheMetric)
	ReportSync(SyncMetric)
	ReportError(ErrorMetric)
	ReportPool(PoolMetric)
}

// NoopReporter discards every metric. It is the default when no reporter
// is injected.
type NoopReporter struct{}

func (NoopReporter) ReportOperation(OperationMetric) {}
func (NoopReporter) ReportCache(CacheMetric)         {}
func (NoopReporter) ReportSync(SyncMetric)           {}
func (NoopReporter) ReportError(ErrorMetric)         {}
func (NoopReporter) ReportPool(PoolMetric)           {}

// LoggingReporter writes every metric as a structured logrus line at Debug
// level. Useful in development and as a reference implementation.
type LoggingReporter struct {
	Log logrus.FieldLogger
}

// NewLoggingReporter builds a LoggingReporter. A nil log defaults to
// logrus.StandardLogger().
func NewLoggingReporter(log logrus.FieldLogger) *LoggingReporter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LoggingReporter{Log: log}
}

func (r *LoggingReporter) ReportOperation(m OperationMetric) {
	r.Log.WithFields(logrus.Fields{
		"operation": m.Operation,
		"duration":  m.Duration,
		"success":   m.Success,
		"error":     m.ErrorMsg,
	}).Debug("operation metric")
}

func (r *LoggingReporter) ReportCache(m CacheMetric) {
	r.Log.WithFields(logrus.Fields{"event": m.Event, "key": m.Key}).Debug("cache metric")
}

func (r *LoggingReporter) ReportSync(m SyncMetric) {
	r.Log.WithFields(logrus.Fields{
		"operation": m.Operation,
		"duration":  m.Duration,
		"success":   m.Success,
		"retries":   m.Retries,
	}).Debug("sync metric")
}

func (r *LoggingReporter) ReportError(m ErrorMetric) {
	r.Log.WithFields(logrus.Fields{
		"kind":      m.Kind,
		"operation": m.Operation,
		"retryable": m.Retryable,
	}).Debug("error metric")
}

func (r *LoggingReporter) ReportPool(m PoolMetric) {
	r.Log.WithFields(logrus.Fields{"name": m.Name, "state": m.State, "value": m.Value}).Debug("pool metric")
}
