package interceptor

import (
	"time"

	"github.com/sirupsen/logrus"
)

const metaLoggingStart = "_logging_start"

// LoggingInterceptor logs the start, completion, and failure of every
// operation it applies to. Each phase is independently toggleable.
type LoggingInterceptor struct {
	Base
	Log          logrus.FieldLogger
	Level        logrus.Level
	ops          []Operation
	LogRequests  bool
	LogResponses bool
	LogErrors    bool
}

// NewLoggingInterceptor builds a LoggingInterceptor logging all three
// phases for ops (every operation when none are given): start and
// completion at Info level, failures at Error level. A nil log defaults
// to logrus.StandardLogger().
func NewLoggingInterceptor(log logrus.FieldLogger, ops ...Operation) *LoggingInterceptor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LoggingInterceptor{
		Log:          log,
		Level:        logrus.InfoLevel,
		ops:          ops,
		LogRequests:  true,
		LogResponses: true,
		LogErrors:    true,
	}
}

func (l *LoggingInterceptor) Operations() []Operation { return l.ops }

func (l *LoggingInterceptor) OnRequest(ctx *Context) Result {
	ctx.Metadata[metaLoggingStart] = time.Now()
	if l.LogRequests {
		l.Log.WithFields(logrus.Fields{"operation": ctx.Operation}).Log(l.Level, "operation started")
	}
	return Continue()
}

func (l *LoggingInterceptor) OnResponse(ctx *Context) {
	if !l.LogResponses {
		return
	}
	elapsed := elapsedSince(ctx, metaLoggingStart)
	l.Log.WithFields(logrus.Fields{
		"operation": ctx.Operation,
		"duration":  elapsed,
	}).Log(l.Level, "operation completed")
}

func (l *LoggingInterceptor) OnError(ctx *Context, cause error, stack string) {
	if !l.LogErrors {
		return
	}
	elapsed := elapsedSince(ctx, metaLoggingStart)
	l.Log.WithFields(logrus.Fields{
		"operation": ctx.Operation,
		"duration":  elapsed,
		"error":     cause,
		"stack":     stack,
	}).Error("operation failed")
}

func elapsedSince(ctx *Context, key string) time.Duration {
	start, ok := ctx.Metadata[key].(time.Time)
	if !ok {
		return 0
	}
	return time.Since(start)
}
