package interceptor

import (
	"time"

	"github.com/evalgo-org/nexus-store/metrics"
)

const metaTimingStart = "_timing_start"

// TimingInterceptor starts a stopwatch on on_request and reports an
// OperationMetric to the injected Reporter on completion or failure.
type TimingInterceptor struct {
	Base
	Reporter metrics.Reporter
	ops      []Operation
}

// NewTimingInterceptor builds a TimingInterceptor reporting to reporter.
// A nil reporter defaults to metrics.NoopReporter.
func NewTimingInterceptor(reporter metrics.Reporter, ops ...Operation) *TimingInterceptor {
	if reporter == nil {
		reporter = metrics.NoopReporter{}
	}
	return &TimingInterceptor{Reporter: reporter, ops: ops}
}

func (t *TimingInterceptor) Operations() []Operation { return t.ops }

func (t *TimingInterceptor) OnRequest(ctx *Context) Result {
	ctx.Metadata[metaTimingStart] = time.Now()
	return Continue()
}

func (t *TimingInterceptor) OnResponse(ctx *Context) {
	t.Reporter.ReportOperation(metrics.OperationMetric{
		Operation: ctx.Operation.String(),
		Duration:  elapsedSince(ctx, metaTimingStart),
		Success:   true,
	})
}

func (t *TimingInterceptor) OnError(ctx *Context, cause error, _ string) {
	t.Reporter.ReportOperation(metrics.OperationMetric{
		Operation: ctx.Operation.String(),
		Duration:  elapsedSince(ctx, metaTimingStart),
		Success:   false,
		ErrorMsg:  cause.Error(),
	})
}
