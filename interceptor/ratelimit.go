package interceptor

import (
	"golang.org/x/time/rate"

	"github.com/evalgo-org/nexus-store/nexuserrors"
)

// RateLimitInterceptor gates operations behind a token-bucket limiter,
// disabled by default. It composes with the rest of the chain as just
// another on_request gate: it does not short-circuit with a cached
// value, it rejects outright.
type RateLimitInterceptor struct {
	Base
	limiter *rate.Limiter
	ops     []Operation
}

// NewRateLimitInterceptor builds a RateLimitInterceptor allowing rps
// requests per second with the given burst, applied to every operation
// unless ops narrows it.
func NewRateLimitInterceptor(rps float64, burst int, ops ...Operation) *RateLimitInterceptor {
	return &RateLimitInterceptor{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		ops:     ops,
	}
}

func (r *RateLimitInterceptor) Operations() []Operation { return r.ops }

func (r *RateLimitInterceptor) OnRequest(ctx *Context) Result {
	if !r.limiter.Allow() {
		return Err(&nexuserrors.RateLimited{Operation: ctx.Operation.String()}, "")
	}
	return Continue()
}
