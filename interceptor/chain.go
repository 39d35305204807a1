package interceptor

// DoWork performs the actual backend call for one Context and returns its
// response.
type DoWork func(ctx *Context) (any, error)

// Chain runs an ordered list of Interceptor over one Execute call:
// forward on_request in construction order, the backend call (unless
// short-circuited or a response was already provided), then reverse
// on_response/on_error over the interceptors that processed the request.
//
// Concurrent Execute calls are safe: each gets its own Context, and
// per-call state belongs in ctx.Metadata, never in interceptor instance
// fields (the single-flight CachingInterceptor is the sole exception: its
// shared-future map is intentionally shared across calls).
type Chain struct {
	interceptors []Interceptor
}

// NewChain builds a Chain from interceptors, preserving order.
func NewChain(interceptors ...Interceptor) *Chain {
	return &Chain{interceptors: interceptors}
}

// Execute runs op/request through the chain, invoking work when no
// interceptor short-circuits or supplies a response.
func (c *Chain) Execute(op Operation, request any, work DoWork) (any, error) {
	ctx := NewContext(op, request)

	applicable := make([]Interceptor, 0, len(c.interceptors))
	for _, i := range c.interceptors {
		if Applies(i, op) {
			applicable = append(applicable, i)
		}
	}

	provided := false
	shortCircuited := false
	processed := 0

	for _, i := range applicable {
		result := i.OnRequest(ctx)

		switch result.Kind() {
		case KindContinue:
			processed++
			if v, ok := result.Value(); ok {
				ctx.Response = v
				provided = true
			}
		case KindShortCircuit:
			processed++
			v, _ := result.Value()
			ctx.Response = v
			ctx.Stop()
			shortCircuited = true
		case KindError:
			// The erroring interceptor never "processed" the request; only
			// the ones before it unwind via on_error.
			c.runErrorsReverse(applicable[:processed], ctx, result.Err(), result.Stack())
			return nil, result.Err()
		}

		if shortCircuited {
			break
		}
	}

	if !shortCircuited && !provided {
		resp, err := work(ctx)
		if err != nil {
			c.runErrorsReverse(applicable[:processed], ctx, err, "")
			return nil, err
		}
		ctx.Response = resp
	}

	for i := processed - 1; i >= 0; i-- {
		applicable[i].OnResponse(ctx)
	}

	return ctx.Response, nil
}

func (c *Chain) runErrorsReverse(processed []Interceptor, ctx *Context, cause error, stack string) {
	for i := len(processed) - 1; i >= 0; i-- {
		processed[i].OnError(ctx, cause, stack)
	}
}

// MetadataString fetches a string metadata value by key, returning ok=false
// when absent or not a string.
func MetadataString(ctx *Context, key string) (string, bool) {
	v, ok := ctx.Metadata[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
