package interceptor

// Interceptor is the polymorphic middleware contract. Operations reports
// which Operation values this interceptor applies to; an empty/nil slice
// means every operation. Default no-op embeddings are provided via Base so
// concrete interceptors only need to override what they care about.
type Interceptor interface {
	Operations() []Operation
	OnRequest(ctx *Context) Result
	OnResponse(ctx *Context)
	OnError(ctx *Context, cause error, stack string)
}

// Base supplies no-op defaults; embed it and override selectively.
type Base struct{}

func (Base) Operations() []Operation                      { return nil }
func (Base) OnRequest(*Context) Result                     { return Continue() }
func (Base) OnResponse(*Context)                           {}
func (Base) OnError(*Context, error, string)               {}

// Applies reports whether i applies to op, per its Operations() filter.
func Applies(i Interceptor, op Operation) bool {
	ops := i.Operations()
	if len(ops) == 0 {
		return true
	}
	for _, o := range ops {
		if o == op {
			return true
		}
	}
	return false
}
