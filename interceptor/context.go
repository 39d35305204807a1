package interceptor

import "time"

// Context carries one store call through the chain. Req/Resp are left as
// `any` rather than made generic over the chain itself: a single Chain
// instance is shared by every entity-typed Store, so its payloads can't be
// monomorphized without forcing one chain per entity type.
type Context struct {
	Operation Operation
	Request   any
	Response  any
	Metadata  map[string]any
	Timestamp time.Time
	Stopped   bool
}

// NewContext builds a Context for op/request, stamped with the current time.
func NewContext(op Operation, request any) *Context {
	return &Context{
		Operation: op,
		Request:   request,
		Metadata:  make(map[string]any),
		Timestamp: time.Now(),
	}
}

// WithResponse returns a shallow copy of ctx with Response set to v,
// preserving Metadata and Stopped.
func (c *Context) WithResponse(v any) *Context {
	cp := *c
	cp.Response = v
	return &cp
}

// Stop marks the context as short-circuited.
func (c *Context) Stop() { c.Stopped = true }
