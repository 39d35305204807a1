package interceptor

// Kind discriminates a Result's variant.
type Kind int

const (
	KindContinue Kind = iota
	KindShortCircuit
	KindError
)

// Result is the sum type an interceptor's on_request returns: Continue
// (optionally supplying a response that skips the backend call),
// ShortCircuit (a final response, skipping both the backend call and any
// remaining interceptors' on_request), or Error (aborts the chain).
type Result struct {
	kind     Kind
	value    any
	hasValue bool
	err      error
	stack    string
}

// Continue proceeds to the next interceptor without providing a response.
func Continue() Result { return Result{kind: KindContinue} }

// ContinueWith proceeds to the next interceptor, supplying v as the
// response: the backend call is skipped, but subsequent interceptors'
// on_request still observe the request.
func ContinueWith(v any) Result { return Result{kind: KindContinue, value: v, hasValue: true} }

// ShortCircuit stops forward processing entirely with a final response.
func ShortCircuit(v any) Result { return Result{kind: KindShortCircuit, value: v, hasValue: true} }

// Err aborts the chain with cause and an optional captured stack trace.
func Err(cause error, stack string) Result { return Result{kind: KindError, err: cause, stack: stack} }

func (r Result) Kind() Kind { return r.kind }

// Value returns the provided response and whether one was provided.
func (r Result) Value() (any, bool) { return r.value, r.hasValue }

func (r Result) Err() error    { return r.err }
func (r Result) Stack() string { return r.stack }
