package interceptor

import (
	"strconv"

	"github.com/evalgo-org/nexus-store/nexuserrors"
)

// Validator checks a single request value, returning field-level messages
// (keyed by field name) on failure.
type Validator func(request any) map[string]string

// ValidationInterceptor applies Check to the request (or, for SaveAll,
// each element of a []any request) and aborts the chain with a
// ValidationException on failure. Defaults to {Save, SaveAll}.
type ValidationInterceptor struct {
	Base
	Check Validator
	ops   []Operation
}

// NewValidationInterceptor builds a ValidationInterceptor for Save/SaveAll
// unless ops overrides the applicable operations.
func NewValidationInterceptor(check Validator, ops ...Operation) *ValidationInterceptor {
	if len(ops) == 0 {
		ops = []Operation{OpSave, OpSaveAll}
	}
	return &ValidationInterceptor{Check: check, ops: ops}
}

func (v *ValidationInterceptor) Operations() []Operation { return v.ops }

func (v *ValidationInterceptor) OnRequest(ctx *Context) Result {
	if v.Check == nil {
		return Continue()
	}

	if ctx.Operation == OpSaveAll {
		items, ok := ctx.Request.([]any)
		if !ok {
			return Continue()
		}
		var errs []string
		for idx, item := range items {
			for field, msg := range v.Check(item) {
				errs = append(errs, itemKey(idx, field)+": "+msg)
			}
		}
		if len(errs) > 0 {
			return Err(nexuserrors.NewValidationException("validation failed", errs), "")
		}
		return Continue()
	}

	if fields := v.Check(ctx.Request); len(fields) > 0 {
		errs := make([]string, 0, len(fields))
		for field, msg := range fields {
			errs = append(errs, field+": "+msg)
		}
		return Err(nexuserrors.NewValidationException("validation failed", errs), "")
	}
	return Continue()
}

func itemKey(idx int, field string) string {
	return field + "[" + strconv.Itoa(idx) + "]"
}
