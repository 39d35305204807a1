package query

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// FieldOf resolves a named field of item to its comparable value.
type FieldOf[E any] func(item E, field string) any

// Evaluator runs a Query[E] against an in-memory slice.
type Evaluator[E any] struct {
	FieldOf FieldOf[E]
}

// NewEvaluator builds an Evaluator using fieldOf to resolve field values.
func NewEvaluator[E any](fieldOf FieldOf[E]) Evaluator[E] {
	return Evaluator[E]{FieldOf: fieldOf}
}

// Evaluate applies q's predicate, ordering, offset, and limit to items.
func (ev Evaluator[E]) Evaluate(items []E, q Query[E]) []E {
	filtered := make([]E, 0, len(items))
	for _, item := range items {
		if ev.matches(item, q.Expression()) {
			filtered = append(filtered, item)
		}
	}

	orderBys := q.OrderBys()
	if len(orderBys) > 0 {
		sort.SliceStable(filtered, func(i, j int) bool {
			for _, ob := range orderBys {
				a := ev.FieldOf(filtered[i], ob.Field)
				b := ev.FieldOf(filtered[j], ob.Field)
				c := compare(a, b)
				if c == 0 {
					continue
				}
				if ob.Descending {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	if offset, ok := q.OffsetValue(); ok && offset > 0 {
		if offset >= len(filtered) {
			filtered = filtered[:0]
		} else {
			filtered = filtered[offset:]
		}
	}

	limit, hasLimit := q.LimitValue()
	if !hasLimit {
		limit, hasLimit = q.FirstCount()
	}
	if hasLimit && limit < len(filtered) {
		filtered = filtered[:limit]
	}

	return filtered
}

// matches evaluates expr (nil matches everything) against item.
func (ev Evaluator[E]) matches(item E, expr *Expression) bool {
	if expr == nil {
		return true
	}
	switch expr.Kind {
	case KindAnd:
		for _, c := range expr.Children {
			if !ev.matches(item, c) {
				return false
			}
		}
		return true
	case KindOr:
		for _, c := range expr.Children {
			if ev.matches(item, c) {
				return true
			}
		}
		return false
	case KindNot:
		return !ev.matches(item, expr.Children[0])
	default:
		return ev.applyFilter(ev.FieldOf(item, expr.Filter.Field), expr.Filter)
	}
}

func (ev Evaluator[E]) applyFilter(fieldVal any, f Filter) bool {
	switch f.Op {
	case Eq:
		return compare(fieldVal, f.Value) == 0
	case Ne:
		return compare(fieldVal, f.Value) != 0
	case Lt:
		return compare(fieldVal, f.Value) < 0
	case Le:
		return compare(fieldVal, f.Value) <= 0
	case Gt:
		return compare(fieldVal, f.Value) > 0
	case Ge:
		return compare(fieldVal, f.Value) >= 0
	case In:
		return containsValue(toSlice(f.Value), fieldVal)
	case NotIn:
		return !containsValue(toSlice(f.Value), fieldVal)
	case IsNull:
		return isNil(fieldVal)
	case IsNotNull:
		return !isNil(fieldVal)
	case Contains:
		return strings.Contains(displayString(fieldVal), displayString(f.Value))
	case StartsWith:
		return strings.HasPrefix(displayString(fieldVal), displayString(f.Value))
	case EndsWith:
		return strings.HasSuffix(displayString(fieldVal), displayString(f.Value))
	case ArrayContains:
		return containsValue(toSlice(fieldVal), f.Value)
	case ArrayContainsAny:
		haystack := toSlice(fieldVal)
		for _, v := range toSlice(f.Value) {
			if containsValue(haystack, v) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}

func toSlice(v any) []any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func containsValue(haystack []any, needle any) bool {
	for _, v := range haystack {
		if compare(v, needle) == 0 {
			return true
		}
	}
	return false
}

func displayString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(v)
}

// compare orders a against b: <0, 0, >0. Nil sorts below any non-nil
// value. Numeric kinds compare by value; same-kind comparables (strings,
// times) compare naturally; anything else falls back to a lexicographic
// comparison of their display strings.
func compare(a, b any) int {
	aNil, bNil := isNil(a), isNil(b)
	if aNil && bNil {
		return 0
	}
	if aNil {
		return -1
	}
	if bNil {
		return 1
	}

	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}

	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return strings.Compare(as, bs)
		}
	}

	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}

	return strings.Compare(displayString(a), displayString(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
