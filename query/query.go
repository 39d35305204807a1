package query

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// OrderBy is one sort key, applied in the order given on the Query.
type OrderBy struct {
	Field      string
	Descending bool
}

// Cursor is an opaque positional marker. Internally a key-value map; the
// default pagination implementation uses the "_index" key. Callers that
// need to carry a Cursor across a process boundary use Encode/Decode
// rather than inspecting the map directly.
type Cursor map[string]any

// Encode renders c as an opaque, stable string. json.Marshal sorts map
// keys, so the same cursor contents always produce the same bytes.
func (c Cursor) Encode() (string, error) {
	raw, err := json.Marshal(map[string]any(c))
	if err != nil {
		return "", fmt.Errorf("query: encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeCursor parses a string produced by Cursor.Encode. Numeric values
// decode as float64, per encoding/json's default map[string]any behavior.
func DecodeCursor(s string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("query: decode cursor: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("query: decode cursor: %w", err)
	}
	return c, nil
}

// Query[E] is an immutable builder: every composition method returns a new
// value. An empty Query matches every item.
type Query[E any] struct {
	where      *Expression
	orderBy    []OrderBy
	limit      *int
	offset     *int
	firstCount *int
	after      *Cursor
	before     *Cursor
}

// New returns an empty Query matching everything.
func New[E any]() Query[E] { return Query[E]{} }

// Where ANDs the given filters onto any existing predicate.
func (q Query[E]) Where(filters ...Filter) Query[E] {
	exprs := make([]*Expression, 0, len(filters)+1)
	if q.where != nil {
		exprs = append(exprs, q.where)
	}
	for _, f := range filters {
		exprs = append(exprs, &Expression{Kind: KindComparison, Filter: f})
	}
	q.where = And(exprs...)
	return q
}

// WhereExpr ANDs an arbitrary expression tree onto any existing predicate.
func (q Query[E]) WhereExpr(expr *Expression) Query[E] {
	if expr == nil {
		return q
	}
	if q.where == nil {
		q.where = expr
	} else {
		q.where = And(q.where, expr)
	}
	return q
}

// OrderByField appends a sort key.
func (q Query[E]) OrderByField(field string, descending bool) Query[E] {
	q.orderBy = append(append([]OrderBy{}, q.orderBy...), OrderBy{Field: field, Descending: descending})
	return q
}

// Limit caps the result count.
func (q Query[E]) Limit(n int) Query[E] {
	q.limit = &n
	return q
}

// Offset skips the first n results (post-sort).
func (q Query[E]) Offset(n int) Query[E] {
	q.offset = &n
	return q
}

// First sets a paging-aware result count (see the pagination helpers in
// package nexusstore).
func (q Query[E]) First(n int) Query[E] {
	q.firstCount = &n
	return q
}

// After sets the cursor results must follow.
func (q Query[E]) After(c Cursor) Query[E] {
	q.after = &c
	return q
}

// Before sets the cursor results must precede.
func (q Query[E]) Before(c Cursor) Query[E] {
	q.before = &c
	return q
}

func (q Query[E]) Expression() *Expression    { return q.where }
func (q Query[E]) OrderBys() []OrderBy        { return q.orderBy }
func (q Query[E]) LimitValue() (int, bool)    { return deref(q.limit) }
func (q Query[E]) OffsetValue() (int, bool)   { return deref(q.offset) }
func (q Query[E]) FirstCount() (int, bool)    { return deref(q.firstCount) }
func (q Query[E]) AfterCursor() (Cursor, bool) {
	if q.after == nil {
		return nil, false
	}
	return *q.after, true
}
func (q Query[E]) BeforeCursor() (Cursor, bool) {
	if q.before == nil {
		return nil, false
	}
	return *q.before, true
}

func deref(p *int) (int, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Plan is the entity-independent shape a Translator consumes: every field
// of a Query except its type parameter.
type Plan struct {
	Where   *Expression
	OrderBy []OrderBy
	Limit   *int
	Offset  *int
}

// Plan extracts the entity-independent parts of q for SQL translation.
func (q Query[E]) Plan() Plan {
	return Plan{Where: q.where, OrderBy: q.orderBy, Limit: q.limit, Offset: q.offset}
}
