package query

// ExprKind discriminates an Expression node.
type ExprKind int

const (
	KindComparison ExprKind = iota
	KindAnd
	KindOr
	KindNot
)

// Expression is the tagged predicate tree: a Comparison leaf, or an
// And/Or/Not combinator over child expressions.
type Expression struct {
	Kind     ExprKind
	Filter   Filter
	Children []*Expression
}

// Cmp builds a Comparison leaf.
func Cmp(field string, op Operator, value any) *Expression {
	return &Expression{Kind: KindComparison, Filter: Filter{Field: field, Op: op, Value: value}}
}

// And combines expressions with short-circuit conjunction. A single
// expression is returned unwrapped; zero expressions match everything.
func And(exprs ...*Expression) *Expression {
	exprs = nonNil(exprs)
	if len(exprs) == 1 {
		return exprs[0]
	}
	return &Expression{Kind: KindAnd, Children: exprs}
}

// Or combines expressions with short-circuit disjunction.
func Or(exprs ...*Expression) *Expression {
	exprs = nonNil(exprs)
	if len(exprs) == 1 {
		return exprs[0]
	}
	return &Expression{Kind: KindOr, Children: exprs}
}

// Not negates e.
func Not(e *Expression) *Expression {
	return &Expression{Kind: KindNot, Children: []*Expression{e}}
}

func nonNil(exprs []*Expression) []*Expression {
	out := exprs[:0:0]
	for _, e := range exprs {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}
