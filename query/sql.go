package query

import (
	"fmt"
	"strings"
)

// Dialect selects the WHERE-clause shape a Translator produces.
type Dialect int

const (
	DialectPlain Dialect = iota
	DialectCRDTTombstone
)

// Translator renders a Plan into SQL shared by every SQL-style backend.
// AliasMap optionally remaps field names to column names; fields absent
// from AliasMap pass through unchanged.
type Translator struct {
	AliasMap map[string]string
	Dialect  Dialect
}

// NewTranslator builds a Translator for dialect with an optional alias map.
func NewTranslator(dialect Dialect, aliasMap map[string]string) Translator {
	return Translator{AliasMap: aliasMap, Dialect: dialect}
}

// ToSelectSQL renders a SELECT ... FROM table statement for plan.
// includeTombstoneFilter only matters for DialectCRDTTombstone: when true,
// "is_deleted = 0" is ANDed into the WHERE clause.
func (t Translator) ToSelectSQL(table string, plan Plan, includeTombstoneFilter bool) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT * FROM %s", table)

	where, args := t.whereClause(plan.Where)
	if t.Dialect == DialectCRDTTombstone && includeTombstoneFilter {
		if where == "" {
			where = "is_deleted = 0"
		} else {
			where = "is_deleted = 0 AND " + where
		}
	}
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}

	if clause := orderByClause(plan.OrderBy, t.column); clause != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(clause)
	}
	if plan.Limit != nil {
		fmt.Fprintf(&b, " LIMIT %d", *plan.Limit)
	}
	if plan.Offset != nil {
		fmt.Fprintf(&b, " OFFSET %d", *plan.Offset)
	}

	return b.String(), args
}

// ToDeleteSQL renders a DELETE FROM table statement for plan. The
// tombstone predicate is never added to DELETE statements, even under
// DialectCRDTTombstone — deleting is how a tombstone gets created.
func (t Translator) ToDeleteSQL(table string, plan Plan) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "DELETE FROM %s", table)

	where, args := t.whereClause(plan.Where)
	if where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(where)
	}
	return b.String(), args
}

func (t Translator) column(field string) string {
	if alias, ok := t.AliasMap[field]; ok {
		return alias
	}
	return field
}

func (t Translator) whereClause(expr *Expression) (string, []any) {
	if expr == nil {
		return "", nil
	}
	switch expr.Kind {
	case KindAnd:
		return t.joinChildren(expr.Children, "AND")
	case KindOr:
		return t.joinChildren(expr.Children, "OR")
	case KindNot:
		inner, args := t.whereClause(expr.Children[0])
		return "NOT (" + inner + ")", args
	default:
		return t.filterSQL(expr.Filter)
	}
}

func (t Translator) joinChildren(children []*Expression, joiner string) (string, []any) {
	parts := make([]string, 0, len(children))
	var args []any
	for _, c := range children {
		sql, a := t.whereClause(c)
		parts = append(parts, "("+sql+")")
		args = append(args, a...)
	}
	return strings.Join(parts, " "+joiner+" "), args
}

func (t Translator) filterSQL(f Filter) (string, []any) {
	col := t.column(f.Field)

	switch f.Op {
	case Eq:
		return col + " = ?", []any{f.Value}
	case Ne:
		return col + " != ?", []any{f.Value}
	case Lt:
		return col + " < ?", []any{f.Value}
	case Le:
		return col + " <= ?", []any{f.Value}
	case Gt:
		return col + " > ?", []any{f.Value}
	case Ge:
		return col + " >= ?", []any{f.Value}
	case In:
		return inClauseSQL(col, f.Value, false)
	case NotIn:
		return inClauseSQL(col, f.Value, true)
	case IsNull:
		return col + " IS NULL", nil
	case IsNotNull:
		return col + " IS NOT NULL", nil
	case Contains:
		return col + " LIKE ?", []any{"%" + fmt.Sprint(f.Value) + "%"}
	case StartsWith:
		return col + " LIKE ?", []any{fmt.Sprint(f.Value) + "%"}
	case EndsWith:
		return col + " LIKE ?", []any{"%" + fmt.Sprint(f.Value)}
	case ArrayContains:
		return col + " LIKE ?", []any{"%" + fmt.Sprint(f.Value) + "%"}
	case ArrayContainsAny:
		return arrayContainsAnySQL(col, f.Value)
	default:
		return "1 = 1", nil
	}
}

func inClauseSQL(col string, value any, negate bool) (string, []any) {
	items := toSlice(value)
	if len(items) == 0 {
		if negate {
			return "1 = 1", nil
		}
		return "1 = 0", nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(items)), ", ")
	verb := "IN"
	if negate {
		verb = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", col, verb, placeholders), items
}

func arrayContainsAnySQL(col string, value any) (string, []any) {
	items := toSlice(value)
	if len(items) == 0 {
		return "1 = 0", nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(items)), ", ")
	sql := fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(%s) WHERE value IN (%s))", col, placeholders)
	return sql, items
}

func orderByClause(orderBy []OrderBy, column func(string) string) string {
	if len(orderBy) == 0 {
		return ""
	}
	parts := make([]string, len(orderBy))
	for i, ob := range orderBy {
		dir := "ASC"
		if ob.Descending {
			dir = "DESC"
		}
		parts[i] = column(ob.Field) + " " + dir
	}
	return strings.Join(parts, ", ")
}
