package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	Name  string
	Price float64
	Tags  []string
	Seen  time.Time
}

func fieldOf(w widget, field string) any {
	switch field {
	case "name":
		return w.Name
	case "price":
		return w.Price
	case "tags":
		return w.Tags
	case "seen":
		return w.Seen
	default:
		return nil
	}
}

func widgets() []widget {
	now := time.Now()
	return []widget{
		{Name: "anvil", Price: 30, Tags: []string{"heavy", "steel"}, Seen: now.Add(-2 * time.Hour)},
		{Name: "feather", Price: 1, Tags: []string{"light"}, Seen: now.Add(-1 * time.Hour)},
		{Name: "gear", Price: 15, Tags: []string{"steel", "round"}, Seen: now},
	}
}

func TestEvaluatorFiltersByEquality(t *testing.T) {
	ev := NewEvaluator(fieldOf)
	q := New[widget]().Where(Filter{Field: "name", Op: Eq, Value: "gear"})
	got := ev.Evaluate(widgets(), q)
	assert.Len(t, got, 1)
	assert.Equal(t, "gear", got[0].Name)
}

func TestEvaluatorMultipleFiltersAreConjunction(t *testing.T) {
	ev := NewEvaluator(fieldOf)
	q := New[widget]().Where(
		Filter{Field: "price", Op: Ge, Value: 10.0},
		Filter{Field: "tags", Op: ArrayContains, Value: "steel"},
	)
	got := ev.Evaluate(widgets(), q)
	names := []string{}
	for _, w := range got {
		names = append(names, w.Name)
	}
	assert.ElementsMatch(t, []string{"anvil", "gear"}, names)
}

func TestEvaluatorOrExpression(t *testing.T) {
	ev := NewEvaluator(fieldOf)
	q := New[widget]().WhereExpr(Or(
		Cmp("name", Eq, "anvil"),
		Cmp("name", Eq, "feather"),
	))
	got := ev.Evaluate(widgets(), q)
	assert.Len(t, got, 2)
}

func TestEvaluatorNotExpression(t *testing.T) {
	ev := NewEvaluator(fieldOf)
	q := New[widget]().WhereExpr(Not(Cmp("name", Eq, "anvil")))
	got := ev.Evaluate(widgets(), q)
	assert.Len(t, got, 2)
	for _, w := range got {
		assert.NotEqual(t, "anvil", w.Name)
	}
}

func TestEvaluatorOrderByLimitOffset(t *testing.T) {
	ev := NewEvaluator(fieldOf)
	q := New[widget]().OrderByField("price", false).Offset(1).Limit(1)
	got := ev.Evaluate(widgets(), q)
	require := assert.New(t)
	require.Len(got, 1)
	require.Equal("gear", got[0].Name) // sorted asc: feather(1) gear(15) anvil(30); offset 1 -> gear, limit 1
}

func TestEvaluatorStartsWithEndsWithContains(t *testing.T) {
	ev := NewEvaluator(fieldOf)
	items := widgets()

	got := ev.Evaluate(items, New[widget]().Where(Filter{Field: "name", Op: StartsWith, Value: "an"}))
	assert.Len(t, got, 1)

	got = ev.Evaluate(items, New[widget]().Where(Filter{Field: "name", Op: EndsWith, Value: "er"}))
	assert.Len(t, got, 1)
	assert.Equal(t, "feather", got[0].Name)
}

func TestEvaluatorInNotIn(t *testing.T) {
	ev := NewEvaluator(fieldOf)
	items := widgets()

	got := ev.Evaluate(items, New[widget]().Where(Filter{Field: "name", Op: In, Value: []string{"anvil", "gear"}}))
	assert.Len(t, got, 2)

	got = ev.Evaluate(items, New[widget]().Where(Filter{Field: "name", Op: NotIn, Value: []string{"anvil", "gear"}}))
	assert.Len(t, got, 1)
	assert.Equal(t, "feather", got[0].Name)
}

func TestEvaluatorArrayContainsAny(t *testing.T) {
	ev := NewEvaluator(fieldOf)
	items := widgets()
	got := ev.Evaluate(items, New[widget]().Where(Filter{Field: "tags", Op: ArrayContainsAny, Value: []string{"light", "round"}}))
	assert.Len(t, got, 2)
}

func TestEvaluatorNullOrdering(t *testing.T) {
	type row struct{ Val any }
	items := []row{{Val: 2}, {Val: nil}, {Val: 1}}
	ev := NewEvaluator(func(r row, field string) any { return r.Val })
	q := New[row]().OrderByField("val", false)
	got := ev.Evaluate(items, q)
	assert.Nil(t, got[0].Val)
	assert.Equal(t, 1, got[1].Val)
	assert.Equal(t, 2, got[2].Val)
}

func TestTranslatorPlainSelect(t *testing.T) {
	tr := NewTranslator(DialectPlain, nil)
	q := New[widget]().Where(Filter{Field: "name", Op: Eq, Value: "gear"}).OrderByField("price", true).Limit(10).Offset(5)
	sql, args := tr.ToSelectSQL("widgets", q.Plan(), true)
	assert.Equal(t, "SELECT * FROM widgets WHERE name = ? ORDER BY price DESC LIMIT 10 OFFSET 5", sql)
	assert.Equal(t, []any{"gear"}, args)
}

func TestTranslatorCRDTPrefixesTombstoneFilter(t *testing.T) {
	tr := NewTranslator(DialectCRDTTombstone, nil)
	q := New[widget]().Where(Filter{Field: "name", Op: Eq, Value: "gear"})
	sql, _ := tr.ToSelectSQL("widgets", q.Plan(), true)
	assert.Equal(t, "SELECT * FROM widgets WHERE is_deleted = 0 AND name = ?", sql)
}

func TestTranslatorDeleteNeverGetsTombstoneFilter(t *testing.T) {
	tr := NewTranslator(DialectCRDTTombstone, nil)
	q := New[widget]().Where(Filter{Field: "name", Op: Eq, Value: "gear"})
	sql, _ := tr.ToDeleteSQL("widgets", q.Plan())
	assert.Equal(t, "DELETE FROM widgets WHERE name = ?", sql)
}

func TestTranslatorEmptyInNotIn(t *testing.T) {
	tr := NewTranslator(DialectPlain, nil)

	q := New[widget]().Where(Filter{Field: "name", Op: In, Value: []string{}})
	sql, _ := tr.ToSelectSQL("widgets", q.Plan(), false)
	assert.Contains(t, sql, "1 = 0")

	q = New[widget]().Where(Filter{Field: "name", Op: NotIn, Value: []string{}})
	sql, _ = tr.ToSelectSQL("widgets", q.Plan(), false)
	assert.Contains(t, sql, "1 = 1")
}

func TestTranslatorArrayContainsAny(t *testing.T) {
	tr := NewTranslator(DialectPlain, nil)
	q := New[widget]().Where(Filter{Field: "tags", Op: ArrayContainsAny, Value: []string{"a", "b"}})
	sql, args := tr.ToSelectSQL("widgets", q.Plan(), false)
	assert.Contains(t, sql, "json_each(tags)")
	assert.Equal(t, []any{"a", "b"}, args)
}

func TestTranslatorAliasMap(t *testing.T) {
	tr := NewTranslator(DialectPlain, map[string]string{"name": "display_name"})
	q := New[widget]().Where(Filter{Field: "name", Op: Eq, Value: "gear"})
	sql, _ := tr.ToSelectSQL("widgets", q.Plan(), false)
	assert.Contains(t, sql, "display_name = ?")
}

func TestCursorDecodeEncodeRoundTrips(t *testing.T) {
	c := Cursor{"_index": 3.0, "tag": "steel"}

	encoded, err := c.Encode()
	require.NoError(t, err)

	decoded, err := DecodeCursor(encoded)
	require.NoError(t, err)
	assert.Equal(t, c, decoded)

	reEncoded, err := decoded.Encode()
	require.NoError(t, err)
	assert.Equal(t, encoded, reEncoded)
}

func TestCursorEncodeIsStableAcrossKeyOrder(t *testing.T) {
	a := Cursor{"_index": 1.0, "tag": "steel"}
	b := Cursor{"tag": "steel", "_index": 1.0}

	encodedA, err := a.Encode()
	require.NoError(t, err)
	encodedB, err := b.Encode()
	require.NoError(t, err)
	assert.Equal(t, encodedA, encodedB)
}
