package nexusstore

import (
	"github.com/evalgo-org/nexus-store/query"
)

// PageInfo describes a page's position within a materialized list.
type PageInfo struct {
	HasNext     bool
	HasPrev     bool
	StartCursor *query.Cursor
	EndCursor   *query.Cursor
	TotalCount  *int
}

// PagedResult pairs a page of items with its PageInfo.
type PagedResult[E any] struct {
	Items    []E
	PageInfo PageInfo
}

// paginate implements the default cursor-based pagination contract: the
// cursor's "_index" key selects a clamped numeric offset into the
// already-materialized, already-sorted list, and first_count (falling
// back to limit) bounds the slice taken from it.
func paginate[E any](all []E, q query.Query[E]) PagedResult[E] {
	start := startIndex(q, len(all))
	count := pageSize(q)

	end := start + count
	if end > len(all) || count < 0 {
		end = len(all)
	}
	if end < start {
		end = start
	}

	items := append([]E{}, all[start:end]...)
	total := len(all)

	info := PageInfo{
		HasNext:    end < len(all),
		HasPrev:    start > 0,
		TotalCount: &total,
	}
	if len(items) > 0 {
		c := query.Cursor{"_index": start}
		info.StartCursor = &c
	}
	if info.HasNext {
		c := query.Cursor{"_index": end}
		info.EndCursor = &c
	}

	return PagedResult[E]{Items: items, PageInfo: info}
}

func startIndex[E any](q query.Query[E], total int) int {
	cursor, ok := q.AfterCursor()
	if !ok {
		return 0
	}
	idx := cursorIndex(cursor)
	return clamp(idx, 0, total)
}

func pageSize[E any](q query.Query[E]) int {
	if n, ok := q.FirstCount(); ok {
		return n
	}
	if n, ok := q.LimitValue(); ok {
		return n
	}
	return -1 // unbounded: caller clamps to len(all)
}

func cursorIndex(c query.Cursor) int {
	v, ok := c["_index"]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
