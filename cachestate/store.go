package cachestate

import "time"

// Store composes a TagIndex with the Entry records it tags: saving
// refreshes an entry's CachedAt/tags, and invalidation only ever marks
// entries stale — it never removes tags or entries from the index.
type Store[ID comparable] struct {
	index   *TagIndex[ID]
	entries map[ID]Entry[ID]
}

// NewStore builds an empty cache entry store.
func NewStore[ID comparable]() *Store[ID] {
	return &Store[ID]{index: NewTagIndex[ID](), entries: make(map[ID]Entry[ID])}
}

// Save records id as freshly cached at now with the given tags, refreshing
// CachedAt and clearing StaleAt on an existing entry.
func (s *Store[ID]) Save(id ID, now time.Time, tags []string) Entry[ID] {
	entry, ok := s.entries[id]
	if !ok {
		entry = NewEntry(id, now, nil)
	}
	entry = entry.Refresh(now).WithTags(tags)
	s.entries[id] = entry
	s.index.Add(id, tags)
	return entry
}

// Get returns the entry for id, if any.
func (s *Store[ID]) Get(id ID) (Entry[ID], bool) {
	e, ok := s.entries[id]
	return e, ok
}

// Remove deletes id's entry and purges it from the tag index.
func (s *Store[ID]) Remove(id ID) {
	delete(s.entries, id)
	s.index.RemoveID(id)
}

// AddTags unions tags onto id's entry and the tag index. A no-op if id has
// no entry.
func (s *Store[ID]) AddTags(id ID, tags []string) {
	entry, ok := s.entries[id]
	if !ok {
		return
	}
	s.entries[id] = entry.WithTags(tags)
	s.index.Add(id, tags)
}

// RemoveTags removes tags from id's entry and the tag index. A no-op if id
// has no entry.
func (s *Store[ID]) RemoveTags(id ID, tags []string) {
	entry, ok := s.entries[id]
	if !ok {
		return
	}
	s.entries[id] = entry.WithoutTags(tags)
	s.index.RemoveTags(id, tags)
}

// InvalidateByTags marks every entry tagged with any of tags stale as of
// now. It never removes tags or entries, only sets StaleAt.
func (s *Store[ID]) InvalidateByTags(tags []string, now time.Time) []ID {
	ids := s.index.ByAny(tags)
	return s.invalidate(ids, now)
}

// InvalidateByIDs marks the given entries stale as of now.
func (s *Store[ID]) InvalidateByIDs(ids []ID, now time.Time) []ID {
	return s.invalidate(ids, now)
}

func (s *Store[ID]) invalidate(ids []ID, now time.Time) []ID {
	affected := make([]ID, 0, len(ids))
	for _, id := range ids {
		entry, ok := s.entries[id]
		if !ok {
			continue
		}
		s.entries[id] = entry.MarkStale(now)
		affected = append(affected, id)
	}
	return affected
}

// Tags returns the tags for id.
func (s *Store[ID]) Tags(id ID) []string { return s.index.TagsOf(id) }

// AllEntries returns every tracked entry (order is not significant).
func (s *Store[ID]) AllEntries() []Entry[ID] {
	out := make([]Entry[ID], 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out
}

// Stats computes CacheStats over every tracked entry as of now.
func (s *Store[ID]) Stats(now time.Time) Stats {
	return StatsFrom(s.AllEntries(), now)
}
