// Package cachestate implements the tag-indexed cache layer shared by every
// Nexus Store backend: per-id freshness metadata (Entry), a bidirectional
// tag↔id index (TagIndex), and aggregate freshness statistics (Stats).
package cachestate

import "time"

// Entry is the immutable per-id cache metadata record. It never tracks the
// cached value itself — that is the backend's concern — only when it was
// cached, whether it has been invalidated, and which tags it belongs to.
type Entry[ID comparable] struct {
	ID       ID
	CachedAt time.Time
	StaleAt  *time.Time
	Tags     map[string]struct{}
}

// NewEntry builds a fresh entry cached at the given time with the given tags.
func NewEntry[ID comparable](id ID, cachedAt time.Time, tags []string) Entry[ID] {
	return Entry[ID]{ID: id, CachedAt: cachedAt, Tags: tagSet(tags)}
}

// IsStale reports whether the entry was stale at instant now. An entry with
// no StaleAt is never stale. Monotonic: if stale at t1 it stays stale at
// every t2 > t1, since StaleAt never moves backward once set.
func (e Entry[ID]) IsStale(now time.Time) bool {
	return e.StaleAt != nil && !e.StaleAt.After(now)
}

// MarkStale returns a copy of e with StaleAt set to now.
func (e Entry[ID]) MarkStale(now time.Time) Entry[ID] {
	return e.copyWith(func(c *Entry[ID]) { c.StaleAt = &now })
}

// Refresh returns a copy of e re-cached at now with StaleAt cleared.
func (e Entry[ID]) Refresh(now time.Time) Entry[ID] {
	return e.copyWith(func(c *Entry[ID]) {
		c.CachedAt = now
		c.StaleAt = nil
	})
}

// WithTags returns a copy of e with tags unioned into its tag set.
func (e Entry[ID]) WithTags(tags []string) Entry[ID] {
	return e.copyWith(func(c *Entry[ID]) {
		for _, t := range tags {
			c.Tags[t] = struct{}{}
		}
	})
}

// WithoutTags returns a copy of e with tags removed from its tag set.
func (e Entry[ID]) WithoutTags(tags []string) Entry[ID] {
	return e.copyWith(func(c *Entry[ID]) {
		for _, t := range tags {
			delete(c.Tags, t)
		}
	})
}

// HasTag reports whether t is present on the entry.
func (e Entry[ID]) HasTag(t string) bool {
	_, ok := e.Tags[t]
	return ok
}

// TagList returns the entry's tags as a sorted-free slice (order is not
// significant to callers; TagIndex is the canonical set source).
func (e Entry[ID]) TagList() []string {
	out := make([]string, 0, len(e.Tags))
	for t := range e.Tags {
		out = append(out, t)
	}
	return out
}

func (e Entry[ID]) copyWith(mutate func(*Entry[ID])) Entry[ID] {
	cp := Entry[ID]{ID: e.ID, CachedAt: e.CachedAt, Tags: make(map[string]struct{}, len(e.Tags))}
	for t := range e.Tags {
		cp.Tags[t] = struct{}{}
	}
	if e.StaleAt != nil {
		staleAt := *e.StaleAt
		cp.StaleAt = &staleAt
	}
	mutate(&cp)
	return cp
}

// Equal reports whether e and other agree on every field, including tag
// set membership and stale-at presence/value.
func (e Entry[ID]) Equal(other Entry[ID]) bool {
	if e.ID != other.ID || !e.CachedAt.Equal(other.CachedAt) {
		return false
	}
	if (e.StaleAt == nil) != (other.StaleAt == nil) {
		return false
	}
	if e.StaleAt != nil && !e.StaleAt.Equal(*other.StaleAt) {
		return false
	}
	if len(e.Tags) != len(other.Tags) {
		return false
	}
	for t := range e.Tags {
		if !other.HasTag(t) {
			return false
		}
	}
	return true
}

func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return set
}
