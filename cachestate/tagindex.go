package cachestate

// TagIndex maintains two mappings that must remain consistent at every
// step: tag -> set<ID> and id -> set<tag>. Every mutating method keeps both
// sides in sync so that, for any id and tag, `tag ∈ TagsOf(id)` iff
// `id ∈ IDsOf(tag)`.
type TagIndex[ID comparable] struct {
	byTag map[string]map[ID]struct{}
	byID  map[ID]map[string]struct{}
}

// NewTagIndex builds an empty index.
func NewTagIndex[ID comparable]() *TagIndex[ID] {
	return &TagIndex[ID]{
		byTag: make(map[string]map[ID]struct{}),
		byID:  make(map[ID]map[string]struct{}),
	}
}

// Add unions tags into both sides of the index for id. A no-op for an empty
// tags slice.
func (idx *TagIndex[ID]) Add(id ID, tags []string) {
	if len(tags) == 0 {
		return
	}
	ids, ok := idx.byID[id]
	if !ok {
		ids = make(map[string]struct{})
		idx.byID[id] = ids
	}
	for _, t := range tags {
		ids[t] = struct{}{}

		bucket, ok := idx.byTag[t]
		if !ok {
			bucket = make(map[ID]struct{})
			idx.byTag[t] = bucket
		}
		bucket[id] = struct{}{}
	}
}

// RemoveTags performs a set-difference of tags from id on both sides.
// Removing tags from an unknown id is a no-op.
func (idx *TagIndex[ID]) RemoveTags(id ID, tags []string) {
	ids, ok := idx.byID[id]
	if !ok {
		return
	}
	for _, t := range tags {
		delete(ids, t)
		if bucket, ok := idx.byTag[t]; ok {
			delete(bucket, id)
			if len(bucket) == 0 {
				delete(idx.byTag, t)
			}
		}
	}
	if len(ids) == 0 {
		delete(idx.byID, id)
	}
}

// RemoveID purges id from every tag bucket and from the id map. A no-op on
// an unknown id.
func (idx *TagIndex[ID]) RemoveID(id ID) {
	tags, ok := idx.byID[id]
	if !ok {
		return
	}
	for t := range tags {
		if bucket, ok := idx.byTag[t]; ok {
			delete(bucket, id)
			if len(bucket) == 0 {
				delete(idx.byTag, t)
			}
		}
	}
	delete(idx.byID, id)
}

// TagsOf returns the tags currently associated with id.
func (idx *TagIndex[ID]) TagsOf(id ID) []string {
	tags, ok := idx.byID[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(tags))
	for t := range tags {
		out = append(out, t)
	}
	return out
}

// IDsOf returns the ids currently tagged with t.
func (idx *TagIndex[ID]) IDsOf(t string) []ID {
	bucket, ok := idx.byTag[t]
	if !ok {
		return nil
	}
	out := make([]ID, 0, len(bucket))
	for id := range bucket {
		out = append(out, id)
	}
	return out
}

// AllTags enumerates every tag with a non-empty id bucket.
func (idx *TagIndex[ID]) AllTags() []string {
	out := make([]string, 0, len(idx.byTag))
	for t := range idx.byTag {
		out = append(out, t)
	}
	return out
}

// AllIDs enumerates every id with a non-empty tag set.
func (idx *TagIndex[ID]) AllIDs() []ID {
	out := make([]ID, 0, len(idx.byID))
	for id := range idx.byID {
		out = append(out, id)
	}
	return out
}

// ByAny returns the union of id buckets for the given tags.
func (idx *TagIndex[ID]) ByAny(tags []string) []ID {
	seen := make(map[ID]struct{})
	for _, t := range tags {
		for id := range idx.byTag[t] {
			seen[id] = struct{}{}
		}
	}
	return setToSlice(seen)
}

// ByAll returns the intersection of id buckets for the given tags. An empty
// tags slice yields an empty result, not "match everything".
func (idx *TagIndex[ID]) ByAll(tags []string) []ID {
	if len(tags) == 0 {
		return nil
	}
	first, ok := idx.byTag[tags[0]]
	if !ok {
		return nil
	}
	result := make(map[ID]struct{}, len(first))
	for id := range first {
		result[id] = struct{}{}
	}
	for _, t := range tags[1:] {
		bucket := idx.byTag[t]
		for id := range result {
			if _, ok := bucket[id]; !ok {
				delete(result, id)
			}
		}
	}
	return setToSlice(result)
}

func setToSlice[ID comparable](set map[ID]struct{}) []ID {
	out := make([]ID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
