package nexusstore

// WritePolicy selects how a save/delete is applied to the cache and routed
// to the backend's sync mechanism. A per-call policy (see WithPolicy)
// overrides the store's default.
type WritePolicy int

const (
	// CacheOnly applies the write locally; no sync is ever requested.
	CacheOnly WritePolicy = iota
	// CacheFirst applies the write locally, then fires a background sync
	// whose errors are discarded — the local write has already committed.
	CacheFirst
	// CacheAndNetwork applies the write locally, then awaits sync; sync
	// errors propagate to the caller even though the local write stays
	// committed.
	CacheAndNetwork
	// NetworkFirst has the same observable surface as CacheAndNetwork
	// (apply locally, await sync, propagate errors) but documents that
	// sync is the semantically primary half of the operation.
	NetworkFirst
)

func (p WritePolicy) String() string {
	switch p {
	case CacheOnly:
		return "cache_only"
	case CacheFirst:
		return "cache_first"
	case CacheAndNetwork:
		return "cache_and_network"
	case NetworkFirst:
		return "network_first"
	default:
		return "unknown"
	}
}

// awaitsSync reports whether the policy blocks the caller on Backend.Sync
// and propagates its error.
func (p WritePolicy) awaitsSync() bool {
	return p == CacheAndNetwork || p == NetworkFirst
}

// requestsSync reports whether the policy ever asks the backend to sync.
func (p WritePolicy) requestsSync() bool {
	return p != CacheOnly
}

// callOptions carries per-call overrides a caller can pass to Save/Delete
// and friends without changing the store's default policy.
type callOptions struct {
	policy    *WritePolicy
	tags      []string
}

// CallOption configures a single Save/SaveAll/Delete/DeleteAll call.
type CallOption func(*callOptions)

// WithPolicy overrides the store's default write policy for one call.
func WithPolicy(p WritePolicy) CallOption {
	return func(o *callOptions) { o.policy = &p }
}

// WithTags attaches cache tags to the item(s) touched by one call.
func WithTags(tags ...string) CallOption {
	return func(o *callOptions) { o.tags = tags }
}

func resolveOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, apply := range opts {
		apply(&o)
	}
	return o
}
