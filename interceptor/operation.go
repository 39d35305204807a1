// Package interceptor implements the ordered middleware pipeline every
// store operation runs through: forward on_request, the backend call,
// reverse on_response/on_error.
package interceptor

// Operation identifies which store call is in flight.
type Operation int

const (
	OpGet Operation = iota
	OpGetAll
	OpSave
	OpSaveAll
	OpDelete
	OpDeleteAll
	OpWatch
	OpWatchAll
	OpSync
)

func (op Operation) String() string {
	switch op {
	case OpGet:
		return "get"
	case OpGetAll:
		return "get_all"
	case OpSave:
		return "save"
	case OpSaveAll:
		return "save_all"
	case OpDelete:
		return "delete"
	case OpDeleteAll:
		return "delete_all"
	case OpWatch:
		return "watch"
	case OpWatchAll:
		return "watch_all"
	case OpSync:
		return "sync"
	default:
		return "unknown"
	}
}

// IsRead reports whether op only reads data.
func (op Operation) IsRead() bool {
	switch op {
	case OpGet, OpGetAll, OpWatch, OpWatchAll:
		return true
	default:
		return false
	}
}

// IsWrite reports whether op persists data.
func (op Operation) IsWrite() bool {
	switch op {
	case OpSave, OpSaveAll, OpDelete, OpDeleteAll:
		return true
	default:
		return false
	}
}

// IsStream reports whether op produces a long-lived subscription.
func (op Operation) IsStream() bool {
	return op == OpWatch || op == OpWatchAll
}

// IsDelete reports whether op removes data.
func (op Operation) IsDelete() bool {
	return op == OpDelete || op == OpDeleteAll
}

// IsSync reports whether op is a background reconciliation pass.
func (op Operation) IsSync() bool {
	return op == OpSync
}

// ModifiesData reports whether op changes persisted state (write or sync).
func (op Operation) ModifiesData() bool {
	return op.IsWrite() || op.IsSync()
}
