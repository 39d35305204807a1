package nexuserrors

import "strings"

// MapSQLError classifies a raw SQL driver error into the Nexus Store error
// taxonomy. It is a service offered to SQL-backed adapters (SQLite/CRDT
// backends) which live outside this core; the mapping itself is the
// core's responsibility since every such adapter needs to agree on the
// same classification.
func MapSQLError(message string, cause error) error {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "unique") || strings.Contains(lower, "uniqueviolation"):
		return &ValidationError{Message: message, Cause: cause}
	case strings.Contains(lower, "foreign key") || strings.Contains(lower, "foreignkeyviolation"):
		return &ValidationError{Message: message, Cause: cause}
	case strings.Contains(lower, "database is locked") || strings.Contains(lower, "busy"):
		return &TransactionError{Message: message, Cause: cause}
	case strings.Contains(lower, "no such table"):
		return &StateError{CurrentState: "table_missing", ExpectedState: "table_exists", Cause: cause}
	default:
		return &SyncError{Message: message, Cause: cause}
	}
}
