package ckerr

// Exit codes partition cleanly per spec.md §7: 0 for success, a small
// positive code (1) for a search that found no matches, and distinct
// codes per failure kind so scripts driving `ck` can branch without
// parsing text.
const (
	ExitSuccess      = 0
	ExitNoMatches    = 1
	ExitInvalidQuery = 2
	ExitIndexMissing = 3
	ExitInternal     = 5
	ExitCancelled    = 130
)

// ExitCode maps an error's Kind to the process exit code cmd/ck returns.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	switch KindOf(err) {
	case KindCancelled:
		return ExitCancelled
	case KindInvalidQuery, KindInvalidPath:
		return ExitInvalidQuery
	case KindIndexSchema, KindIndexCorruption:
		return ExitIndexMissing
	default:
		return ExitInternal
	}
}
