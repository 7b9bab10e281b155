package pagination

const (
	// DefaultLimit is the page size when a limit is not provided.
	DefaultLimit = 50
	// MaxLimit caps how many rows a listing can request.
	MaxLimit = 200
)

// NormalizeLimit enforces the default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
