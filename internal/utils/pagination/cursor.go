package pagination

// Cursor-based pagination over recency-ordered lists.
//
// The protocol's cursor is the id of the last item of the previous page.
// Repositories resolve that id back to its (sort key, id) position and seek
// past it, so pages stay stable while new rows arrive at the head.

// Trim applies the fetch-limit+1 pattern: callers query limit+1 rows, then
// Trim reports whether a further page exists and cuts the overflow row.
func Trim[T any](items []T, limit int) ([]T, bool) {
	if limit > 0 && len(items) > limit {
		return items[:limit], true
	}
	return items, false
}

// NextCursor returns the cursor for the next page: the id of the last
// returned item, or empty when no further page exists.
func NextCursor[T any](items []T, hasMore bool, id func(T) string) string {
	if !hasMore || len(items) == 0 {
		return ""
	}
	return id(items[len(items)-1])
}
