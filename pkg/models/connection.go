package models

// Edge pairs a node with the opaque cursor that anchors it in the
// originating query's order.
type Edge[T any] struct {
	Node   T      `json:"node"`
	Cursor string `json:"cursor"`
}

// PageInfo describes the boundaries of a materialized window.
//
// HasNextPage and HasPreviousPage reflect what the originating query
// reported beyond the window; the client never infers totals.
type PageInfo struct {
	HasPreviousPage bool   `json:"has_previous_page"`
	HasNextPage     bool   `json:"has_next_page"`
	StartCursor     string `json:"start_cursor,omitempty"`
	EndCursor       string `json:"end_cursor,omitempty"`
}

// Connection is a cursor-paginated window over an ordered server list.
//
// Cursors are opaque tokens only meaningful to the originating query. A
// cursor anchors to the node that was current at issue time; inserts
// elsewhere in the order never shift its meaning (keyset semantics, not
// offsets).
type Connection[T any] struct {
	Edges    []Edge[T] `json:"edges"`
	PageInfo PageInfo  `json:"page_info"`
}

// Nodes returns the window's nodes in order.
func (c Connection[T]) Nodes() []T {
	nodes := make([]T, len(c.Edges))
	for i, e := range c.Edges {
		nodes[i] = e.Node
	}
	return nodes
}

// Empty reports whether the window holds no edges.
func (c Connection[T]) Empty() bool {
	return len(c.Edges) == 0
}
