// Package pagination materializes cursor-paginated windows over ordered
// server lists, following the keyset contract: a cursor anchors to the
// node it was issued against, never to an offset.
package pagination

import "github.com/perchhq/perch-sync/pkg/models"

// PageRequest selects a window in one direction.
//
// First/After walk forward: up to First nodes strictly following the
// After anchor. Last/Before walk backward: up to Last nodes strictly
// preceding the Before anchor. Zero First/Last means no size limit.
type PageRequest struct {
	First  int
	After  string
	Last   int
	Before string
}

// Backward reports whether the request walks toward older nodes.
func (r PageRequest) Backward() bool {
	return r.Before != "" || r.Last > 0
}

// Window builds a Connection over nodes, which must already be in the
// server's defined order. cursorOf derives the opaque cursor anchoring
// each node.
//
// A window built after cursor C never includes C's node, and its start
// cursor strictly follows C in server order. An anchor that no longer
// appears in nodes is treated as preceding the list start (forward) or
// following the list end (backward), so the caller still receives a
// stable, non-overlapping window.
//
// HasNextPage/HasPreviousPage reflect what lies beyond the materialized
// window within the supplied list; when the list itself is a server
// window, combine with the server-reported flags via MergePageInfo.
func Window[T any](nodes []T, cursorOf func(T) string, req PageRequest) models.Connection[T] {
	if req.Backward() {
		return backwardWindow(nodes, cursorOf, req)
	}
	return forwardWindow(nodes, cursorOf, req)
}

func forwardWindow[T any](nodes []T, cursorOf func(T) string, req PageRequest) models.Connection[T] {
	start := 0
	anchored := false
	if req.After != "" {
		if i, ok := indexOf(nodes, cursorOf, req.After); ok {
			start = i + 1
			anchored = true
		}
	}

	end := len(nodes)
	if req.First > 0 && start+req.First < end {
		end = start + req.First
	}

	conn := materialize(nodes[start:end], cursorOf)
	conn.PageInfo.HasPreviousPage = anchored || start > 0
	conn.PageInfo.HasNextPage = end < len(nodes)
	return conn
}

func backwardWindow[T any](nodes []T, cursorOf func(T) string, req PageRequest) models.Connection[T] {
	end := len(nodes)
	anchored := false
	if req.Before != "" {
		if i, ok := indexOf(nodes, cursorOf, req.Before); ok {
			end = i
			anchored = true
		}
	}

	start := 0
	if req.Last > 0 && end-req.Last > start {
		start = end - req.Last
	}

	conn := materialize(nodes[start:end], cursorOf)
	conn.PageInfo.HasPreviousPage = start > 0
	conn.PageInfo.HasNextPage = anchored || end < len(nodes)
	return conn
}

func indexOf[T any](nodes []T, cursorOf func(T) string, cursor string) (int, bool) {
	for i, n := range nodes {
		if cursorOf(n) == cursor {
			return i, true
		}
	}
	return 0, false
}

func materialize[T any](nodes []T, cursorOf func(T) string) models.Connection[T] {
	edges := make([]models.Edge[T], len(nodes))
	for i, n := range nodes {
		edges[i] = models.Edge[T]{Node: n, Cursor: cursorOf(n)}
	}
	conn := models.Connection[T]{Edges: edges}
	if len(edges) > 0 {
		conn.PageInfo.StartCursor = edges[0].Cursor
		conn.PageInfo.EndCursor = edges[len(edges)-1].Cursor
	}
	return conn
}

// MergePageInfo folds server-reported page flags into a locally built
// window. The local flags only know about nodes the client holds; the
// server knows whether more exist beyond them.
func MergePageInfo[T any](conn models.Connection[T], server models.PageInfo) models.Connection[T] {
	conn.PageInfo.HasPreviousPage = conn.PageInfo.HasPreviousPage || server.HasPreviousPage
	conn.PageInfo.HasNextPage = conn.PageInfo.HasNextPage || server.HasNextPage
	return conn
}

// Prepend inserts a node at the head of the window. Live merges of
// event-delivered nodes are a view decision, invoked explicitly; the
// window never rewrites itself.
func Prepend[T any](conn models.Connection[T], node T, cursor string) models.Connection[T] {
	edge := models.Edge[T]{Node: node, Cursor: cursor}
	conn.Edges = append([]models.Edge[T]{edge}, conn.Edges...)
	conn.PageInfo.StartCursor = cursor
	if conn.PageInfo.EndCursor == "" {
		conn.PageInfo.EndCursor = cursor
	}
	return conn
}

// Append adds a node at the tail of the window.
func Append[T any](conn models.Connection[T], node T, cursor string) models.Connection[T] {
	conn.Edges = append(conn.Edges, models.Edge[T]{Node: node, Cursor: cursor})
	conn.PageInfo.EndCursor = cursor
	if conn.PageInfo.StartCursor == "" {
		conn.PageInfo.StartCursor = cursor
	}
	return conn
}

// InsertAfter places a node immediately after the edge carrying the
// given cursor. An unknown cursor appends; an existing cursor for the
// inserted node is the caller's responsibility to keep unique.
func InsertAfter[T any](conn models.Connection[T], after string, node T, cursor string) models.Connection[T] {
	edge := models.Edge[T]{Node: node, Cursor: cursor}
	for i, e := range conn.Edges {
		if e.Cursor == after {
			conn.Edges = append(conn.Edges[:i+1], append([]models.Edge[T]{edge}, conn.Edges[i+1:]...)...)
			if i+1 == len(conn.Edges)-1 {
				conn.PageInfo.EndCursor = cursor
			}
			return conn
		}
	}
	return Append(conn, node, cursor)
}
