package pagination

import (
	"fmt"
	"testing"

	"github.com/perchhq/perch-sync/pkg/models"
)

type node struct {
	id string
}

func cursorOf(n node) string { return "cur:" + n.id }

func nodes(ids ...string) []node {
	out := make([]node, len(ids))
	for i, id := range ids {
		out[i] = node{id: id}
	}
	return out
}

func ids(conn models.Connection[node]) []string {
	out := make([]string, len(conn.Edges))
	for i, e := range conn.Edges {
		out[i] = e.Node.id
	}
	return out
}

func TestForwardWindowExcludesAnchor(t *testing.T) {
	list := nodes("a", "b", "c", "d", "e")

	conn := Window(list, cursorOf, PageRequest{First: 2, After: "cur:b"})

	got := ids(conn)
	if fmt.Sprint(got) != "[c d]" {
		t.Fatalf("window = %v, want [c d]", got)
	}
	for _, e := range conn.Edges {
		if e.Cursor == "cur:b" {
			t.Error("anchor node included in its own after-window")
		}
	}
	if conn.PageInfo.StartCursor != "cur:c" {
		t.Errorf("startCursor = %q, want the node strictly following the anchor", conn.PageInfo.StartCursor)
	}
	if !conn.PageInfo.HasPreviousPage {
		t.Error("hasPreviousPage should be true when anchored mid-list")
	}
	if !conn.PageInfo.HasNextPage {
		t.Error("hasNextPage should be true with e beyond the window")
	}
}

func TestForwardWindowNoAnchor(t *testing.T) {
	list := nodes("a", "b", "c")

	conn := Window(list, cursorOf, PageRequest{First: 2})

	if fmt.Sprint(ids(conn)) != "[a b]" {
		t.Fatalf("window = %v, want [a b]", ids(conn))
	}
	if conn.PageInfo.HasPreviousPage {
		t.Error("hasPreviousPage true at list start")
	}
	if !conn.PageInfo.HasNextPage {
		t.Error("hasNextPage false with a node remaining")
	}
}

func TestBackwardWindowExcludesAnchor(t *testing.T) {
	list := nodes("a", "b", "c", "d", "e")

	conn := Window(list, cursorOf, PageRequest{Last: 2, Before: "cur:d"})

	if fmt.Sprint(ids(conn)) != "[b c]" {
		t.Fatalf("window = %v, want [b c]", ids(conn))
	}
	if !conn.PageInfo.HasPreviousPage {
		t.Error("hasPreviousPage false with a preceding the window")
	}
	if !conn.PageInfo.HasNextPage {
		t.Error("hasNextPage false when anchored before d")
	}
}

func TestWindowExhausted(t *testing.T) {
	list := nodes("a", "b")

	conn := Window(list, cursorOf, PageRequest{First: 10, After: "cur:b"})

	if !conn.Empty() {
		t.Fatalf("window past the end = %v, want empty", ids(conn))
	}
	if conn.PageInfo.HasNextPage {
		t.Error("hasNextPage true past the end")
	}
}

func TestCursorStableUnderInsert(t *testing.T) {
	// Keyset contract: inserting nodes elsewhere must not change which
	// nodes a previously issued cursor yields.
	list := nodes("a", "b", "c", "d")
	before := Window(list, cursorOf, PageRequest{First: 2, After: "cur:b"})

	grown := append(nodes("new1", "new2"), list...)
	after := Window(grown, cursorOf, PageRequest{First: 2, After: "cur:b"})

	if fmt.Sprint(ids(before)) != fmt.Sprint(ids(after)) {
		t.Errorf("cursor meaning shifted: %v -> %v", ids(before), ids(after))
	}
}

func TestMergePageInfo(t *testing.T) {
	conn := Window(nodes("a", "b"), cursorOf, PageRequest{First: 2})
	if conn.PageInfo.HasNextPage {
		t.Fatal("local window should be exhausted")
	}

	merged := MergePageInfo(conn, models.PageInfo{HasNextPage: true})
	if !merged.PageInfo.HasNextPage {
		t.Error("server-reported next page lost in merge")
	}
}

func TestPrepend(t *testing.T) {
	conn := Window(nodes("b", "c"), cursorOf, PageRequest{})

	conn = Prepend(conn, node{id: "a"}, "cur:a")

	if fmt.Sprint(ids(conn)) != "[a b c]" {
		t.Fatalf("after prepend = %v", ids(conn))
	}
	if conn.PageInfo.StartCursor != "cur:a" {
		t.Errorf("startCursor = %q after prepend", conn.PageInfo.StartCursor)
	}
}

func TestPrependIntoEmpty(t *testing.T) {
	var conn models.Connection[node]
	conn = Prepend(conn, node{id: "a"}, "cur:a")

	if conn.PageInfo.StartCursor != "cur:a" || conn.PageInfo.EndCursor != "cur:a" {
		t.Errorf("cursors = %q/%q, want both set", conn.PageInfo.StartCursor, conn.PageInfo.EndCursor)
	}
}

func TestInsertAfter(t *testing.T) {
	conn := Window(nodes("a", "c"), cursorOf, PageRequest{})

	conn = InsertAfter(conn, "cur:a", node{id: "b"}, "cur:b")
	if fmt.Sprint(ids(conn)) != "[a b c]" {
		t.Fatalf("after insert = %v", ids(conn))
	}

	// Unknown anchor appends.
	conn = InsertAfter(conn, "cur:zzz", node{id: "d"}, "cur:d")
	if fmt.Sprint(ids(conn)) != "[a b c d]" {
		t.Fatalf("after unknown-anchor insert = %v", ids(conn))
	}
	if conn.PageInfo.EndCursor != "cur:d" {
		t.Errorf("endCursor = %q after tail insert", conn.PageInfo.EndCursor)
	}
}
