package cache

import (
	"testing"
	"time"

	"github.com/perchhq/perch-sync/pkg/models"
)

func TestPutLastWriteWinsPerID(t *testing.T) {
	s := New()

	s.Put(models.Post{ID: "p1", Body: "first"})
	s.Put(models.Post{ID: "p2", Body: "other"})
	s.Put(models.Post{ID: "p1", Body: "second"})

	got, ok := s.Get(models.KindPost, "p1")
	if !ok {
		t.Fatal("p1 missing after puts")
	}
	if got.(models.Post).Body != "second" {
		t.Errorf("p1 body = %q, want last write", got.(models.Post).Body)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestPutIdempotent(t *testing.T) {
	s := New()
	snap := models.Group{ID: "g1", Name: "general", UpdatedAt: time.Unix(100, 0)}

	s.Put(snap)
	s.Put(snap)

	if s.Len() != 1 {
		t.Fatalf("Len() = %d after duplicate put, want 1", s.Len())
	}
	got, _ := s.Get(models.KindGroup, "g1")
	if got.(models.Group) != snap {
		t.Error("stored snapshot differs after duplicate put")
	}
}

func TestPutStaleVersionSkipped(t *testing.T) {
	s := New()
	newer := models.Post{ID: "p1", Body: "newer", UpdatedAt: time.Unix(200, 0)}
	older := models.Post{ID: "p1", Body: "older", UpdatedAt: time.Unix(100, 0)}

	if !s.Put(newer) {
		t.Fatal("initial put not applied")
	}
	if s.Put(older) {
		t.Error("stale put reported as applied")
	}
	if s.Put(models.Post{ID: "p1", Body: "same", UpdatedAt: time.Unix(200, 0)}) {
		t.Error("equal-version put reported as applied")
	}

	got, _ := s.Get(models.KindPost, "p1")
	if got.(models.Post).Body != "newer" {
		t.Errorf("body = %q, want the newer snapshot retained", got.(models.Post).Body)
	}
}

func TestPutNoVersionLastWriteWins(t *testing.T) {
	// Entities without ordering metadata fall back to last-write-wins,
	// even if the write is logically older.
	s := New()
	s.Put(models.Post{ID: "p1", Body: "a"})
	if !s.Put(models.Post{ID: "p1", Body: "b"}) {
		t.Fatal("versionless overwrite not applied")
	}
	got, _ := s.Get(models.KindPost, "p1")
	if got.(models.Post).Body != "b" {
		t.Error("versionless entities should be last-write-wins")
	}
}

func TestPutManyCountsApplied(t *testing.T) {
	s := New()
	s.Put(models.Post{ID: "p1", UpdatedAt: time.Unix(300, 0)})

	applied := s.PutMany([]models.Snapshot{
		models.Post{ID: "p1", UpdatedAt: time.Unix(100, 0)}, // stale
		models.Post{ID: "p2", UpdatedAt: time.Unix(100, 0)},
		models.Reply{ID: "r1", PostID: "p2"},
		nil,
	})

	if applied != 2 {
		t.Errorf("PutMany applied = %d, want 2", applied)
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
}

func TestGetAbsentMeansNotLoaded(t *testing.T) {
	s := New()
	if _, ok := s.Get(models.KindUser, "u1"); ok {
		t.Error("Get on empty store returned a snapshot")
	}
	// Kinds are independent namespaces.
	s.Put(models.Post{ID: "x"})
	if _, ok := s.Get(models.KindReply, "x"); ok {
		t.Error("ID leaked across kinds")
	}
}

func TestOrderIndependentConvergence(t *testing.T) {
	// Non-conflicting IDs converge to the same state regardless of
	// interleaving: final state equals the last put per (kind, id).
	seqA := []models.Snapshot{
		models.Post{ID: "p1", Body: "1"},
		models.Post{ID: "p2", Body: "1"},
		models.Post{ID: "p1", Body: "2"},
	}
	seqB := []models.Snapshot{
		models.Post{ID: "p2", Body: "1"},
		models.Post{ID: "p1", Body: "1"},
		models.Post{ID: "p1", Body: "2"},
	}

	a, b := New(), New()
	for _, snap := range seqA {
		a.Put(snap)
	}
	for _, snap := range seqB {
		b.Put(snap)
	}

	for _, id := range []string{"p1", "p2"} {
		ga, _ := a.Get(models.KindPost, id)
		gb, _ := b.Get(models.KindPost, id)
		if ga != gb {
			t.Errorf("stores diverged for %s: %v vs %v", id, ga, gb)
		}
	}
}

func TestUnbookmarkIsSnapshotUpdateNotRemoval(t *testing.T) {
	s := New()
	s.Put(models.Group{ID: "g1", Name: "general", Bookmarked: true, UpdatedAt: time.Unix(100, 0)})
	s.Put(models.Group{ID: "g1", Name: "general", Bookmarked: false, UpdatedAt: time.Unix(200, 0)})

	got, ok := s.Get(models.KindGroup, "g1")
	if !ok {
		t.Fatal("group purged from cache on unbookmark")
	}
	if got.(models.Group).Bookmarked {
		t.Error("bookmark flag not flipped")
	}
}
