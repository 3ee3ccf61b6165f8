package shell

import "github.com/perchhq/perch-sync/pkg/models"

// Reader is the read-only cache surface handed to views. Views render
// from it and return patches; they never write to the cache.
type Reader interface {
	Get(kind models.EntityKind, id string) (models.Snapshot, bool)
	Kind(kind models.EntityKind) []models.Snapshot
}

// View is a mounted surface. The shell forwards decoded events and
// async completions to the active view only; anything issued under an
// earlier generation is dropped before it reaches the view.
type View interface {
	// Name identifies the view in logs.
	Name() string

	// Mounted runs on the shell loop when the view becomes active.
	Mounted(cache Reader, generation uint64)

	// OnEvent receives each live event that survived the generation
	// gate, after its snapshots were merged into the cache.
	OnEvent(evt models.Event)
}

// Patch is a view update produced by an async operation. It runs on
// the shell loop against the view that was active when the operation
// was issued, or not at all.
type Patch func(View)
