package shell

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/perchhq/perch-sync/internal/auth"
	"github.com/perchhq/perch-sync/internal/cache"
	"github.com/perchhq/perch-sync/internal/events"
	"github.com/perchhq/perch-sync/internal/presence"
	"github.com/perchhq/perch-sync/internal/store"
	"github.com/perchhq/perch-sync/pkg/models"
)

// recordingView captures everything the shell forwards.
type recordingView struct {
	name       string
	mountedGen uint64
	cache      Reader
	events     []models.Event
	patches    int
}

func (v *recordingView) Name() string { return v.name }

func (v *recordingView) Mounted(cache Reader, generation uint64) {
	v.cache = cache
	v.mountedGen = generation
}

func (v *recordingView) OnEvent(evt models.Event) {
	v.events = append(v.events, evt)
}

func newTestShell(t *testing.T) *Shell {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := &Shell{
		logger:  logger,
		cache:   cache.New(),
		tracker: presence.NewTracker(logger, nil),
		msgs:    make(chan message, 16),
	}
	s.dispatcher = events.New(s.cache, s, logger, nil)
	return s
}

// drain processes every queued message on the test goroutine, standing
// in for the loop.
func (s *Shell) drain() {
	for {
		select {
		case m := <-s.msgs:
			s.handle(m)
		default:
			return
		}
	}
}

const postCreatedRaw = `{
	"type": "post.created",
	"post": {"id": "p1", "group_id": "g1", "body": "hi", "state": "unread", "updated_at": "2025-06-01T12:00:00Z"}
}`

func TestMountInstallsView(t *testing.T) {
	s := newTestShell(t)
	v := &recordingView{name: "inbox"}

	gen := s.Mount(v)
	s.drain()

	if gen != 1 {
		t.Errorf("Mount generation = %d, want 1", gen)
	}
	if v.mountedGen != 1 {
		t.Errorf("view mounted at generation %d, want 1", v.mountedGen)
	}
	if v.cache == nil {
		t.Error("view did not receive cache read access")
	}
}

func TestEventMergesCacheAndReachesView(t *testing.T) {
	s := newTestShell(t)
	v := &recordingView{name: "inbox"}
	s.Mount(v)
	s.drain()

	s.handle(eventMsg{generation: s.Generation(), raw: []byte(postCreatedRaw)})

	if _, ok := s.cache.Get(models.KindPost, "p1"); !ok {
		t.Error("post not merged into cache")
	}
	if len(v.events) != 1 || v.events[0].Type != models.EventPostCreated {
		t.Errorf("view events = %+v, want one post.created", v.events)
	}
}

func TestStaleEventMergesCacheButSkipsView(t *testing.T) {
	s := newTestShell(t)
	old := &recordingView{name: "inbox"}
	s.Mount(old)
	s.drain()

	// Frame arrives and is stamped, then the user navigates before the
	// loop gets to it.
	stale := eventMsg{generation: s.Generation(), raw: []byte(postCreatedRaw)}
	next := &recordingView{name: "thread"}
	s.Mount(next)
	s.drain()
	s.handle(stale)

	if _, ok := s.cache.Get(models.KindPost, "p1"); !ok {
		t.Error("stale event skipped the cache merge; merges are generation-independent")
	}
	if len(old.events) != 0 {
		t.Errorf("unmounted view received %d events", len(old.events))
	}
	if len(next.events) != 0 {
		t.Errorf("new view received %d stale events", len(next.events))
	}
}

func TestStaleCompletionDropped(t *testing.T) {
	s := newTestShell(t)
	v := &recordingView{name: "inbox"}
	s.Mount(v)
	s.drain()

	issuedAt := s.Generation()
	s.Mount(&recordingView{name: "thread"})
	s.drain()

	s.handle(completionMsg{generation: issuedAt, apply: func(view View) {
		view.(*recordingView).patches++
	}})

	if v.patches != 0 {
		t.Errorf("stale completion applied %d patches", v.patches)
	}
}

func TestCurrentCompletionApplied(t *testing.T) {
	s := newTestShell(t)
	v := &recordingView{name: "inbox"}
	s.Mount(v)
	s.drain()

	s.handle(completionMsg{generation: s.Generation(), apply: func(view View) {
		view.(*recordingView).patches++
	}})

	if v.patches != 1 {
		t.Errorf("patches = %d, want 1", v.patches)
	}
}

func TestSupersededMountDropped(t *testing.T) {
	s := newTestShell(t)
	first := &recordingView{name: "first"}
	second := &recordingView{name: "second"}

	// Both mounts are queued before the loop runs; only the newest one
	// may win.
	s.Mount(first)
	s.Mount(second)
	s.drain()

	if s.view != second {
		t.Errorf("active view = %v, want second", s.view)
	}
	if first.mountedGen != 0 {
		t.Error("superseded view was mounted")
	}
}

func TestPresenceDiffApplied(t *testing.T) {
	s := newTestShell(t)
	s.tracker.Subscribe("group:g1")

	s.handle(presenceMsg{raw: []byte(`{"topic": "group:g1", "joins": ["alice", "bob"]}`)})
	s.handle(presenceMsg{raw: []byte(`{"topic": "group:g1", "leaves": ["alice"]}`)})

	got := s.tracker.Present("group:g1")
	if len(got) != 1 || got[0] != "bob" {
		t.Errorf("present = %v, want [bob]", got)
	}
}

func TestMalformedPresenceIgnored(t *testing.T) {
	s := newTestShell(t)
	s.tracker.Subscribe("group:g1")

	s.handle(presenceMsg{raw: []byte(`{"joins": `)})

	if n := s.tracker.Count("group:g1"); n != 0 {
		t.Errorf("count = %d after malformed diff, want 0", n)
	}
}

func TestRefreshedTokenPersisted(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO session").
		WithArgs(sqlmock.AnyArg(), "refreshed-raw", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	s := newTestShell(t)
	s.cfg.Store = store.NewWithDB(db)

	s.handle(tokenMsg{token: auth.Token{
		Raw:       "refreshed-raw",
		Subject:   "user-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestAsyncDeliversToIssuingGeneration(t *testing.T) {
	s := newTestShell(t)
	v := &recordingView{name: "inbox"}
	s.Mount(v)
	s.drain()

	done := make(chan struct{})
	s.Async(context.Background(), func(context.Context) (Patch, error) {
		defer close(done)
		return func(view View) { view.(*recordingView).patches++ }, nil
	})
	<-done

	// The completion is queued by the async goroutine; give it a
	// moment to land before draining.
	deadline := time.After(time.Second)
	for {
		s.drain()
		if v.patches == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("patches = %d, want 1", v.patches)
		case <-time.After(time.Millisecond):
		}
	}
}
