// Package shell runs the client runtime: it owns the entity cache,
// the transport session, and the presence tracker, and serializes all
// state changes through a single loop goroutine.
package shell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/perchhq/perch-sync/internal/auth"
	"github.com/perchhq/perch-sync/internal/backoff"
	"github.com/perchhq/perch-sync/internal/cache"
	"github.com/perchhq/perch-sync/internal/config"
	"github.com/perchhq/perch-sync/internal/events"
	"github.com/perchhq/perch-sync/internal/observability"
	"github.com/perchhq/perch-sync/internal/presence"
	"github.com/perchhq/perch-sync/internal/push"
	"github.com/perchhq/perch-sync/internal/queries"
	"github.com/perchhq/perch-sync/internal/store"
	"github.com/perchhq/perch-sync/internal/transport"
	"github.com/perchhq/perch-sync/pkg/models"
)

const messageBuffer = 256

// Options configures a Shell.
type Options struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	// Store persists the session token across runs. Optional.
	Store *store.SessionStore

	// OnSessionExpired fires exactly once when the session is beyond
	// recovery. Re-authentication is the embedder's duty.
	OnSessionExpired func()
}

// loop messages. Everything that touches shell state arrives here and
// is processed in order on the loop goroutine.
type message interface{ isMessage() }

type eventMsg struct {
	generation uint64
	raw        []byte
}

type presenceMsg struct{ raw []byte }

type mountMsg struct {
	generation uint64
	view       View
}

type completionMsg struct {
	generation uint64
	apply      Patch
}

type tokenMsg struct{ token auth.Token }

func (eventMsg) isMessage()      {}
func (presenceMsg) isMessage()   {}
func (mountMsg) isMessage()      {}
func (completionMsg) isMessage() {}
func (tokenMsg) isMessage()      {}

// Shell is the application runtime. One Shell per logged-in session.
type Shell struct {
	cfg     Options
	logger  *slog.Logger
	metrics *observability.Metrics

	cache      *cache.Store
	dispatcher *events.Dispatcher
	tracker    *presence.Tracker
	session    *transport.Session
	queries    *queries.Client
	push       *push.Registrar

	msgs       chan message
	generation atomic.Uint64

	// loop-goroutine state, never touched elsewhere
	view       View
	eventStale bool

	expireOnce sync.Once
}

// New assembles a shell from configuration. The returned shell is
// inert until Run is called.
func New(opts Options) (*Shell, error) {
	if opts.Config == nil {
		return nil, errors.New("shell: config is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	cfg := opts.Config

	token, err := bootstrapToken(opts.Store, cfg.Auth.Token, opts.Logger)
	if err != nil {
		return nil, err
	}

	s := &Shell{
		cfg:     opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		cache:   cache.New(),
		tracker: presence.NewTracker(opts.Logger, opts.Metrics),
		msgs:    make(chan message, messageBuffer),
	}
	s.dispatcher = events.New(s.cache, s, opts.Logger, opts.Metrics).WithTracer(opts.Tracer)

	refresher := auth.NewHTTPRefresher(cfg.Auth.RefreshURL, nil, opts.Logger)
	s.session = transport.NewSession(transport.Config{
		URL:       cfg.Server.SocketURL,
		Refresher: refresher,
		Policy: backoff.Policy{
			Initial: cfg.Transport.Backoff.Initial,
			Max:     cfg.Transport.Backoff.Max,
			Factor:  cfg.Transport.Backoff.Factor,
			Jitter:  cfg.Transport.Backoff.Jitter,
		},
		PingInterval: cfg.Transport.PingInterval,
		PongWait:     cfg.Transport.PongWait,
		OnResult:     s.onResult,
		OnPresence:   s.onPresence,
		OnToken:      s.onToken,
		Logger:       opts.Logger,
		Metrics:      opts.Metrics,
	}, token)

	s.queries = queries.NewClient(cfg.Server.APIURL, func() string {
		return s.session.Token().Raw
	}, nil, opts.Metrics, opts.Tracer)

	if cfg.Server.PushURL != "" {
		s.push = push.NewRegistrar(cfg.Server.PushURL, func() string {
			return s.session.Token().Raw
		}, nil, opts.Logger)
	}

	return s, nil
}

// bootstrapToken prefers the persisted session over the configured
// token, falling back when the stored one is absent or already expired.
func bootstrapToken(st *store.SessionStore, configured string, logger *slog.Logger) (auth.Token, error) {
	if st != nil {
		session, err := st.Load(context.Background())
		switch {
		case err == nil && !session.Token.Expired(time.Now()):
			logger.Debug("resuming persisted session",
				"subject", session.Token.Subject,
				"refreshed_at", session.RefreshedAt)
			return session.Token, nil
		case err != nil && !errors.Is(err, store.ErrNoSession):
			logger.Warn("could not load persisted session", "error", err)
		}
	}
	if configured == "" {
		return auth.Token{}, errors.New("shell: no session token available")
	}
	token, err := auth.ParseToken(configured)
	if err != nil {
		return auth.Token{}, fmt.Errorf("shell: configured token: %w", err)
	}
	return token, nil
}

// Run drives the transport session and the shell loop until ctx is
// cancelled or the session expires terminally.
func (s *Shell) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.session.Run(ctx) })
	g.Go(func() error { return s.loop(ctx) })

	err := g.Wait()
	if errors.Is(err, auth.ErrSessionExpired) {
		s.expireOnce.Do(func() {
			s.logger.Warn("session expired, re-authentication required")
			if s.cfg.Store != nil {
				if cerr := s.cfg.Store.Clear(context.Background()); cerr != nil {
					s.logger.Warn("could not clear persisted session", "error", cerr)
				}
			}
			if s.cfg.OnSessionExpired != nil {
				s.cfg.OnSessionExpired()
			}
		})
		return err
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Shell) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-s.msgs:
			s.handle(m)
		}
	}
}

// handle processes one loop message. It runs only on the loop
// goroutine; tests call it directly.
func (s *Shell) handle(m message) {
	switch m := m.(type) {
	case eventMsg:
		// The cache merge below is generation-independent; only the
		// forward to the view is gated, inside OnEvent.
		s.eventStale = m.generation != s.generation.Load()
		s.dispatcher.Dispatch(m.raw)
		s.eventStale = false

	case presenceMsg:
		diff, ok := presence.DecodeDiff(m.raw)
		if !ok {
			s.logger.Debug("dropping malformed presence diff")
			return
		}
		s.tracker.Apply(diff)

	case mountMsg:
		if m.generation != s.generation.Load() {
			s.logger.Debug("dropping superseded mount", "view", m.view.Name())
			return
		}
		s.view = m.view
		s.logger.Info("view mounted", "view", m.view.Name(), "generation", m.generation)
		m.view.Mounted(s.cache, m.generation)

	case completionMsg:
		if m.generation != s.generation.Load() {
			s.logger.Debug("dropping stale completion",
				"generation", m.generation,
				"current", s.generation.Load())
			return
		}
		if s.view != nil {
			m.apply(s.view)
		}

	case tokenMsg:
		if s.cfg.Store == nil {
			return
		}
		err := s.cfg.Store.Save(context.Background(), auth.Session{
			Token:       m.token,
			RefreshedAt: time.Now().UTC(),
		})
		if err != nil {
			s.logger.Warn("could not persist refreshed token", "error", err)
		}
	}
}

// OnEvent implements events.Sink. It runs on the loop goroutine as
// part of eventMsg handling.
func (s *Shell) OnEvent(evt models.Event) {
	if s.eventStale {
		s.logger.Debug("discarding stale view update", "type", evt.Type)
		return
	}
	if s.view != nil {
		s.view.OnEvent(evt)
	}
}

// Mount makes v the active view and bumps the generation, invalidating
// every async operation issued before this call.
func (s *Shell) Mount(v View) uint64 {
	gen := s.generation.Add(1)
	s.msgs <- mountMsg{generation: gen, view: v}
	return gen
}

// Generation returns the current view generation.
func (s *Shell) Generation() uint64 {
	return s.generation.Load()
}

// Async runs fn off the loop and delivers its patch to the view that
// was active when Async was called. If the generation moved on in the
// meantime the patch is dropped.
func (s *Shell) Async(ctx context.Context, fn func(context.Context) (Patch, error)) {
	gen := s.generation.Load()
	go func() {
		patch, err := fn(ctx)
		if err != nil {
			s.logger.Warn("async operation failed", "error", err)
			return
		}
		if patch == nil {
			return
		}
		s.msgs <- completionMsg{generation: gen, apply: patch}
	}()
}

// WatchTopic starts presence tracking for topic and asks the server
// for its diffs.
func (s *Shell) WatchTopic(topic string) error {
	s.tracker.Subscribe(topic)
	return s.session.JoinTopic(topic)
}

// UnwatchTopic forgets topic's presence state.
func (s *Shell) UnwatchTopic(topic string) error {
	s.tracker.Unsubscribe(topic)
	return s.session.LeaveTopic(topic)
}

// Presence exposes the tracker for read access.
func (s *Shell) Presence() *presence.Tracker {
	return s.tracker
}

// Cache exposes read access to the entity cache.
func (s *Shell) Cache() Reader {
	return s.cache
}

// Queries returns the server query client bound to this session.
func (s *Shell) Queries() *queries.Client {
	return s.queries
}

// Session exposes the transport session, e.g. for status display.
func (s *Shell) Session() *transport.Session {
	return s.session
}

// RegisterPush forwards a push subscription to the registrar. Failures
// degrade silently: the client keeps working without push.
func (s *Shell) RegisterPush(ctx context.Context, sub push.Subscription) {
	if s.push == nil {
		return
	}
	if err := s.push.Register(ctx, sub); err != nil {
		s.logger.Warn("push registration failed", "error", err)
	}
}

// transport hooks; these run on transport goroutines and only enqueue.

func (s *Shell) onResult(payload []byte) {
	s.msgs <- eventMsg{generation: s.generation.Load(), raw: payload}
}

func (s *Shell) onPresence(payload []byte) {
	s.msgs <- presenceMsg{raw: payload}
}

func (s *Shell) onToken(token auth.Token) {
	s.msgs <- tokenMsg{token: token}
}
