package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/perchhq/perch-sync/internal/auth"
	"github.com/perchhq/perch-sync/internal/backoff"
	"github.com/perchhq/perch-sync/internal/observability"
)

const (
	defaultWriteWait    = 10 * time.Second
	defaultPongWait     = 45 * time.Second
	defaultPingInterval = 15 * time.Second
	maxPayloadBytes     = 1 << 20
	sendBuffer          = 64
)

// ErrJoinRejected marks a server abort: the join was refused outright
// (e.g. a stale protocol version) and must not be retried.
var ErrJoinRejected = errors.New("transport: join rejected by server")

// Config wires a session to its collaborators.
type Config struct {
	// URL is the websocket endpoint of the push channel.
	URL string

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// Policy bounds the reconnect backoff. Zero value means
	// backoff.DefaultPolicy.
	Policy backoff.Policy

	// Refresher performs the frame-level auth recovery. Required.
	Refresher auth.Refresher

	// OnResult receives each result-frame payload in arrival order.
	OnResult func(payload []byte)

	// OnPresence receives each presence-frame payload in arrival order.
	OnPresence func(payload []byte)

	// OnToken observes every refreshed token so the shell can persist
	// it for subsequent page loads.
	OnToken func(token auth.Token)

	// OnStateChange observes FSM transitions.
	OnStateChange func(status Status)

	PingInterval time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Session owns one logical connection to the push channel, surviving
// transport drops and frame-level auth errors. It terminates only on
// context cancellation, a server abort, or session expiry.
type Session struct {
	cfg      Config
	clientID string
	machine  *machine

	mu    sync.Mutex
	token auth.Token
	send  chan Frame

	logger *slog.Logger
}

// NewSession creates a session that will authenticate with token.
func NewSession(cfg Config, token auth.Token) *Session {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Policy == (backoff.Policy{}) {
		cfg.Policy = backoff.DefaultPolicy()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Session{
		cfg:      cfg,
		clientID: uuid.NewString(),
		token:    token,
		send:     make(chan Frame, sendBuffer),
		logger:   cfg.Logger,
	}
	s.machine = newMachine(func(status Status) {
		cfg.Metrics.StateChanged(string(status.State))
		if cfg.OnStateChange != nil {
			cfg.OnStateChange(status)
		}
	})
	return s
}

// Status returns the current connection status.
func (s *Session) Status() Status {
	return s.machine.current()
}

// Token returns the current auth token, including any mid-stream
// refresh.
func (s *Session) Token() auth.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) setToken(t auth.Token) {
	s.mu.Lock()
	s.token = t
	s.mu.Unlock()
}

// Send queues an outbound frame. Frames queued while disconnected are
// delivered after the next successful join, in queue order.
func (s *Session) Send(frame Frame) error {
	select {
	case s.send <- frame:
		return nil
	default:
		return fmt.Errorf("transport: send queue full")
	}
}

// JoinTopic queues a presence subscription for a topic.
func (s *Session) JoinTopic(topic string) error {
	return s.Send(Frame{Type: FrameTopicJoin, ID: uuid.NewString(), Topic: topic})
}

// LeaveTopic queues a presence unsubscription for a topic.
func (s *Session) LeaveTopic(topic string) error {
	return s.Send(Frame{Type: FrameTopicLeave, ID: uuid.NewString(), Topic: topic})
}

// Run drives the connection until the context is cancelled or a
// terminal condition occurs. It returns nil on cancellation,
// ErrJoinRejected on a server abort, and auth.ErrSessionExpired when a
// frame-level auth error escalates to an expired session.
//
// Transport-level failures reconnect under the configured backoff;
// the attempt counter resets on every acknowledged join.
func (s *Session) Run(ctx context.Context) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			s.machine.transition(StateDisconnected, "context cancelled")
			return nil
		}

		s.machine.transition(StateConnecting, "")
		if attempt > 0 {
			s.cfg.Metrics.ReconnectAttempt()
		}

		err := s.connectOnce(ctx)
		switch {
		case err == nil:
			// Clean read-loop exit: server closed, reconnect fresh.
			s.machine.transition(StateDisconnected, "connection closed")
			attempt = 0
		case errors.Is(err, context.Canceled):
			s.machine.transition(StateDisconnected, "context cancelled")
			return nil
		case errors.Is(err, auth.ErrSessionExpired):
			// Terminal: surfaced exactly once, no further retries.
			s.machine.transition(StateErrored, "session expired")
			return auth.ErrSessionExpired
		case backoff.IsPermanent(err):
			s.machine.transition(StateErrored, err.Error())
			return err
		case errors.Is(err, errReauthenticate):
			// Token refreshed successfully; reconnect without delay.
			s.machine.transition(StateDisconnected, "reconnecting with refreshed token")
			attempt = 0
			continue
		default:
			s.machine.transition(StateErrored, err.Error())
			s.logger.Warn("connection attempt failed", "attempt", attempt+1, "error", err)
		}

		attempt++
		if err := backoff.SleepAttempt(ctx, s.cfg.Policy, attempt); err != nil {
			s.machine.transition(StateDisconnected, "context cancelled")
			return nil
		}
	}
}

// errReauthenticate signals Run to reconnect immediately after a
// successful mid-stream token refresh.
var errReauthenticate = errors.New("transport: reconnect with refreshed token")

func (s *Session) connectOnce(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.Token().Raw)

	conn, resp, err := s.cfg.Dialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("transport: dial failed with status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("transport: dial failed: %w", err)
	}
	defer conn.Close()

	if err := s.join(ctx, conn); err != nil {
		return err
	}

	writeCtx, stopWriter := context.WithCancel(ctx)
	defer stopWriter()
	go func() {
		// Unblock the read loop when the session is torn down.
		<-writeCtx.Done()
		_ = conn.Close()
	}()
	writeDone := make(chan error, 1)
	go func() { writeDone <- s.writeLoop(writeCtx, conn) }()

	readErr := s.readLoop(ctx, conn)
	stopWriter()
	<-writeDone
	return readErr
}

// join sends the handshake frame and waits for the server's verdict:
// start (usable), abort (permanent), or error (auth escalation).
func (s *Session) join(ctx context.Context, conn *websocket.Conn) error {
	payload, err := json.Marshal(joinPayload{
		MinProtocol: protocolVersion,
		MaxProtocol: protocolVersion,
		Token:       s.Token().Raw,
		ClientID:    s.clientID,
	})
	if err != nil {
		return fmt.Errorf("transport: encode join: %w", err)
	}

	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
	if err := conn.WriteJSON(Frame{Type: FrameJoin, ID: uuid.NewString(), Payload: payload}); err != nil {
		return fmt.Errorf("transport: send join: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("transport: read join reply: %w", err)
	}
	frame, err := decodeFrame(raw)
	if err != nil {
		return err
	}
	s.cfg.Metrics.FrameReceived(string(frame.Type))

	switch frame.Type {
	case FrameStart:
		s.machine.transition(StateConnected, "")
		s.logger.Info("connected", "url", s.cfg.URL)
		return nil
	case FrameAbort:
		return backoff.Permanent(fmt.Errorf("%w: %s", ErrJoinRejected, frame.Error.String()))
	case FrameError:
		return s.refreshToken(ctx)
	default:
		return fmt.Errorf("transport: unexpected join reply %q", frame.Type)
	}
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(maxPayloadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	for {
		if ctx.Err() != nil {
			return context.Canceled
		}

		messageType, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return context.Canceled
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("transport: read: %w", err)
		}
		if messageType != websocket.TextMessage {
			continue
		}

		frame, err := decodeFrame(raw)
		if err != nil {
			// A broken envelope is absorbed like an unknown event:
			// compatibility must not tear the connection down.
			s.logger.Debug("dropping malformed frame", "error", err)
			continue
		}
		s.cfg.Metrics.FrameReceived(string(frame.Type))

		switch frame.Type {
		case FrameResult:
			if s.cfg.OnResult != nil {
				s.cfg.OnResult(frame.Payload)
			}
		case FramePresence:
			if s.cfg.OnPresence != nil {
				s.cfg.OnPresence(frame.Payload)
			}
		case FrameError:
			return s.refreshToken(ctx)
		case FrameAbort:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrJoinRejected, frame.Error.String()))
		default:
			s.logger.Debug("ignoring unexpected frame", "type", frame.Type)
		}
	}
}

func (s *Session) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-s.send:
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := conn.WriteJSON(frame); err != nil {
				return fmt.Errorf("transport: write: %w", err)
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("transport: ping: %w", err)
			}
		}
	}
}

// refreshToken performs the frame-level auth recovery. A successful
// refresh installs the new token, propagates it, and asks Run for an
// immediate reconnect. Session expiry is returned as-is: terminal.
func (s *Session) refreshToken(ctx context.Context) error {
	fresh, err := s.cfg.Refresher.Refresh(ctx, s.Token())
	switch {
	case errors.Is(err, auth.ErrSessionExpired):
		s.cfg.Metrics.TokenRefresh("expired")
		return auth.ErrSessionExpired
	case err != nil:
		s.cfg.Metrics.TokenRefresh("error")
		return fmt.Errorf("transport: token refresh: %w", err)
	}

	s.cfg.Metrics.TokenRefresh("ok")
	s.setToken(fresh)
	if s.cfg.OnToken != nil {
		s.cfg.OnToken(fresh)
	}
	s.logger.Info("token refreshed, reconnecting")
	return errReauthenticate
}
