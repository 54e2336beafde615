package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gameeflow-project/gameeflow/internal/events"
	"github.com/gameeflow-project/gameeflow/internal/protocol"
	"github.com/gameeflow-project/gameeflow/internal/util"
)

// State tracks handshake progress. Requests are only accepted in StateReady;
// everything before that is connection bring-up.
type State int

const (
	StateIdle State = iota
	StateOpening
	StateEngineHandshaking
	StateNamespaceJoining
	StateReady
	StateClosed
)

var stateNames = map[State]string{
	StateIdle:              "idle",
	StateOpening:           "opening",
	StateEngineHandshaking: "engine-handshake",
	StateNamespaceJoining:  "namespace-join",
	StateReady:             "ready",
	StateClosed:            "closed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Conn is the subset of *websocket.Conn the session uses. Tests substitute an
// in-process pipe.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc opens the websocket to the backend.
type DialFunc func(ctx context.Context, url string) (Conn, error)

func gorillaDial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

const (
	defaultRequestTimeout    = 15 * time.Second
	defaultHeartbeatInterval = 25 * time.Second
	defaultConnectTimeout    = 30 * time.Second
)

// Options configures a Session. Zero durations fall back to the protocol
// defaults; a nil Dial uses gorilla's default dialer.
type Options struct {
	URL               string
	Namespace         string
	RequestTimeout    time.Duration
	HeartbeatInterval time.Duration
	ConnectTimeout    time.Duration
	Dial              DialFunc
}

// Session is one logical connection to the game backend: a single websocket
// carrying the Engine.IO handshake, the namespace join, heartbeats, and
// request/response frames correlated by message id.
type Session struct {
	opts  Options
	codec *protocol.Codec
	bus   *events.EventBus
	log   zerolog.Logger

	mu         sync.Mutex
	state      State
	conn       Conn
	nextMsgID  int64
	connectCh  chan struct{}
	connectErr error
	hbStop     chan struct{}

	// wrMu serializes writes; gorilla allows only one concurrent writer.
	wrMu sync.Mutex

	pending *pendingSet
}

func NewSession(opts Options, bus *events.EventBus) *Session {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.Dial == nil {
		opts.Dial = gorillaDial
	}
	return &Session{
		opts:    opts,
		codec:   protocol.NewCodec(opts.Namespace),
		bus:     bus,
		log:     util.ComponentLogger("transport"),
		pending: newPendingSet(),
	}
}

// State reports the current handshake state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PendingCount reports how many requests are awaiting a response.
func (s *Session) PendingCount() int {
	return s.pending.count()
}

// Connect dials the backend and drives the handshake to completion. It
// returns once the namespace ack arrives, the context is cancelled, or the
// connection fails. Concurrent callers during bring-up share the same
// outcome; calling Connect on a ready session is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateReady:
		s.mu.Unlock()
		return nil
	case StateOpening, StateEngineHandshaking, StateNamespaceJoining:
		ch := s.connectCh
		s.mu.Unlock()
		return s.waitReady(ctx, ch)
	}
	s.state = StateOpening
	ch := make(chan struct{})
	s.connectCh = ch
	s.connectErr = nil
	s.mu.Unlock()

	s.log.Info().Str("url", s.opts.URL).Str("namespace", s.opts.Namespace).Msg("Connecting")
	conn, err := s.opts.Dial(ctx, s.opts.URL)
	if err != nil {
		s.mu.Lock()
		s.state = StateClosed
		s.connectCh = nil
		s.connectErr = err
		s.mu.Unlock()
		close(ch)
		return fmt.Errorf("dial %s: %w", s.opts.URL, err)
	}

	s.mu.Lock()
	if s.state != StateOpening || s.connectCh != ch {
		// Disconnect won the race while the dial was in flight. The session
		// is already Closed (or re-opened by a newer Connect); this dial's
		// connection must not be adopted.
		s.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	s.conn = conn
	s.state = StateEngineHandshaking
	s.mu.Unlock()

	go s.readLoop(conn)
	return s.waitReady(ctx, ch)
}

func (s *Session) waitReady(ctx context.Context, ch chan struct{}) error {
	timer := time.NewTimer(s.opts.ConnectTimeout)
	defer timer.Stop()
	select {
	case <-ch:
		s.mu.Lock()
		err := s.connectErr
		s.mu.Unlock()
		return err
	case <-timer.C:
		s.teardown(fmt.Errorf("handshake timed out after %s", s.opts.ConnectTimeout))
		return fmt.Errorf("handshake timed out after %s", s.opts.ConnectTimeout)
	case <-ctx.Done():
		s.teardown(ctx.Err())
		return ctx.Err()
	}
}

// Disconnect closes the connection. Every in-flight request is rejected with
// ErrClosed; the session can be reconnected afterwards.
func (s *Session) Disconnect() {
	s.teardown(nil)
}

// Send emits a client event. With waitForResponse it assigns a message id,
// blocks until the matching 42/43 frame arrives, and returns its payload; the
// request fails with a TimeoutError when no response arrives in time.
// Send never queues: before the handshake completes it fails with ErrNotReady.
func (s *Session) Send(ctx context.Context, event string, payload any, waitForResponse bool) (*Response, error) {
	s.mu.Lock()
	if s.state != StateReady {
		st := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w (state %s, event %q)", ErrNotReady, st, event)
	}
	s.nextMsgID++
	id := s.nextMsgID
	s.mu.Unlock()

	raw, err := s.codec.EncodeClientEvent(event, payload, id)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", event, err)
	}

	var pr *pendingRequest
	if waitForResponse {
		pr = s.pending.add(id, event)
	}
	if err := s.writeRaw(raw); err != nil {
		if pr != nil {
			s.pending.remove(id)
		}
		return nil, err
	}
	if pr == nil {
		return nil, nil
	}

	timer := time.NewTimer(s.opts.RequestTimeout)
	defer timer.Stop()
	select {
	case res := <-pr.ch:
		if res.err != nil {
			return nil, res.err
		}
		return &res.resp, nil
	case <-timer.C:
		if s.pending.remove(id) {
			s.log.Warn().Str("event", event).Int64("msgId", id).Msg("Request timed out")
			return nil, &TimeoutError{Event: event, MsgID: id}
		}
		// Resolved while the timer fired; the result is already buffered.
		res := <-pr.ch
		if res.err != nil {
			return nil, res.err
		}
		return &res.resp, nil
	case <-ctx.Done():
		s.pending.remove(id)
		return nil, ctx.Err()
	}
}

func (s *Session) writeRaw(raw string) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrClosed
	}
	s.wrMu.Lock()
	defer s.wrMu.Unlock()
	s.log.Trace().Str("frame", raw).Msg("-> send")
	return conn.WriteMessage(websocket.TextMessage, []byte(raw))
}

func (s *Session) heartbeat(stop chan struct{}) {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := s.writeRaw(s.codec.EncodePing()); err != nil {
				s.log.Debug().Err(err).Msg("Heartbeat write failed")
				return
			}
		}
	}
}
