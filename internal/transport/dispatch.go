package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/gameeflow-project/gameeflow/internal/events"
	"github.com/gameeflow-project/gameeflow/internal/protocol"
)

func (s *Session) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.teardown(fmt.Errorf("read: %w", err))
			return
		}
		raw := string(data)
		s.log.Trace().Str("frame", raw).Msg("<- recv")

		frame, err := s.codec.DecodeFrame(raw)
		if err != nil {
			var derr *protocol.DecodeError
			if errors.As(err, &derr) {
				s.log.Warn().Str("raw", derr.Raw).Str("reason", derr.Reason).Msg("Dropping undecodable frame")
				continue
			}
			s.log.Warn().Err(err).Msg("Dropping undecodable frame")
			continue
		}
		s.handleFrame(frame)
	}
}

func (s *Session) handleFrame(frame *protocol.Frame) {
	switch frame.Kind {
	case protocol.FrameEngineOpen:
		s.mu.Lock()
		handshaking := s.state == StateEngineHandshaking
		if handshaking {
			s.state = StateNamespaceJoining
		}
		s.mu.Unlock()
		if !handshaking {
			s.log.Debug().Msg("Engine open outside handshake, ignoring")
			return
		}
		s.log.Debug().Msg("Engine session open, joining namespace")
		if err := s.writeRaw(s.codec.EncodeEngineAck()); err != nil {
			return
		}
		if err := s.writeRaw(s.codec.EncodeNamespaceConnect()); err != nil {
			return
		}

	case protocol.FrameEngineAck:
		s.log.Debug().Msg("Engine ack received")

	case protocol.FrameNamespaceConnect:
		s.becomeReady()

	case protocol.FramePong:
		s.log.Trace().Msg("Heartbeat pong")

	case protocol.FramePing:
		s.log.Debug().Msg("Unexpected server ping")

	case protocol.FrameEvent, protocol.FrameAck:
		s.dispatchMessage(frame)

	default:
		s.log.Debug().Str("kind", frame.Kind.String()).Msg("Unhandled frame kind")
	}
}

// dispatchMessage routes a 42/43 frame: frames carrying a message id that
// matches an in-flight request resolve that request; everything else fans out
// on the event bus. The per-event topic is delivered synchronously from the
// read loop so state merges (profile balances, leaderboards) see pushes in
// arrival order; the generic channel stays asynchronous for observers.
func (s *Session) dispatchMessage(frame *protocol.Frame) {
	if frame.MsgID != 0 {
		if event, ok := s.pending.resolve(frame.MsgID, Response{Event: frame.Event, Payload: frame.Payload}); ok {
			s.log.Debug().Int64("msgId", frame.MsgID).Str("event", event).Msg("Request resolved")
			return
		}
	}

	msg := events.ServerMessage{MsgID: frame.MsgID, Event: frame.Event, Payload: frame.Payload}
	s.bus.Emit(context.Background(), events.Event{Type: events.EventServerMessage, Source: "transport", Payload: msg})
	if frame.Event != "" {
		if err := s.bus.EmitSync(context.Background(), events.Event{Type: events.MessageEvent(frame.Event), Source: "transport", Payload: msg}); err != nil {
			s.log.Warn().Err(err).Str("event", frame.Event).Msg("Push handler failed")
		}
	}
}

func (s *Session) becomeReady() {
	s.mu.Lock()
	if s.state != StateNamespaceJoining {
		s.mu.Unlock()
		s.log.Debug().Msg("Namespace ack outside handshake, ignoring")
		return
	}
	s.state = StateReady
	ch := s.connectCh
	s.connectCh = nil
	stop := make(chan struct{})
	s.hbStop = stop
	s.mu.Unlock()

	s.log.Info().Str("namespace", s.opts.Namespace).Msg("Connected")
	go s.heartbeat(stop)
	if ch != nil {
		close(ch)
	}
	s.bus.Emit(context.Background(), events.Event{Type: events.EventConnected, Source: "transport"})
}

// teardown moves the session to StateClosed, closes the socket, stops the
// heartbeat, and rejects every pending request. Safe to call from any
// goroutine; only the first call per connection does work.
func (s *Session) teardown(cause error) {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	conn := s.conn
	s.conn = nil
	ch := s.connectCh
	s.connectCh = nil
	if ch != nil {
		if cause != nil {
			s.connectErr = cause
		} else {
			s.connectErr = ErrClosed
		}
	}
	hb := s.hbStop
	s.hbStop = nil
	s.mu.Unlock()

	if hb != nil {
		close(hb)
	}
	if conn != nil {
		conn.Close()
	}

	reject := error(ErrClosed)
	if cause != nil {
		reject = fmt.Errorf("%w: %v", ErrClosed, cause)
	}
	s.pending.rejectAll(reject)

	if ch != nil {
		close(ch)
	}
	if cause != nil {
		s.log.Info().Err(cause).Msg("Disconnected")
	} else {
		s.log.Info().Msg("Disconnected")
	}
	s.bus.Emit(context.Background(), events.Event{Type: events.EventDisconnected, Source: "transport", Payload: cause})
}
