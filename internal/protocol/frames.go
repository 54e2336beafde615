// Package protocol implements the Engine.IO v3 / Socket.IO wire subset used
// by the BCSocial game backend: frame encoding/decoding for a single fixed
// namespace, the score-submission digest, and the backend's timestamp format.
// Only the exact framing this backend speaks is supported; this is not a
// general Socket.IO implementation.
package protocol

import (
	"encoding/json"
	"fmt"
)

// FrameKind identifies the decoded type of a wire frame.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameEngineOpen           // "0{...}" initial handshake payload
	FrameEngineAck            // "40" engine-level handshake acknowledgment
	FrameNamespaceConnect     // "40<ns>" / "40<ns>," namespace connect request/ack
	FramePing                 // "2"
	FramePong                 // "3"
	FrameEvent                // "42<ns>,<id>[<event>,<payload>]"
	FrameAck                  // "43<ns>,<id>[<payload>]" response to a message id
)

// frameKindStrings maps FrameKind values to log-friendly names.
var frameKindStrings = map[FrameKind]string{
	FrameUnknown:          "unknown",
	FrameEngineOpen:       "engine_open",
	FrameEngineAck:        "engine_ack",
	FrameNamespaceConnect: "namespace_connect",
	FramePing:             "ping",
	FramePong:             "pong",
	FrameEvent:            "event",
	FrameAck:              "ack",
}

// String returns the string representation of FrameKind.
func (k FrameKind) String() string {
	if s, ok := frameKindStrings[k]; ok {
		return s
	}
	return "unknown"
}

// Frame is a single decoded wire unit. MsgID is 0 when the frame carries no
// correlation id (server pushes, handshake frames). Event is empty for ack
// frames and for the event-name-less single-element array shape; the caller
// supplies the name from its pending request in those cases.
type Frame struct {
	Kind    FrameKind
	MsgID   int64
	Event   string
	Payload json.RawMessage
}

// Wire frame prefixes.
const (
	prefixEngineOpen = "0"
	prefixEngineAck  = "40"
	prefixPing       = "2"
	prefixPong       = "3"
	prefixEvent      = "42"
	prefixAck        = "43"
)

// DecodeError reports a frame that could not be parsed. It is logged and the
// frame skipped; it must never abort the dispatch loop.
type DecodeError struct {
	Raw    string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("undecodable frame %q: %s", truncate(e.Raw, 80), e.Reason)
}

// ServerError is an application-level error reported by the backend, either
// via the "error" event or an "error" field embedded in a response payload.
type ServerError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// ErrCodeStaleStartScore is the backend's "stale balance" rejection of a score
// submission hash. It is the only recoverable server error: the submitter
// recomputes startScore and retries exactly once.
const ErrCodeStaleStartScore = 33

// ServerErrorFromPayload extracts a ServerError from a response payload.
// The backend uses two shapes: {"error":{"code":..,"message":..}} inside a
// normal response, and a bare {"code":..,"message":..} on the error event.
// Returns nil when the payload carries no error.
func ServerErrorFromPayload(payload json.RawMessage) *ServerError {
	if len(payload) == 0 {
		return nil
	}

	var wrapped struct {
		Error *ServerError `json:"error"`
	}
	if err := json.Unmarshal(payload, &wrapped); err == nil && wrapped.Error != nil && wrapped.Error.Code != 0 {
		return wrapped.Error
	}

	var bare ServerError
	if err := json.Unmarshal(payload, &bare); err == nil && bare.Code != 0 {
		return &bare
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
