package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Codec encodes and decodes frames for one fixed Socket.IO namespace.
// All methods are pure; a Codec is safe for concurrent use.
type Codec struct {
	namespace string
}

// NewCodec creates a codec bound to a namespace path (e.g. "/first-run2").
func NewCodec(namespace string) *Codec {
	return &Codec{namespace: namespace}
}

// Namespace returns the namespace this codec is bound to.
func (c *Codec) Namespace() string {
	return c.namespace
}

// EncodeClientEvent produces the literal wire text for a client event frame:
// a Socket.IO event packet addressed to the namespace, optionally carrying a
// message id, wrapping [event, payload] as its data segment. A msgID of 0
// omits the correlation id. A nil payload emits a single-element array.
func (c *Codec) EncodeClientEvent(event string, payload any, msgID int64) (string, error) {
	data := []any{event}
	if payload != nil {
		data = append(data, payload)
	}

	body, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event %q: %w", event, err)
	}

	var sb strings.Builder
	sb.WriteString(prefixEvent)
	sb.WriteString(c.namespace)
	sb.WriteString(",")
	if msgID > 0 {
		sb.WriteString(strconv.FormatInt(msgID, 10))
	}
	sb.Write(body)
	return sb.String(), nil
}

// EncodeEngineAck returns the engine-level handshake acknowledgment frame.
func (c *Codec) EncodeEngineAck() string {
	return prefixEngineAck
}

// EncodeNamespaceConnect returns the namespace connect request frame.
func (c *Codec) EncodeNamespaceConnect() string {
	return prefixEngineAck + c.namespace
}

// EncodePing returns the heartbeat ping frame.
func (c *Codec) EncodePing() string {
	return prefixPing
}

// DecodeFrame parses raw wire text into a Frame. Recognition order matters:
// heartbeat pong, engine open payload, engine handshake ack, namespace
// connect ack, then event/ack packets addressed to the namespace. Anything
// else is a *DecodeError.
func (c *Codec) DecodeFrame(raw string) (*Frame, error) {
	switch raw {
	case prefixPong:
		return &Frame{Kind: FramePong}, nil
	case prefixPing:
		return &Frame{Kind: FramePing}, nil
	}

	if strings.HasPrefix(raw, prefixEngineOpen+"{") {
		payload := json.RawMessage(raw[len(prefixEngineOpen):])
		if !json.Valid(payload) {
			return nil, &DecodeError{Raw: raw, Reason: "engine open payload is not valid JSON"}
		}
		return &Frame{Kind: FrameEngineOpen, Payload: payload}, nil
	}

	if raw == prefixEngineAck {
		return &Frame{Kind: FrameEngineAck}, nil
	}

	// "40<ns>" outbound request, "40<ns>," inbound ack. Both decode to the
	// same kind; the session only ever sees the inbound one.
	if raw == prefixEngineAck+c.namespace || raw == prefixEngineAck+c.namespace+"," {
		return &Frame{Kind: FrameNamespaceConnect}, nil
	}

	if strings.HasPrefix(raw, prefixEvent+c.namespace+",") {
		return c.decodePacket(raw, FrameEvent, raw[len(prefixEvent+c.namespace)+1:])
	}
	if strings.HasPrefix(raw, prefixAck+c.namespace+",") {
		return c.decodePacket(raw, FrameAck, raw[len(prefixAck+c.namespace)+1:])
	}

	return nil, &DecodeError{Raw: raw, Reason: "unrecognized frame prefix"}
}

// decodePacket parses the "<id>[...]" tail of an event or ack frame.
func (c *Codec) decodePacket(raw string, kind FrameKind, rest string) (*Frame, error) {
	idEnd := 0
	for idEnd < len(rest) && rest[idEnd] >= '0' && rest[idEnd] <= '9' {
		idEnd++
	}

	var msgID int64
	if idEnd > 0 {
		id, err := strconv.ParseInt(rest[:idEnd], 10, 64)
		if err != nil {
			return nil, &DecodeError{Raw: raw, Reason: "invalid message id"}
		}
		msgID = id
	}

	body := rest[idEnd:]
	if len(body) == 0 || body[0] != '[' {
		return nil, &DecodeError{Raw: raw, Reason: "packet data is not a JSON array"}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(body), &elems); err != nil {
		return nil, &DecodeError{Raw: raw, Reason: fmt.Sprintf("malformed data array: %v", err)}
	}

	frame := &Frame{Kind: kind, MsgID: msgID}

	switch len(elems) {
	case 0:
		// Bare ack with no payload.
		return frame, nil

	case 1:
		// Either an event with no payload, a bare payload object (ack), or
		// the backend's quirk: a single string element that is itself a
		// JSON-encoded object. Event name is left for the caller to infer.
		if name, ok := asString(elems[0]); ok {
			if inner := secondPassDecode(name); inner != nil {
				frame.Payload = inner
			} else {
				frame.Event = name
			}
		} else {
			frame.Payload = elems[0]
		}
		return frame, nil

	default:
		name, ok := asString(elems[0])
		if !ok {
			return nil, &DecodeError{Raw: raw, Reason: "first data element is not an event name"}
		}
		frame.Event = name
		frame.Payload = unwrapPayload(elems[1])
		return frame, nil
	}
}

// unwrapPayload applies the second decode pass for payloads the server
// double-encodes as a JSON string inside the outer array.
func unwrapPayload(elem json.RawMessage) json.RawMessage {
	if s, ok := asString(elem); ok {
		if inner := secondPassDecode(s); inner != nil {
			return inner
		}
	}
	return elem
}

// secondPassDecode returns s as JSON if it parses to an object or array,
// nil otherwise.
func secondPassDecode(s string) json.RawMessage {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil
	}
	if !json.Valid([]byte(trimmed)) {
		return nil
	}
	return json.RawMessage(trimmed)
}

func asString(elem json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(elem, &s); err != nil {
		return "", false
	}
	return s, true
}
