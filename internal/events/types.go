// Package events defines the event types and the publish-subscribe bus that
// connect the transport session, the game client, the automation loops and
// the observers (telemetry, API, CLI).
package events

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Connection lifecycle
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"

	// Wire traffic: every decoded inbound frame that is not part of the
	// handshake is rebroadcast here so independent listeners can observe it
	// without touching the request/response path.
	EventServerMessage EventType = "server_message"

	// Session/profile
	EventAuthenticated  EventType = "authenticated"
	EventProfileUpdated EventType = "profile_updated"

	// Score submission
	EventScoreSubmitted EventType = "score_submitted"
	EventScoreRejected  EventType = "score_rejected"
	EventRoundReset     EventType = "round_reset"

	// Leaderboards
	EventLeaderboardSnapshot EventType = "leaderboard_snapshot"

	// Automation
	EventEndlessStarted EventType = "endless_started"
	EventEndlessStopped EventType = "endless_stopped"
	EventTargetReached  EventType = "target_reached"

	// Server-reported application errors
	EventServerError EventType = "server_error"

	// Configuration
	EventConfigChanged EventType = "config_changed"

	// System
	EventShutdown EventType = "shutdown"
)

// Event is a single bus message.
type Event struct {
	Type    EventType
	Source  string
	Payload any
}

// ServerMessage is the payload of EventServerMessage: one decoded inbound
// frame with the event name already resolved (from the frame itself or from
// the pending request it answered).
type ServerMessage struct {
	MsgID   int64
	Event   string
	Payload []byte
}

// SubmissionResult is the payload of EventScoreSubmitted / EventScoreRejected.
type SubmissionResult struct {
	Index      int
	Score      int
	StartScore float64
	SyncState  bool
	Retried    bool
	ErrorCode  int
}

// ConfigChangedPayload names the configuration section that was updated.
type ConfigChangedPayload struct {
	Section string
}
