package relay

import (
	"time"

	"github.com/examguard/examguard/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionJoin      Action = "join-exam-room"
	ActionViolation Action = "proctoring-violation"
	ActionPing      Action = "ping"
)

// RequestPayload is the single client→server message shape. Type is
// only set for proctoring-violation.
type RequestPayload struct {
	Action       Action              `json:"action"`
	SubmissionID string              `json:"submission_id"`
	Type         model.ViolationKind `json:"type,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventJoined            Event = "joined"
	EventViolationDetected Event = "violation-detected"
	EventError             Event = "error"
	EventPong              Event = "pong"
)

// JoinedResponse confirms room membership.
type JoinedResponse struct {
	Event        Event  `json:"event"`
	SubmissionID string `json:"submission_id"`
}

// ViolationDetected is broadcast to every member of a submission room
// when a confirmed violation arrives.
type ViolationDetected struct {
	Event     Event               `json:"event"`
	Type      model.ViolationKind `json:"type"`
	Timestamp time.Time           `json:"timestamp"`
	Severity  string              `json:"severity"`
}

// ErrorResponse reports a rejected message.
type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

// PongResponse answers a ping.
type PongResponse struct {
	Event Event `json:"event"`
}
