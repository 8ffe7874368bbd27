package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationKind enumerates integrity-signal event types.
type ViolationKind string

const (
	ViolationObscuredCamera ViolationKind = "OBSCURED_CAMERA"
	ViolationMultipleFaces  ViolationKind = "MULTIPLE_FACES"
	ViolationNoFace         ViolationKind = "NO_FACE_DETECTED"
	ViolationTabSwitch      ViolationKind = "TAB_SWITCH"
	ViolationWindowBlur     ViolationKind = "WINDOW_BLUR"
)

// SeverityMedium is the default severity attached to relayed violations.
const SeverityMedium = "medium"

// Violation is one integrity event recorded against a submission.
// The sequence per submission is append-only.
type Violation struct {
	ID           int64         `json:"id"`
	SubmissionID uuid.UUID     `json:"submission_id"`
	Kind         ViolationKind `json:"kind"`
	Severity     string        `json:"severity"`
	RecordedAt   time.Time     `json:"recorded_at"`
}
