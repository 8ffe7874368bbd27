package session

import (
	"context"
	"errors"

	"github.com/examguard/examguard/internal/model"
	"github.com/examguard/examguard/internal/proctor"
	"github.com/google/uuid"
)

// Boundary errors surfaced by Coordinator implementations and by the
// Controller itself.
var (
	// ErrAlreadyCompleted means a submitted attempt already exists for
	// this student and exam. Fatal to setup.
	ErrAlreadyCompleted = errors.New("exam already completed")
	// ErrSessionClosed is returned for mutations after the session
	// reached a terminal or submitting state.
	ErrSessionClosed = errors.New("session is no longer accepting changes")
	// ErrUnknownQuestion is returned for answers to question ids that
	// were not part of the exam snapshot.
	ErrUnknownQuestion = errors.New("unknown question id")
)

// Coordinator is the submission boundary: it owns attempt creation,
// the student-safe exam view, and the one final graded write. The
// Controller guarantees Submit is driven at most once per session.
type Coordinator interface {
	// Start creates or resumes the attempt for an exam and returns its
	// submission id. The access code gates entry server-side; a finished
	// attempt fails with ErrAlreadyCompleted.
	Start(ctx context.Context, examID uuid.UUID, accessCode string) (uuid.UUID, error)
	// FetchExam returns the student-safe exam view.
	FetchExam(ctx context.Context, examID uuid.UUID) (*model.ExamView, error)
	// Submit writes the full answer mapping and returns the graded result.
	Submit(ctx context.Context, submissionID uuid.UUID, answers map[string]string) (*model.SubmitResult, error)
}

// Reporter is the realtime violation channel. Delivery is best-effort:
// implementations must never block the caller or surface errors into
// the session — loss of the channel is purely an audit gap.
type Reporter interface {
	Join(submissionID uuid.UUID)
	Report(submissionID uuid.UUID, kind model.ViolationKind)
	Close() error
}

// Camera acquires the exclusive camera stream for a session. Release
// must be safe to call exactly once after a successful Acquire.
type Camera interface {
	Acquire(ctx context.Context) (proctor.FrameSource, error)
	Release()
}
