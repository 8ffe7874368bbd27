package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/examguard/examguard/internal/model"
	"github.com/examguard/examguard/internal/proctor"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the session lifecycle state.
type State string

const (
	StateInitializing State = "INITIALIZING"
	StateActive       State = "ACTIVE"
	StateSubmitting   State = "SUBMITTING"
	StateTerminated   State = "TERMINATED"
	StateError        State = "ERROR"
)

// Reason records why a session entered Submitting.
type Reason string

const (
	ReasonLimitExceeded Reason = "limit-exceeded"
	ReasonTimeUp        Reason = "time-up"
	ReasonUserSubmit    Reason = "user-submit"
)

// Defaults for the session policy knobs.
const (
	DefaultViolationLimit = 5
	DefaultDedupWindow    = 5 * time.Second
	DefaultStartupGrace   = 3 * time.Second

	submitTimeout = 30 * time.Second
)

// Config holds the per-session policy.
type Config struct {
	ExamID         uuid.UUID
	AccessCode     string
	ViolationLimit int
	DedupWindow    time.Duration
	StartupGrace   time.Duration
}

// Deps are the collaborators a session runs against.
type Deps struct {
	Coordinator Coordinator
	Reporter    Reporter
	Camera      Camera
	Detector    proctor.Detector
	Pacer       proctor.Pacer
	Log         zerolog.Logger
}

// Controller owns the only copy of a running exam session: the answer
// state, the countdown, and the counted violation sequence. It is the
// single authority on whether the session has terminated, and it
// guarantees exactly one submit call reaches the Coordinator.
//
// All transitions are serialized under one mutex; timer expiry,
// monitor violations, synthesized focus events and user submits go
// through the same guarded entry points.
type Controller struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger
	now  func() time.Time

	mu           sync.Mutex
	state        State
	reason       Reason
	setupCause   string
	submissionID uuid.UUID
	view         *model.ExamView
	answers      map[uuid.UUID]string
	violations   []model.Violation
	lastKind     model.ViolationKind
	lastAt       time.Time

	timer      *Countdown
	monitor    *proctor.Monitor
	graceTimer *time.Timer

	submitInFlight bool
	submitErr      error
	result         *model.SubmitResult
	done           chan struct{}
}

// NewController creates a session controller in Initializing state.
func NewController(cfg Config, deps Deps) *Controller {
	if cfg.ViolationLimit <= 0 {
		cfg.ViolationLimit = DefaultViolationLimit
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = DefaultDedupWindow
	}
	if cfg.StartupGrace < 0 {
		cfg.StartupGrace = DefaultStartupGrace
	}
	return &Controller{
		cfg:   cfg,
		deps:  deps,
		log:   deps.Log.With().Str("component", "session_controller").Str("exam_id", cfg.ExamID.String()).Logger(),
		now:   time.Now,
		state: StateInitializing,
		done:  make(chan struct{}),
	}
}

// Run drives the session from setup to termination. It blocks until the
// session terminates or ctx is cancelled (navigation away). The camera
// is released on every exit path.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.deps.Detector.Load(ctx); err != nil {
		return c.failSetup("face detector could not be loaded", err)
	}

	src, err := c.deps.Camera.Acquire(ctx)
	if err != nil {
		return c.failSetup("camera access is required", err)
	}
	defer c.deps.Camera.Release()

	subID, err := c.deps.Coordinator.Start(ctx, c.cfg.ExamID, c.cfg.AccessCode)
	if err != nil {
		return c.failSetup("could not start the exam session", err)
	}

	view, err := c.deps.Coordinator.FetchExam(ctx, c.cfg.ExamID)
	if err != nil {
		return c.failSetup("could not load the exam", err)
	}

	c.mu.Lock()
	c.submissionID = subID
	c.view = view
	c.answers = make(map[uuid.UUID]string, len(view.Questions))
	for _, q := range view.Questions {
		c.answers[q.ID] = ""
	}
	c.timer = NewCountdown(view.DurationMinutes*60, c.timeUp)
	c.monitor = proctor.NewMonitor(src, c.deps.Detector, c.deps.Pacer, c.RecordViolation, c.log)
	c.state = StateActive
	// Camera and detector are both ready here; wait out the startup
	// grace before flagging anything so setup jitter is not punished.
	c.graceTimer = time.AfterFunc(c.cfg.StartupGrace, c.monitor.Start)
	c.mu.Unlock()

	// Channel join is best-effort: the session proceeds without audit
	// reporting if the relay is unreachable.
	c.deps.Reporter.Join(subID)

	c.log.Info().
		Str("submission_id", subID.String()).
		Int("duration_minutes", view.DurationMinutes).
		Msg("Session active")
	c.timer.Start()

	select {
	case <-ctx.Done():
		c.teardown()
		return ctx.Err()
	case <-c.done:
		return nil
	}
}

// failSetup records a fatal setup failure: the session can never reach
// Active and is not submittable.
func (c *Controller) failSetup(cause string, err error) error {
	c.mu.Lock()
	c.state = StateError
	c.setupCause = cause
	c.mu.Unlock()
	c.log.Error().Err(err).Msg("Session setup failed")
	return fmt.Errorf("%s: %w", cause, err)
}

// RecordViolation runs a violation through dedup, counting and the limit
// check. Called from the monitor goroutine, its grace timer, and the
// focus/visibility hooks. Violations arriving outside Active are
// dropped — the monitor may race a stop by one tick.
func (c *Controller) RecordViolation(kind model.ViolationKind) {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}

	now := c.now()
	if c.lastKind == kind && !c.lastAt.IsZero() && now.Sub(c.lastAt) < c.cfg.DedupWindow {
		// Sliding window: an absorbed repeat still pushes the window
		// forward, so a continuous same-kind stream counts once.
		c.lastAt = now
		c.mu.Unlock()
		return
	}

	c.violations = append(c.violations, model.Violation{
		SubmissionID: c.submissionID,
		Kind:         kind,
		Severity:     model.SeverityMedium,
		RecordedAt:   now,
	})
	c.lastKind = kind
	c.lastAt = now

	subID := c.submissionID
	count := len(c.violations)
	if count >= c.cfg.ViolationLimit {
		c.beginSubmitLocked(ReasonLimitExceeded)
	}
	c.mu.Unlock()

	c.log.Warn().Str("kind", string(kind)).Int("count", count).Msg("Violation recorded")
	c.deps.Reporter.Report(subID, kind)
}

// PageHidden synthesizes a violation for a hidden document.
func (c *Controller) PageHidden() {
	c.RecordViolation(model.ViolationTabSwitch)
}

// WindowBlurred synthesizes a violation for lost window focus.
func (c *Controller) WindowBlurred() {
	c.RecordViolation(model.ViolationWindowBlur)
}

// SetAnswer records an answer for a question. Keys are fixed at session
// start; mutation is rejected once submission has begun.
func (c *Controller) SetAnswer(questionID uuid.UUID, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive {
		return ErrSessionClosed
	}
	if _, ok := c.answers[questionID]; !ok {
		return ErrUnknownQuestion
	}
	c.answers[questionID] = value
	return nil
}

// Answers returns a snapshot of the current answer mapping keyed by
// question id string, the shape the Coordinator consumes.
func (c *Controller) Answers() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answersLocked()
}

func (c *Controller) answersLocked() map[string]string {
	out := make(map[string]string, len(c.answers))
	for id, v := range c.answers {
		out[id.String()] = v
	}
	return out
}

// Submit requests submission on the student's behalf. While a failed
// submit is pending retry it fires the call again; any other concurrent
// trigger is ignored by the single-entry guard.
func (c *Controller) Submit() {
	c.mu.Lock()
	switch {
	case c.state == StateActive:
		c.beginSubmitLocked(ReasonUserSubmit)
	case c.state == StateSubmitting && !c.submitInFlight && c.submitErr != nil:
		// Retry after a failed submit; the original reason stands.
		c.submitInFlight = true
		c.submitErr = nil
		answers := c.answersLocked()
		subID := c.submissionID
		go c.doSubmit(subID, answers)
	}
	c.mu.Unlock()
}

// timeUp is the countdown expiry callback.
func (c *Controller) timeUp() {
	c.mu.Lock()
	c.beginSubmitLocked(ReasonTimeUp)
	c.mu.Unlock()
}

// beginSubmitLocked is the only entry into Submitting. The first caller
// wins; it synchronously stops the monitor and timer so no further
// violations or time decrements can arrive once submission has started.
func (c *Controller) beginSubmitLocked(reason Reason) {
	if c.state != StateActive {
		return
	}
	c.state = StateSubmitting
	c.reason = reason
	c.stopClocksLocked()
	c.submitInFlight = true

	answers := c.answersLocked()
	subID := c.submissionID
	c.log.Info().Str("reason", string(reason)).Msg("Submitting session")
	go c.doSubmit(subID, answers)
}

func (c *Controller) stopClocksLocked() {
	if c.graceTimer != nil {
		c.graceTimer.Stop()
	}
	if c.monitor != nil {
		c.monitor.Stop()
	}
	if c.timer != nil {
		c.timer.Stop()
	}
}

func (c *Controller) doSubmit(subID uuid.UUID, answers map[string]string) {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	res, err := c.deps.Coordinator.Submit(ctx, subID, answers)

	c.mu.Lock()
	c.submitInFlight = false
	if err != nil {
		// Recoverable: stay in Submitting so the student can retry
		// without re-incurring counted violations.
		c.submitErr = err
		c.mu.Unlock()
		c.log.Error().Err(err).Msg("Submit failed, retry possible")
		return
	}
	c.result = res
	c.state = StateTerminated
	reason := c.reason
	close(c.done)
	c.mu.Unlock()

	c.log.Info().
		Int("score", res.Score).
		Int("total_marks", res.TotalMarks).
		Str("reason", string(reason)).
		Msg("Session terminated")

	// Terminated: the audit channel is disconnected last.
	_ = c.deps.Reporter.Close()
}

// teardown releases session resources when the caller abandons the run
// (context cancelled) without a terminal transition.
func (c *Controller) teardown() {
	c.mu.Lock()
	c.stopClocksLocked()
	c.mu.Unlock()
	_ = c.deps.Reporter.Close()
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reason returns why submission was triggered, once it has been.
func (c *Controller) Reason() Reason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// SetupCause returns the human-readable cause after a setup failure.
func (c *Controller) SetupCause() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setupCause
}

// SubmissionID returns the attempt id obtained at setup.
func (c *Controller) SubmissionID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submissionID
}

// Remaining returns the countdown's remaining seconds.
func (c *Controller) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer == nil {
		return 0
	}
	return c.timer.Remaining()
}

// Violations returns a copy of the counted violation sequence.
func (c *Controller) Violations() []model.Violation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Violation, len(c.violations))
	copy(out, c.violations)
	return out
}

// SubmitError returns the error of the last failed submit attempt, if
// the session is awaiting a retry.
func (c *Controller) SubmitError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitErr
}

// Result returns the graded result once the session has terminated.
func (c *Controller) Result() *model.SubmitResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}
