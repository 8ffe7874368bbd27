package session

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/examguard/examguard/internal/model"
	"github.com/examguard/examguard/internal/proctor"
)

// ─────────────────────────── Fakes ───────────────────────────

type fakeCoordinator struct {
	mu            sync.Mutex
	view          *model.ExamView
	startErr      error
	fetchErr      error
	submitErr     error
	submitCalls   int
	gotAccessCode string
	gotAnswers    map[string]string
	result        *model.SubmitResult
}

func (f *fakeCoordinator) Start(_ context.Context, _ uuid.UUID, accessCode string) (uuid.UUID, error) {
	f.mu.Lock()
	f.gotAccessCode = accessCode
	f.mu.Unlock()
	if f.startErr != nil {
		return uuid.Nil, f.startErr
	}
	return uuid.New(), nil
}

func (f *fakeCoordinator) FetchExam(_ context.Context, _ uuid.UUID) (*model.ExamView, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.view, nil
}

func (f *fakeCoordinator) Submit(_ context.Context, subID uuid.UUID, answers map[string]string) (*model.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	f.gotAnswers = answers
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &model.SubmitResult{SubmissionID: subID, Score: 7, TotalMarks: 10}, nil
}

func (f *fakeCoordinator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}

func (f *fakeCoordinator) setSubmitErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitErr = err
}

type fakeReporter struct {
	mu      sync.Mutex
	joins   []uuid.UUID
	reports []model.ViolationKind
	closes  int
}

func (f *fakeReporter) Join(subID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, subID)
}

func (f *fakeReporter) Report(_ uuid.UUID, kind model.ViolationKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, kind)
}

func (f *fakeReporter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeReporter) closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

type fakeSource struct{}

func (fakeSource) Ready() bool                 { return false }
func (fakeSource) Frame() (image.Image, error) { return nil, errors.New("no frame") }

type fakeCamera struct {
	acquireErr error
	released   int
	mu         sync.Mutex
}

func (f *fakeCamera) Acquire(_ context.Context) (proctor.FrameSource, error) {
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	return fakeSource{}, nil
}

func (f *fakeCamera) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
}

type fakeDetector struct {
	loadErr error
}

func (f *fakeDetector) Load(_ context.Context) error { return f.loadErr }
func (f *fakeDetector) Detect(_ context.Context, _ image.Image) ([]proctor.Detection, error) {
	return nil, nil
}

// idlePacer parks the monitor loop until its context is cancelled, so
// no ticks interfere with violations injected directly by the tests.
type idlePacer struct{}

func (idlePacer) Wait(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// ─────────────────────────── Harness ───────────────────────────

type harness struct {
	ctrl   *Controller
	coord  *fakeCoordinator
	rep    *fakeReporter
	cam    *fakeCamera
	cancel context.CancelFunc
	runErr chan error
}

func examView(durationMinutes int) *model.ExamView {
	return &model.ExamView{
		ExamID:          uuid.New(),
		Title:           "Algebra Midterm",
		DurationMinutes: durationMinutes,
		Questions: []model.QuestionView{
			{ID: uuid.New(), QuestionText: "2+2?", QuestionType: model.QuestionTypeMultipleChoice, Points: 5, OrderNum: 1},
			{ID: uuid.New(), QuestionText: "Explain.", QuestionType: model.QuestionTypeFreeText, Points: 5, OrderNum: 2},
		},
	}
}

func newHarness(t *testing.T, cfg Config, coord *fakeCoordinator) *harness {
	t.Helper()
	if coord.view == nil {
		coord.view = examView(60)
	}
	if cfg.StartupGrace == 0 {
		// Keep the monitor parked; these tests drive violations directly.
		cfg.StartupGrace = time.Hour
	}
	rep := &fakeReporter{}
	cam := &fakeCamera{}
	ctrl := NewController(cfg, Deps{
		Coordinator: coord,
		Reporter:    rep,
		Camera:      cam,
		Detector:    &fakeDetector{},
		Pacer:       idlePacer{},
		Log:         zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- ctrl.Run(ctx) }()
	t.Cleanup(cancel)

	return &harness{ctrl: ctrl, coord: coord, rep: rep, cam: cam, cancel: cancel, runErr: runErr}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) waitActive(t *testing.T) {
	t.Helper()
	waitFor(t, "session to become active", func() bool { return h.ctrl.State() == StateActive })
}

func (h *harness) waitTerminated(t *testing.T) {
	t.Helper()
	waitFor(t, "session to terminate", func() bool { return h.ctrl.State() == StateTerminated })
	select {
	case err := <-h.runErr:
		if err != nil {
			t.Fatalf("Run returned %v after termination", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after termination")
	}
}

// steppedClock replaces the controller clock with one the test advances
// manually, making the dedup window deterministic.
type steppedClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *steppedClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *steppedClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(d)
}

// ─────────────────────────── Setup failures ───────────────────────────

func TestRunFailsWhenDetectorCannotLoad(t *testing.T) {
	coord := &fakeCoordinator{view: examView(60)}
	rep := &fakeReporter{}
	ctrl := NewController(Config{ExamID: uuid.New()}, Deps{
		Coordinator: coord,
		Reporter:    rep,
		Camera:      &fakeCamera{},
		Detector:    &fakeDetector{loadErr: errors.New("model missing")},
		Pacer:       idlePacer{},
		Log:         zerolog.Nop(),
	})

	err := ctrl.Run(context.Background())
	if err == nil {
		t.Fatal("expected Run to fail")
	}
	if ctrl.State() != StateError {
		t.Fatalf("state = %s, want %s", ctrl.State(), StateError)
	}
	if ctrl.SetupCause() != "face detector could not be loaded" {
		t.Fatalf("unexpected setup cause %q", ctrl.SetupCause())
	}
	if coord.calls() != 0 {
		t.Fatal("no submit should reach the coordinator on setup failure")
	}
}

func TestRunFailsWhenCameraUnavailable(t *testing.T) {
	ctrl := NewController(Config{ExamID: uuid.New()}, Deps{
		Coordinator: &fakeCoordinator{view: examView(60)},
		Reporter:    &fakeReporter{},
		Camera:      &fakeCamera{acquireErr: errors.New("device busy")},
		Detector:    &fakeDetector{},
		Pacer:       idlePacer{},
		Log:         zerolog.Nop(),
	})

	if err := ctrl.Run(context.Background()); err == nil {
		t.Fatal("expected Run to fail")
	}
	if ctrl.SetupCause() != "camera access is required" {
		t.Fatalf("unexpected setup cause %q", ctrl.SetupCause())
	}
}

func TestRunRejectsCompletedAttempt(t *testing.T) {
	cam := &fakeCamera{}
	ctrl := NewController(Config{ExamID: uuid.New()}, Deps{
		Coordinator: &fakeCoordinator{view: examView(60), startErr: ErrAlreadyCompleted},
		Reporter:    &fakeReporter{},
		Camera:      cam,
		Detector:    &fakeDetector{},
		Pacer:       idlePacer{},
		Log:         zerolog.Nop(),
	})

	err := ctrl.Run(context.Background())
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("err = %v, want ErrAlreadyCompleted", err)
	}
	if ctrl.State() != StateError {
		t.Fatalf("state = %s, want %s", ctrl.State(), StateError)
	}
	if cam.released != 1 {
		t.Fatalf("camera released %d times, want 1", cam.released)
	}
}

func TestRunPresentsAccessCode(t *testing.T) {
	coord := &fakeCoordinator{}
	h := newHarness(t, Config{ExamID: uuid.New(), AccessCode: "EXAM-2024"}, coord)
	h.waitActive(t)

	coord.mu.Lock()
	got := coord.gotAccessCode
	coord.mu.Unlock()
	if got != "EXAM-2024" {
		t.Fatalf("access code presented at start = %q, want %q", got, "EXAM-2024")
	}
}

// ─────────────────────────── Violations ───────────────────────────

func TestRecordViolationDedupsWithinWindow(t *testing.T) {
	h := newHarness(t, Config{ExamID: uuid.New()}, &fakeCoordinator{})
	h.waitActive(t)

	clock := &steppedClock{cur: time.Now()}
	h.ctrl.now = clock.now

	h.ctrl.RecordViolation(model.ViolationNoFace)
	clock.advance(2 * time.Second)
	h.ctrl.RecordViolation(model.ViolationNoFace) // inside window, dropped
	if got := len(h.ctrl.Violations()); got != 1 {
		t.Fatalf("violations = %d, want 1", got)
	}

	// Sliding window: the dropped repeat pushed the window forward, so
	// another repeat 4s later (6s after the counted one) is still absorbed.
	clock.advance(4 * time.Second)
	h.ctrl.RecordViolation(model.ViolationNoFace)
	if got := len(h.ctrl.Violations()); got != 1 {
		t.Fatalf("violations = %d, want 1 under a sliding window", got)
	}

	clock.advance(DefaultDedupWindow)
	h.ctrl.RecordViolation(model.ViolationNoFace) // window elapsed, counted
	if got := len(h.ctrl.Violations()); got != 2 {
		t.Fatalf("violations = %d, want 2", got)
	}

	h.ctrl.RecordViolation(model.ViolationTabSwitch) // different kind, counted
	if got := len(h.ctrl.Violations()); got != 3 {
		t.Fatalf("violations = %d, want 3", got)
	}
}

func TestSameKindBurstCountsOnce(t *testing.T) {
	h := newHarness(t, Config{ExamID: uuid.New()}, &fakeCoordinator{})
	h.waitActive(t)

	clock := &steppedClock{cur: time.Now()}
	h.ctrl.now = clock.now

	// Six repeats, each inside the window of the one before, collapse
	// to a single counted violation however long the burst runs.
	for i := 0; i < 6; i++ {
		h.ctrl.RecordViolation(model.ViolationNoFace)
		clock.advance(4 * time.Second)
	}
	if got := len(h.ctrl.Violations()); got != 1 {
		t.Fatalf("violations = %d, want 1", got)
	}
}

func TestViolationLimitForcesSubmit(t *testing.T) {
	coord := &fakeCoordinator{}
	h := newHarness(t, Config{ExamID: uuid.New()}, coord)
	h.waitActive(t)

	clock := &steppedClock{cur: time.Now()}
	h.ctrl.now = clock.now

	for i := 0; i < DefaultViolationLimit; i++ {
		h.ctrl.RecordViolation(model.ViolationNoFace)
		clock.advance(DefaultDedupWindow + time.Second)
	}

	h.waitTerminated(t)
	if h.ctrl.Reason() != ReasonLimitExceeded {
		t.Fatalf("reason = %s, want %s", h.ctrl.Reason(), ReasonLimitExceeded)
	}
	if got := len(h.ctrl.Violations()); got != DefaultViolationLimit {
		t.Fatalf("violations = %d, want %d", got, DefaultViolationLimit)
	}
	if coord.calls() != 1 {
		t.Fatalf("submit calls = %d, want 1", coord.calls())
	}
	if h.rep.closed() == 0 {
		t.Fatal("reporter should be closed after termination")
	}
}

func TestViolationsDroppedAfterSubmitBegins(t *testing.T) {
	coord := &fakeCoordinator{}
	h := newHarness(t, Config{ExamID: uuid.New()}, coord)
	h.waitActive(t)

	h.ctrl.Submit()
	h.waitTerminated(t)

	h.ctrl.RecordViolation(model.ViolationMultipleFaces)
	if got := len(h.ctrl.Violations()); got != 0 {
		t.Fatalf("violations = %d, want 0 after submit", got)
	}
}

func TestFocusEventsCountAsViolations(t *testing.T) {
	h := newHarness(t, Config{ExamID: uuid.New()}, &fakeCoordinator{})
	h.waitActive(t)

	clock := &steppedClock{cur: time.Now()}
	h.ctrl.now = clock.now

	h.ctrl.PageHidden()
	clock.advance(DefaultDedupWindow + time.Second)
	h.ctrl.WindowBlurred()

	violations := h.ctrl.Violations()
	if len(violations) != 2 {
		t.Fatalf("violations = %d, want 2", len(violations))
	}
	if violations[0].Kind != model.ViolationTabSwitch || violations[1].Kind != model.ViolationWindowBlur {
		t.Fatalf("unexpected kinds %s, %s", violations[0].Kind, violations[1].Kind)
	}
	waitFor(t, "reporter to receive both events", func() bool {
		h.rep.mu.Lock()
		defer h.rep.mu.Unlock()
		return len(h.rep.reports) == 2
	})
}

// ─────────────────────────── Submission paths ───────────────────────────

func TestTimerExpiryTriggersTimeUpSubmit(t *testing.T) {
	coord := &fakeCoordinator{view: examView(0)}
	h := newHarness(t, Config{ExamID: uuid.New()}, coord)

	h.waitTerminated(t)
	if h.ctrl.Reason() != ReasonTimeUp {
		t.Fatalf("reason = %s, want %s", h.ctrl.Reason(), ReasonTimeUp)
	}
	if coord.calls() != 1 {
		t.Fatalf("submit calls = %d, want 1", coord.calls())
	}
}

func TestUserSubmitCarriesAnswers(t *testing.T) {
	coord := &fakeCoordinator{}
	h := newHarness(t, Config{ExamID: uuid.New()}, coord)
	h.waitActive(t)

	qID := coord.view.Questions[0].ID
	if err := h.ctrl.SetAnswer(qID, "option-a"); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}

	h.ctrl.Submit()
	h.waitTerminated(t)

	if h.ctrl.Reason() != ReasonUserSubmit {
		t.Fatalf("reason = %s, want %s", h.ctrl.Reason(), ReasonUserSubmit)
	}
	coord.mu.Lock()
	defer coord.mu.Unlock()
	if coord.gotAnswers[qID.String()] != "option-a" {
		t.Fatalf("answers delivered = %v", coord.gotAnswers)
	}
	if len(coord.gotAnswers) != len(coord.view.Questions) {
		t.Fatalf("answer rows = %d, want one per question", len(coord.gotAnswers))
	}
}

func TestFailedSubmitStaysRetryable(t *testing.T) {
	coord := &fakeCoordinator{submitErr: errors.New("server unreachable")}
	h := newHarness(t, Config{ExamID: uuid.New()}, coord)
	h.waitActive(t)

	h.ctrl.Submit()
	waitFor(t, "first submit attempt to fail", func() bool { return h.ctrl.SubmitError() != nil })
	if h.ctrl.State() != StateSubmitting {
		t.Fatalf("state = %s, want %s", h.ctrl.State(), StateSubmitting)
	}

	coord.setSubmitErr(nil)
	h.ctrl.Submit()
	h.waitTerminated(t)

	if h.ctrl.Reason() != ReasonUserSubmit {
		t.Fatalf("retry changed reason to %s", h.ctrl.Reason())
	}
	if coord.calls() != 2 {
		t.Fatalf("submit calls = %d, want 2", coord.calls())
	}
	if h.ctrl.Result() == nil {
		t.Fatal("result missing after successful retry")
	}
}

func TestConcurrentTriggersSubmitOnce(t *testing.T) {
	coord := &fakeCoordinator{}
	h := newHarness(t, Config{ExamID: uuid.New()}, coord)
	h.waitActive(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.ctrl.Submit()
		}()
		go func() {
			defer wg.Done()
			h.ctrl.RecordViolation(model.ViolationNoFace)
		}()
	}
	wg.Wait()

	h.waitTerminated(t)
	if coord.calls() != 1 {
		t.Fatalf("submit calls = %d, want exactly 1", coord.calls())
	}
}

// ─────────────────────────── Answers ───────────────────────────

func TestSetAnswerValidation(t *testing.T) {
	coord := &fakeCoordinator{}
	h := newHarness(t, Config{ExamID: uuid.New()}, coord)
	h.waitActive(t)

	if err := h.ctrl.SetAnswer(uuid.New(), "x"); !errors.Is(err, ErrUnknownQuestion) {
		t.Fatalf("err = %v, want ErrUnknownQuestion", err)
	}

	h.ctrl.Submit()
	h.waitTerminated(t)

	qID := coord.view.Questions[0].ID
	if err := h.ctrl.SetAnswer(qID, "late"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("err = %v, want ErrSessionClosed", err)
	}
}

// ─────────────────────────── Teardown ───────────────────────────

func TestContextCancelAbandonsSession(t *testing.T) {
	coord := &fakeCoordinator{}
	h := newHarness(t, Config{ExamID: uuid.New()}, coord)
	h.waitActive(t)

	h.cancel()
	select {
	case err := <-h.runErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run err = %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if coord.calls() != 0 {
		t.Fatal("abandonment must not submit")
	}
	if h.rep.closed() == 0 {
		t.Fatal("reporter should be closed on teardown")
	}
	if h.cam.released != 1 {
		t.Fatalf("camera released %d times, want 1", h.cam.released)
	}
}
