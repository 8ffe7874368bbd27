package proctor

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/examguard/examguard/internal/model"
)

// scriptSource serves whatever frame the test loads into it.
type scriptSource struct {
	mu    sync.Mutex
	ready bool
	frame image.Image
}

func (s *scriptSource) set(frame image.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	s.frame = frame
}

func (s *scriptSource) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *scriptSource) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, nil
}

// scriptDetector returns a programmable face count and records whether
// it was consulted at all.
type scriptDetector struct {
	mu     sync.Mutex
	faces  int
	called int
}

func (d *scriptDetector) Load(_ context.Context) error { return nil }

func (d *scriptDetector) Detect(_ context.Context, _ image.Image) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.called++
	out := make([]Detection, d.faces)
	for i := range out {
		out[i] = Detection{Score: 0.9}
	}
	return out, nil
}

func (d *scriptDetector) setFaces(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.faces = n
}

func (d *scriptDetector) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.called
}

// stepPacer releases exactly one monitor tick per step call.
type stepPacer struct {
	ch chan struct{}
}

func newStepPacer() *stepPacer { return &stepPacer{ch: make(chan struct{})} }

func (p *stepPacer) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ch:
		return nil
	}
}

func (p *stepPacer) step(t *testing.T) {
	t.Helper()
	select {
	case p.ch <- struct{}{}:
	case <-time.After(time.Second):
		t.Fatal("monitor loop is not consuming ticks")
	}
}

type capture struct {
	mu    sync.Mutex
	kinds []model.ViolationKind
}

func (c *capture) emit(kind model.ViolationKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, kind)
}

func (c *capture) snapshot() []model.ViolationKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.ViolationKind, len(c.kinds))
	copy(out, c.kinds)
	return out
}

func (c *capture) waitCount(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(c.snapshot()) >= n {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("captured %d violations, want %d", len(c.snapshot()), n)
}

func brightFrame() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img
}

func darkFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 32, 32)) // zero value is black
}

func newTestMonitor(src FrameSource, det Detector, pacer Pacer, emit func(model.ViolationKind)) *Monitor {
	return NewMonitor(src, det, pacer, emit, zerolog.Nop())
}

func TestMonitorSkipsUntilSourceReady(t *testing.T) {
	src := &scriptSource{}
	det := &scriptDetector{}
	pacer := newStepPacer()
	rec := &capture{}

	m := newTestMonitor(src, det, pacer, rec.emit)
	m.Start()
	defer m.Stop()

	pacer.step(t)
	pacer.step(t)
	if det.calls() != 0 {
		t.Fatal("detector must not run before the source is ready")
	}
	if len(rec.snapshot()) != 0 {
		t.Fatal("no violations expected from a warming source")
	}
}

func TestMonitorReportsObscuredBeforeDetecting(t *testing.T) {
	src := &scriptSource{}
	src.set(darkFrame())
	det := &scriptDetector{}
	pacer := newStepPacer()
	rec := &capture{}

	m := newTestMonitor(src, det, pacer, rec.emit)
	m.Start()
	defer m.Stop()

	pacer.step(t)
	rec.waitCount(t, 1)

	got := rec.snapshot()
	if got[0] != model.ViolationObscuredCamera {
		t.Fatalf("kind = %s, want %s", got[0], model.ViolationObscuredCamera)
	}
	if det.calls() != 0 {
		t.Fatal("detector must be skipped for an obscured frame")
	}
}

func TestMonitorReportsMultipleFacesImmediately(t *testing.T) {
	src := &scriptSource{}
	src.set(brightFrame())
	det := &scriptDetector{}
	det.setFaces(2)
	pacer := newStepPacer()
	rec := &capture{}

	m := newTestMonitor(src, det, pacer, rec.emit)
	m.Start()
	defer m.Stop()

	pacer.step(t)
	rec.waitCount(t, 1)

	if got := rec.snapshot(); got[0] != model.ViolationMultipleFaces {
		t.Fatalf("kind = %s, want %s", got[0], model.ViolationMultipleFaces)
	}
}

func TestMonitorNoFaceWaitsOutGrace(t *testing.T) {
	src := &scriptSource{}
	src.set(brightFrame())
	det := &scriptDetector{} // zero faces
	pacer := newStepPacer()
	rec := &capture{}

	m := newTestMonitor(src, det, pacer, rec.emit)
	m.noFaceGrace = 30 * time.Millisecond
	m.Start()
	defer m.Stop()

	pacer.step(t)
	if len(rec.snapshot()) != 0 {
		t.Fatal("no-face must not report before the grace elapses")
	}

	rec.waitCount(t, 1)
	if got := rec.snapshot(); got[0] != model.ViolationNoFace {
		t.Fatalf("kind = %s, want %s", got[0], model.ViolationNoFace)
	}
}

func TestMonitorFaceReturnCancelsNoFaceGrace(t *testing.T) {
	src := &scriptSource{}
	src.set(brightFrame())
	det := &scriptDetector{}
	pacer := newStepPacer()
	rec := &capture{}

	m := newTestMonitor(src, det, pacer, rec.emit)
	m.noFaceGrace = 80 * time.Millisecond
	m.Start()
	defer m.Stop()

	pacer.step(t) // zero faces arms the grace timer

	det.setFaces(1)
	pacer.step(t) // single face cancels it

	time.Sleep(150 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("captured %v, want none after the face returned", got)
	}
}

func TestMonitorStopIsIdempotent(t *testing.T) {
	src := &scriptSource{}
	det := &scriptDetector{}
	pacer := newStepPacer()

	m := newTestMonitor(src, det, pacer, func(model.ViolationKind) {})
	m.Start()
	if !m.Running() {
		t.Fatal("monitor should be running after Start")
	}
	m.Stop()
	m.Stop()
	if m.Running() {
		t.Fatal("monitor should be stopped")
	}
}

func TestMonitorEmitMayStopWithoutDeadlock(t *testing.T) {
	src := &scriptSource{}
	src.set(darkFrame())
	det := &scriptDetector{}
	pacer := newStepPacer()

	var m *Monitor
	stopped := make(chan struct{})
	m = NewMonitor(src, det, pacer, func(model.ViolationKind) {
		m.Stop()
		close(stopped)
	}, zerolog.Nop())
	m.Start()

	pacer.step(t)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("emit callback deadlocked calling Stop")
	}
	if m.Running() {
		t.Fatal("monitor should be stopped by its own callback")
	}
}

func TestMonitorDropsViolationsAfterStop(t *testing.T) {
	src := &scriptSource{}
	src.set(brightFrame())
	det := &scriptDetector{}
	pacer := newStepPacer()
	rec := &capture{}

	m := newTestMonitor(src, det, pacer, rec.emit)
	m.noFaceGrace = 20 * time.Millisecond
	m.Start()

	pacer.step(t) // arm the no-face grace
	m.Stop()      // stop must cancel it

	time.Sleep(60 * time.Millisecond)
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("captured %v after Stop, want none", got)
	}
}
