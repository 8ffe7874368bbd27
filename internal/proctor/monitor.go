package proctor

import (
	"context"
	"sync"
	"time"

	"github.com/examguard/examguard/internal/model"
	"github.com/rs/zerolog"
)

// DefaultNoFaceGrace is how long the frame may stay face-free before a
// NO_FACE_DETECTED violation is confirmed. Short look-aways are absorbed.
const DefaultNoFaceGrace = 7 * time.Second

// Monitor turns a live frame source into a stream of classified
// integrity violations. All state is owned by the instance — repeated
// session lifecycles never share detectors or running flags.
//
// Per tick: skip while the source is not ready; run the cheap obscured
// check before the detector; more than one detection reports
// immediately, zero detections only after the no-face grace elapses
// uninterrupted.
type Monitor struct {
	src         FrameSource
	det         Detector
	pacer       Pacer
	emit        func(model.ViolationKind)
	noFaceGrace time.Duration
	log         zerolog.Logger

	mu          sync.Mutex
	running     bool
	cancel      context.CancelFunc
	noFaceTimer *time.Timer
}

// NewMonitor creates a stopped Monitor. emit is invoked from the monitor
// goroutine (or the grace-timer goroutine) for every raw violation; the
// caller is responsible for dedup and counting.
func NewMonitor(src FrameSource, det Detector, pacer Pacer, emit func(model.ViolationKind), log zerolog.Logger) *Monitor {
	if pacer == nil {
		pacer = NewTickerPacer(DefaultFPS)
	}
	return &Monitor{
		src:         src,
		det:         det,
		pacer:       pacer,
		emit:        emit,
		noFaceGrace: DefaultNoFaceGrace,
		log:         log.With().Str("component", "proctor_monitor").Logger(),
	}
}

// Start launches the polling loop. Starting an already-running monitor
// warns and does nothing.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.log.Warn().Msg("Monitor already running, ignoring Start")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	m.log.Info().Msg("Monitor started")
	go m.loop(ctx)
}

// Stop halts the loop, cancelling the pending tick and any armed no-face
// grace timer. Safe to call repeatedly and from violation callbacks.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	m.cancelNoFaceLocked()
	m.mu.Unlock()

	m.log.Info().Msg("Monitor stopped")
}

// Running reports whether the loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(ctx context.Context) {
	for {
		if err := m.pacer.Wait(ctx); err != nil {
			return
		}
		m.tick(ctx)
	}
}

func (m *Monitor) tick(ctx context.Context) {
	if !m.src.Ready() {
		return
	}

	frame, err := m.src.Frame()
	if err != nil {
		m.log.Debug().Err(err).Msg("Frame grab failed")
		return
	}

	// Darkness check runs first — it is far cheaper than detection and
	// an obscured frame makes the face count meaningless.
	if Obscured(frame) {
		m.report(model.ViolationObscuredCamera)
		return
	}

	detections, err := m.det.Detect(ctx, frame)
	if err != nil {
		m.log.Debug().Err(err).Msg("Detection failed")
		return
	}

	switch {
	case len(detections) > 1:
		m.mu.Lock()
		m.cancelNoFaceLocked()
		m.mu.Unlock()
		m.report(model.ViolationMultipleFaces)
	case len(detections) == 0:
		m.armNoFace()
	default:
		m.mu.Lock()
		m.cancelNoFaceLocked()
		m.mu.Unlock()
	}
}

// armNoFace starts the grace timer unless one is already pending. If it
// fires without being cancelled by a later single-face tick, the
// sustained absence is reported.
func (m *Monitor) armNoFace() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || m.noFaceTimer != nil {
		return
	}
	m.noFaceTimer = time.AfterFunc(m.noFaceGrace, func() {
		m.mu.Lock()
		fire := m.running
		m.noFaceTimer = nil
		m.mu.Unlock()
		if fire {
			m.report(model.ViolationNoFace)
		}
	})
}

func (m *Monitor) cancelNoFaceLocked() {
	if m.noFaceTimer != nil {
		m.noFaceTimer.Stop()
		m.noFaceTimer = nil
	}
}

// report forwards a violation unless the monitor has been stopped. The
// emit callback runs outside the monitor lock so it may call Stop.
func (m *Monitor) report(kind model.ViolationKind) {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	if running {
		m.emit(kind)
	}
}
