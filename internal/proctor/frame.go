package proctor

import (
	"context"
	"image"
	"time"
)

// FrameSource is a live video source that can be sampled for its most
// recent frame. Ready reports whether frames are flowing yet — the
// Monitor skips ticks until the source warms up.
type FrameSource interface {
	Ready() bool
	Frame() (image.Image, error)
}

// Pacer paces the monitor loop to the frame cadence. Wait blocks until
// the next tick is due or the context is cancelled. It replaces a fixed
// interval timer so the loop never outruns the source's refresh rate.
type Pacer interface {
	Wait(ctx context.Context) error
}

// DefaultFPS is the frame analysis rate when none is configured.
const DefaultFPS = 30

// TickerPacer paces ticks at a fixed frame interval.
type TickerPacer struct {
	Interval time.Duration
}

// NewTickerPacer returns a pacer at the given frames-per-second rate.
func NewTickerPacer(fps int) *TickerPacer {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &TickerPacer{Interval: time.Second / time.Duration(fps)}
}

// Wait blocks for one frame interval or until ctx is cancelled.
func (p *TickerPacer) Wait(ctx context.Context) error {
	t := time.NewTimer(p.Interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
