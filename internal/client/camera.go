package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/examguard/examguard/internal/proctor"
)

// MJPEGCamera acquires an MJPEG webcam stream as the session's exclusive
// frame source. Acquire and Release are paired by the session runner.
type MJPEGCamera struct {
	URL    string
	Client *http.Client

	src *proctor.MJPEGSource
}

// Acquire opens the stream. Failures are setup failures for the session.
func (c *MJPEGCamera) Acquire(ctx context.Context) (proctor.FrameSource, error) {
	if c.src != nil {
		return nil, fmt.Errorf("camera already acquired")
	}
	src := proctor.NewMJPEGSource(c.URL, c.Client)
	if err := src.Open(ctx); err != nil {
		return nil, fmt.Errorf("open camera stream: %w", err)
	}
	c.src = src
	return src, nil
}

// Release closes the stream. Safe when Acquire never succeeded.
func (c *MJPEGCamera) Release() {
	if c.src != nil {
		c.src.Close()
		c.src = nil
	}
}
