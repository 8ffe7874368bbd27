package proctor

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
)

// MJPEGSource implements FrameSource over an MJPEG camera stream
// (multipart/x-mixed-replace), the format served by most IP webcams.
// A background goroutine keeps the latest decoded frame; Frame never
// blocks on the network.
type MJPEGSource struct {
	url    string
	client *http.Client

	mu     sync.RWMutex
	latest image.Image

	body   io.ReadCloser
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMJPEGSource creates an unopened source for the given stream URL.
func NewMJPEGSource(url string, client *http.Client) *MJPEGSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &MJPEGSource{url: url, client: client}
}

// Open connects to the stream and starts the frame reader. The source
// becomes Ready once the first frame decodes.
func (s *MJPEGSource) Open(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("build stream request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		resp.Body.Close()
		return fmt.Errorf("unexpected stream content type %q", resp.Header.Get("Content-Type"))
	}
	boundary := params["boundary"]
	if boundary == "" {
		resp.Body.Close()
		return fmt.Errorf("stream is missing a multipart boundary")
	}

	readCtx, cancel := context.WithCancel(context.Background())
	s.body = resp.Body
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		reader := multipart.NewReader(resp.Body, boundary)
		for {
			if readCtx.Err() != nil {
				return
			}
			part, err := reader.NextPart()
			if err != nil {
				return
			}
			img, err := jpeg.Decode(part)
			part.Close()
			if err != nil {
				continue // tolerate the occasional torn frame
			}
			s.mu.Lock()
			s.latest = img
			s.mu.Unlock()
		}
	}()

	return nil
}

// Close stops the reader and releases the HTTP stream. Closing the
// response body is what unblocks a reader parked on the next part.
func (s *MJPEGSource) Close() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.body.Close()
	<-s.done
	s.cancel = nil
}

// Ready reports whether at least one frame has been decoded.
func (s *MJPEGSource) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest != nil
}

// Frame returns the most recently decoded frame.
func (s *MJPEGSource) Frame() (image.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, fmt.Errorf("no frame received yet")
	}
	return s.latest, nil
}
