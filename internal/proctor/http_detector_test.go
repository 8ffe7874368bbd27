package proctor

import (
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
)

func detectorSidecar(t *testing.T, healthy bool, detections []Detection) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz":
			if !healthy {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		case "/detect":
			if got := r.Header.Get("Content-Type"); got != "image/jpeg" {
				t.Errorf("content type = %q, want image/jpeg", got)
			}
			if _, err := jpeg.Decode(r.Body); err != nil {
				t.Errorf("body is not a decodable JPEG: %v", err)
			}
			json.NewEncoder(w).Encode(detectResponse{Detections: detections})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestHTTPDetectorRoundTrip(t *testing.T) {
	want := []Detection{
		{Score: 0.92, X: 10, Y: 20, W: 80, H: 90},
		{Score: 0.71, X: 120, Y: 15, W: 60, H: 70},
	}
	srv := detectorSidecar(t, true, want)
	defer srv.Close()

	det := NewHTTPDetector(srv.URL)
	if err := det.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}

	frame := image.NewRGBA(image.Rect(0, 0, 32, 32))
	got, err := det.Detect(context.Background(), frame)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("detections = %d, want 2", len(got))
	}
	if got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("detections = %+v, want %+v", got, want)
	}
}

func TestHTTPDetectorLoadFailsWhenUnhealthy(t *testing.T) {
	srv := detectorSidecar(t, false, nil)
	defer srv.Close()

	det := NewHTTPDetector(srv.URL)
	if err := det.Load(context.Background()); err == nil {
		t.Fatal("Load must fail while the sidecar is unhealthy")
	}
}

func TestHTTPDetectorDetectSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	det := NewHTTPDetector(srv.URL)
	frame := image.NewRGBA(image.Rect(0, 0, 8, 8))
	if _, err := det.Detect(context.Background(), frame); err == nil {
		t.Fatal("Detect must fail on a non-200 response")
	}
}
