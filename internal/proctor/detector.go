package proctor

import (
	"context"
	"image"
)

// Detection is a single face-like detection returned by a detector.
type Detection struct {
	Score float64 `json:"score"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	W     float64 `json:"w"`
	H     float64 `json:"h"`
}

// Detector is the black-box face detection capability consumed by the
// Monitor. Load must be called once before Detect; implementations may
// take noticeable time (model download, sidecar warm-up).
type Detector interface {
	Load(ctx context.Context) error
	Detect(ctx context.Context, frame image.Image) ([]Detection, error)
}
