package proctor

import "image"

const (
	// obscuredGrid is the downsample resolution for the darkness check.
	obscuredGrid = 10
	// obscuredMeanThreshold is the mean 8-bit channel intensity below
	// which a frame is considered covered or blacked out.
	obscuredMeanThreshold = 18.0
)

// Obscured reports whether a frame is too dark to be a usable camera
// image. It samples a small fixed grid and averages the RGB channel
// intensities — cheap enough to run before the detector on every tick.
func Obscured(frame image.Image) bool {
	b := frame.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return true
	}

	var sum uint64
	for gy := 0; gy < obscuredGrid; gy++ {
		y := b.Min.Y + gy*b.Dy()/obscuredGrid
		for gx := 0; gx < obscuredGrid; gx++ {
			x := b.Min.X + gx*b.Dx()/obscuredGrid
			r, g, bl, _ := frame.At(x, y).RGBA()
			sum += uint64(r>>8) + uint64(g>>8) + uint64(bl>>8)
		}
	}

	samples := obscuredGrid * obscuredGrid * 3
	return float64(sum)/float64(samples) < obscuredMeanThreshold
}
