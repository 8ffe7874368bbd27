package proctor

import (
	"image"
	"image/color"
	"image/draw"
	"testing"
)

func uniformFrame(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

func TestObscuredBlackFrame(t *testing.T) {
	if !Obscured(uniformFrame(color.Black)) {
		t.Fatal("fully black frame should read as obscured")
	}
}

func TestObscuredBrightFrame(t *testing.T) {
	if Obscured(uniformFrame(color.White)) {
		t.Fatal("white frame should not read as obscured")
	}
}

func TestObscuredDimButVisibleFrame(t *testing.T) {
	// Mean channel intensity 60 is dim but well above the blackout cut.
	if Obscured(uniformFrame(color.RGBA{R: 60, G: 60, B: 60, A: 255})) {
		t.Fatal("dim frame should not read as obscured")
	}
}

func TestObscuredNearBlackFrame(t *testing.T) {
	if !Obscured(uniformFrame(color.RGBA{R: 10, G: 10, B: 10, A: 255})) {
		t.Fatal("near-black frame should read as obscured")
	}
}

func TestObscuredEmptyFrame(t *testing.T) {
	if !Obscured(image.NewRGBA(image.Rect(0, 0, 0, 0))) {
		t.Fatal("zero-size frame should read as obscured")
	}
}
