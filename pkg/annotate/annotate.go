package annotate

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/imgio"

	"github.com/raoofk92/INTPolybotServiceAWS/pkg/results"
)

const boxThickness = 3

var boxColor = color.RGBA{G: 255, A: 255}

// File reads the image at srcPath, draws one rectangle per label and writes
// the annotated copy to dstPath. Label boxes are normalized; they are scaled
// to the image dimensions here.
func File(srcPath, dstPath string, labels []results.Label) error {
	src, err := imgio.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open image %s: %w", srcPath, err)
	}

	annotated := Draw(src, labels)

	if err := imgio.Save(dstPath, annotated, encoderFor(dstPath)); err != nil {
		return fmt.Errorf("failed to save annotated image %s: %w", dstPath, err)
	}
	return nil
}

// Draw returns a copy of img with a rectangle drawn around every label.
func Draw(img image.Image, labels []results.Label) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, img, bounds.Min, draw.Src)

	w := float64(bounds.Dx())
	h := float64(bounds.Dy())

	for _, l := range labels {
		rect := image.Rect(
			bounds.Min.X+int((l.CX-l.Width/2)*w),
			bounds.Min.Y+int((l.CY-l.Height/2)*h),
			bounds.Min.X+int((l.CX+l.Width/2)*w),
			bounds.Min.Y+int((l.CY+l.Height/2)*h),
		).Intersect(bounds)
		if rect.Empty() {
			continue
		}
		drawRect(out, rect)
	}
	return out
}

func drawRect(img *image.RGBA, rect image.Rectangle) {
	for t := 0; t < boxThickness; t++ {
		r := rect.Inset(t)
		if r.Empty() {
			return
		}
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, r.Min.Y, boxColor)
			img.SetRGBA(x, r.Max.Y-1, boxColor)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			img.SetRGBA(r.Min.X, y, boxColor)
			img.SetRGBA(r.Max.X-1, y, boxColor)
		}
	}
}

func encoderFor(path string) imgio.Encoder {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return imgio.JPEGEncoder(90)
	default:
		return imgio.PNGEncoder()
	}
}
