package inference

import (
	"image"

	"github.com/anthonynsimon/bild/transform"

	"visiond/pkg/types"
)

// frameImage views an RGBA frame as an image without copying.
func frameImage(f *types.Frame) *image.RGBA {
	return &image.RGBA{
		Pix:    f.Data,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// ResizeFrame scales f so its longer side equals size, keeping the aspect
// ratio. Frames already within size, and non-positive sizes, are returned
// unchanged.
func ResizeFrame(f *types.Frame, size int) *types.Frame {
	if f == nil || size <= 0 || f.Channels != 4 {
		return f
	}
	if f.Width <= size && f.Height <= size {
		return f
	}
	w, h := size, size
	if f.Width >= f.Height {
		h = max(1, f.Height*size/f.Width)
	} else {
		w = max(1, f.Width*size/f.Height)
	}
	img := transform.Resize(frameImage(f), w, h, transform.Linear)
	return &types.Frame{
		Data:      img.Pix,
		Width:     w,
		Height:    h,
		Channels:  4,
		Timestamp: f.Timestamp,
		Seq:       f.Seq,
	}
}
