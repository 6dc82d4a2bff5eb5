// Package camera provides frame sources for the frame manager.
package camera

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/webp"

	"visiond/pkg/types"
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}

// ErrNoImages is returned when a directory holds no decodable images.
var ErrNoImages = errors.New("camera: no images found")

// FileSource replays the images of a directory as camera frames, one per
// capture, in name order and wrapping around.
type FileSource struct {
	width, height int
	log           zerolog.Logger
	now           func() time.Time

	mu     sync.Mutex
	files  []string
	next   int
	closed bool
}

// FileSourceOption configures a FileSource.
type FileSourceOption func(*FileSource)

// WithSize scales every frame to width x height. Zero keeps the native size.
func WithSize(width, height int) FileSourceOption {
	return func(s *FileSource) { s.width, s.height = width, height }
}

func WithLogger(l zerolog.Logger) FileSourceOption {
	return func(s *FileSource) { s.log = l }
}

// NewFileSource scans dir for images.
func NewFileSource(dir string, opts ...FileSourceOption) (*FileSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("camera: read %s: %w", dir, err)
	}
	s := &FileSource{log: zerolog.Nop(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		s.files = append(s.files, filepath.Join(dir, e.Name()))
	}
	if len(s.files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoImages, dir)
	}
	sort.Strings(s.files)
	return s, nil
}

// Len reports how many images the source cycles through.
func (s *FileSource) Len() int { return len(s.files) }

// Capture decodes the next image as an RGBA frame. After Close it returns
// no frame.
func (s *FileSource) Capture() (*types.Frame, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil
	}
	path := s.files[s.next]
	s.next = (s.next + 1) % len(s.files)
	s.mu.Unlock()

	img, err := imgio.Open(path)
	if err != nil {
		return nil, fmt.Errorf("camera: decode %s: %w", filepath.Base(path), err)
	}
	rgba := s.rgba(img)
	b := rgba.Bounds()
	s.log.Debug().Str("file", filepath.Base(path)).Int("width", b.Dx()).Int("height", b.Dy()).Msg("captured")
	return &types.Frame{
		Data:      rgba.Pix,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Channels:  4,
		Timestamp: s.now(),
	}, nil
}

func (s *FileSource) rgba(img image.Image) *image.RGBA {
	if s.width > 0 && s.height > 0 {
		return transform.Resize(img, s.width, s.height, transform.Linear)
	}
	out := clone.AsRGBA(img)
	if out.Rect.Min != (image.Point{}) || out.Stride != out.Rect.Dx()*4 {
		// Re-base so Pix is tightly packed from the origin.
		packed := image.NewRGBA(image.Rect(0, 0, out.Rect.Dx(), out.Rect.Dy()))
		for y := 0; y < out.Rect.Dy(); y++ {
			copy(packed.Pix[y*packed.Stride:(y+1)*packed.Stride], out.Pix[y*out.Stride:y*out.Stride+packed.Stride])
		}
		out = packed
	}
	return out
}

// Close stops the source. It is safe to call more than once.
func (s *FileSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
