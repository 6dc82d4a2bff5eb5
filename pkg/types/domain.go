package types

import (
	"strconv"
	"time"
)

// Frame is one captured camera image as a raw RGBA pixel buffer.
//
// A Frame is shared by reference between every consumer within one throttle
// tick. Consumers must not modify Data.
type Frame struct {
	// Raw pixel bytes, row-major, Channels bytes per pixel.
	Data []byte
	// Width of the frame in pixels.
	Width int
	// Height of the frame in pixels.
	Height int
	// Bytes per pixel; 4 (RGBA) for camera frames.
	Channels int
	// Capture time.
	Timestamp time.Time
	// Seq is assigned by the frame manager on every real capture.
	Seq uint64
}

// NewRGBAFrame allocates a zeroed RGBA frame of the given size.
func NewRGBAFrame(width, height int) *Frame {
	return &Frame{
		Data:     make([]byte, width*height*4),
		Width:    width,
		Height:   height,
		Channels: 4,
	}
}

// Box is one detection: [xmin, ymin, xmax, ymax, score, classId].
type Box [6]float64

func (b Box) XMin() float64  { return b[0] }
func (b Box) YMin() float64  { return b[1] }
func (b Box) XMax() float64  { return b[2] }
func (b Box) YMax() float64  { return b[3] }
func (b Box) Score() float64 { return b[4] }
func (b Box) ClassID() int   { return int(b[5]) }
func (b Box) Area() float64  { return (b[2] - b[0]) * (b[3] - b[1]) }

// DetectionOutput is produced once per detection cycle.
type DetectionOutput struct {
	// Sizes is [width, height] of the image space the boxes are expressed in.
	Sizes [2]int `json:"sizes" msgpack:"sizes"`
	// Outputs in detection order.
	Outputs []Box `json:"outputs" msgpack:"outputs"`
	// ID2Label maps class id to label.
	ID2Label map[int]string `json:"id2label" msgpack:"id2label"`
}

// Label resolves a class id, falling back to the numeric id.
func (d DetectionOutput) Label(classID int) string {
	if l, ok := d.ID2Label[classID]; ok {
		return l
	}
	return strconv.Itoa(classID)
}

// DepthOutput holds one depth map. Normalized is scaled to [0,1]; Raw keeps the
// model's values for distance fusion. Both are row-major Width*Height.
type DepthOutput struct {
	Normalized []float32 `json:"normalized,omitempty"`
	Raw        []float32 `json:"raw,omitempty"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
}

// AudioOutput is a synthesized waveform packaged as WAV.
type AudioOutput struct {
	URL        string `json:"url"`
	SampleRate int    `json:"sample_rate"`
	Bytes      int    `json:"bytes"`
	Text       string `json:"text"`
}

// Distance is one fused per-object distance estimate.
type Distance struct {
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
}

// Manifest records the content hash of every cached file of one model.
type Manifest struct {
	ETag  string            `json:"etag"`
	Files map[string]string `json:"files"`
}

// RemoteModelInfo is one entry of the remote model registry.
type RemoteModelInfo struct {
	DownloadURL string `json:"download_url"`
	ModelName   string `json:"model_name,omitempty"`
	ETag        string `json:"ETag"`
}

// CachingStatus tracks the unpack/write phase of a model download.
type CachingStatus string

const (
	CachingNotStarted CachingStatus = "NOT_STARTED"
	CachingInProgress CachingStatus = "CACHING"
	CachingDone       CachingStatus = "CACHED"
	CachingError      CachingStatus = "ERROR"
)

// DownloadProgress is the per-model download state. DownloadPercent is -1 on error.
type DownloadProgress struct {
	DownloadPercent float64       `json:"download_percent"`
	CachingStatus   CachingStatus `json:"caching_status"`
}
