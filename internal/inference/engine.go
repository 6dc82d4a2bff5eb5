// Package inference defines the opaque model capabilities behind each task
// and an HTTP client for a remote inference endpoint.
package inference

import (
	"context"

	"visiond/pkg/types"
)

// Loader prepares the models of one task. progress receives values in
// [0,100]. The returned device names the compute backend.
type Loader interface {
	Load(ctx context.Context, task string, progress func(float64)) (device string, err error)
}

// DepthTensor is a raw per-pixel depth map, row-major.
type DepthTensor struct {
	Values []float32 `msgpack:"values"`
	Width  int       `msgpack:"width"`
	Height int       `msgpack:"height"`
}

// Waveform is mono audio in [-1,1].
type Waveform struct {
	Samples    []float32 `msgpack:"samples"`
	SampleRate int       `msgpack:"sample_rate"`
}

type DepthEstimator interface {
	EstimateDepth(ctx context.Context, f *types.Frame, size int) (DepthTensor, error)
}

// ObjectDetector returns raw boxes; duplicates are merged by the caller.
type ObjectDetector interface {
	Detect(ctx context.Context, f *types.Frame, size int) (types.DetectionOutput, error)
}

type Captioner interface {
	Caption(ctx context.Context, f *types.Frame, size int) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Waveform, error)
}

// Engine bundles every capability.
type Engine interface {
	Loader
	DepthEstimator
	ObjectDetector
	Captioner
	Synthesizer
}
