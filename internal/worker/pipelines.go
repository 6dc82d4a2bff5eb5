package worker

import (
	"context"
	"errors"

	"visiond/internal/inference"
	"visiond/internal/postprocess"
	"visiond/pkg/types"
)

// Default input sizes per task.
const (
	DefaultDepthSize      = 256
	DefaultDetectionSize  = 640
	DefaultCaptioningSize = 384
)

// BlobStore publishes bytes under a transient URL.
type BlobStore interface {
	Put(data []byte, contentType string) string
}

var errNoFrame = errors.New("request carries no frame")

// DepthPipeline normalizes the raw depth map and keeps the raw values for fusion.
type DepthPipeline struct {
	Loader inference.Loader
	Engine inference.DepthEstimator
}

func (p DepthPipeline) Load(ctx context.Context, progress func(float64)) (string, error) {
	return p.Loader.Load(ctx, string(KindDepth), progress)
}

func (p DepthPipeline) Process(ctx context.Context, req Request) (Message, error) {
	if req.Frame == nil {
		return Message{}, errNoFrame
	}
	t, err := p.Engine.EstimateDepth(ctx, req.Frame, sizeOr(req.Size, DefaultDepthSize))
	if err != nil {
		return Message{}, err
	}
	return Message{Depth: &types.DepthOutput{
		Normalized: postprocess.NormalizeDepth(t.Values),
		Raw:        t.Values,
		Width:      t.Width,
		Height:     t.Height,
	}}, nil
}

// DetectionPipeline merges near-duplicate boxes of the same class.
type DetectionPipeline struct {
	Loader       inference.Loader
	Engine       inference.ObjectDetector
	IoUThreshold float64
}

func (p DetectionPipeline) Load(ctx context.Context, progress func(float64)) (string, error) {
	return p.Loader.Load(ctx, string(KindDetection), progress)
}

func (p DetectionPipeline) Process(ctx context.Context, req Request) (Message, error) {
	if req.Frame == nil {
		return Message{}, errNoFrame
	}
	det, err := p.Engine.Detect(ctx, req.Frame, sizeOr(req.Size, DefaultDetectionSize))
	if err != nil {
		return Message{}, err
	}
	th := p.IoUThreshold
	if th <= 0 {
		th = postprocess.DefaultIoUThreshold
	}
	det.Outputs = postprocess.MergeBoxes(det.Outputs, th)
	return Message{Detection: &det}, nil
}

// CaptionPipeline strips boilerplate from generated captions.
type CaptionPipeline struct {
	Loader inference.Loader
	Engine inference.Captioner
}

func (p CaptionPipeline) Load(ctx context.Context, progress func(float64)) (string, error) {
	return p.Loader.Load(ctx, string(KindCaptioning), progress)
}

func (p CaptionPipeline) Process(ctx context.Context, req Request) (Message, error) {
	if req.Frame == nil {
		return Message{}, errNoFrame
	}
	text, err := p.Engine.Caption(ctx, req.Frame, sizeOr(req.Size, DefaultCaptioningSize))
	if err != nil {
		return Message{}, err
	}
	return Message{Caption: postprocess.CleanCaption(text)}, nil
}

// AudioPipeline synthesizes speech and publishes it as a WAV blob.
type AudioPipeline struct {
	Loader inference.Loader
	Engine inference.Synthesizer
	Blobs  BlobStore
}

func (p AudioPipeline) Load(ctx context.Context, progress func(float64)) (string, error) {
	return p.Loader.Load(ctx, string(KindAudio), progress)
}

func (p AudioPipeline) Process(ctx context.Context, req Request) (Message, error) {
	wf, err := p.Engine.Synthesize(ctx, req.Text)
	if err != nil {
		return Message{}, err
	}
	wav, err := postprocess.EncodeWAV(wf.Samples, wf.SampleRate)
	if err != nil {
		return Message{}, err
	}
	url := p.Blobs.Put(wav, "audio/wav")
	return Message{Audio: &types.AudioOutput{
		URL:        url,
		SampleRate: wf.SampleRate,
		Bytes:      len(wav),
		Text:       req.Text,
	}}, nil
}

// NewPipeline builds the pipeline of kind on top of engine. Loading goes
// through loader so callers can gate it.
func NewPipeline(kind Kind, loader inference.Loader, engine inference.Engine, blobs BlobStore) (Pipeline, bool) {
	switch kind {
	case KindDepth:
		return DepthPipeline{Loader: loader, Engine: engine}, true
	case KindDetection:
		return DetectionPipeline{Loader: loader, Engine: engine}, true
	case KindCaptioning:
		return CaptionPipeline{Loader: loader, Engine: engine}, true
	case KindAudio:
		return AudioPipeline{Loader: loader, Engine: engine, Blobs: blobs}, true
	}
	return nil, false
}

func sizeOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
