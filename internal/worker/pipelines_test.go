package worker

import (
	"context"
	"strings"
	"testing"

	"visiond/internal/inference"
	"visiond/pkg/types"
)

type fakeEngine struct {
	lastSize int
	lastTask string
}

func (e *fakeEngine) Load(ctx context.Context, task string, progress func(float64)) (string, error) {
	e.lastTask = task
	progress(100)
	return "cpu", nil
}

func (e *fakeEngine) EstimateDepth(ctx context.Context, f *types.Frame, size int) (inference.DepthTensor, error) {
	e.lastSize = size
	return inference.DepthTensor{Values: []float32{1, 3}, Width: 2, Height: 1}, nil
}

func (e *fakeEngine) Detect(ctx context.Context, f *types.Frame, size int) (types.DetectionOutput, error) {
	e.lastSize = size
	return types.DetectionOutput{
		Sizes:    [2]int{640, 480},
		Outputs:  []types.Box{{0, 0, 10, 10, 0.9, 1}, {1, 1, 11, 11, 0.8, 1}},
		ID2Label: map[int]string{1: "person"},
	}, nil
}

func (e *fakeEngine) Caption(ctx context.Context, f *types.Frame, size int) (string, error) {
	e.lastSize = size
	return "arafed woman riding a bike", nil
}

func (e *fakeEngine) Synthesize(ctx context.Context, text string) (inference.Waveform, error) {
	return inference.Waveform{Samples: []float32{0, 0.5, -0.5}, SampleRate: 16000}, nil
}

type fakeBlobs struct {
	data        []byte
	contentType string
}

func (b *fakeBlobs) Put(data []byte, contentType string) string {
	b.data, b.contentType = data, contentType
	return "blob:test"
}

func TestDepthPipeline_NormalizesAndKeepsRaw(t *testing.T) {
	e := &fakeEngine{}
	p := DepthPipeline{Loader: e, Engine: e}
	m, err := p.Process(context.Background(), ProcessFrame(types.NewRGBAFrame(2, 2), 0))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if e.lastSize != DefaultDepthSize {
		t.Fatalf("size: %d", e.lastSize)
	}
	if m.Depth == nil || m.Depth.Normalized[0] != 0 || m.Depth.Normalized[1] != 1 || m.Depth.Raw[1] != 3 {
		t.Fatalf("depth output: %+v", m.Depth)
	}
}

func TestDetectionPipeline_MergesOverlaps(t *testing.T) {
	e := &fakeEngine{}
	p := DetectionPipeline{Loader: e, Engine: e}
	m, err := p.Process(context.Background(), ProcessFrame(types.NewRGBAFrame(2, 2), 320))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if e.lastSize != 320 {
		t.Fatalf("explicit size not forwarded: %d", e.lastSize)
	}
	if m.Detection == nil || len(m.Detection.Outputs) != 1 {
		t.Fatalf("expected one merged box, got %+v", m.Detection)
	}
}

func TestCaptionPipeline_CleansText(t *testing.T) {
	e := &fakeEngine{}
	p := CaptionPipeline{Loader: e, Engine: e}
	m, err := p.Process(context.Background(), ProcessFrame(types.NewRGBAFrame(2, 2), 0))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if m.Caption != "person riding a bike" {
		t.Fatalf("caption: %q", m.Caption)
	}
}

func TestFramePipelines_RejectMissingFrame(t *testing.T) {
	e := &fakeEngine{}
	for _, p := range []Pipeline{DepthPipeline{Engine: e}, DetectionPipeline{Engine: e}, CaptionPipeline{Engine: e}} {
		if _, err := p.Process(context.Background(), ProcessText("x")); err == nil {
			t.Fatalf("%T: expected error without a frame", p)
		}
	}
}

func TestAudioPipeline_PublishesWAV(t *testing.T) {
	e := &fakeEngine{}
	blobs := &fakeBlobs{}
	p := AudioPipeline{Loader: e, Engine: e, Blobs: blobs}
	m, err := p.Process(context.Background(), ProcessText("a dog"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if m.Audio == nil || m.Audio.URL != "blob:test" || m.Audio.Text != "a dog" || m.Audio.SampleRate != 16000 {
		t.Fatalf("audio output: %+v", m.Audio)
	}
	if blobs.contentType != "audio/wav" || !strings.HasPrefix(string(blobs.data), "RIFF") {
		t.Fatalf("blob: %q %q", blobs.contentType, blobs.data[:4])
	}
	if m.Audio.Bytes != len(blobs.data) {
		t.Fatalf("byte count mismatch")
	}
}

func TestNewPipeline_LoadsThroughLoader(t *testing.T) {
	e := &fakeEngine{}
	for _, k := range Kinds {
		p, ok := NewPipeline(k, e, e, &fakeBlobs{})
		if !ok {
			t.Fatalf("%s: not built", k)
		}
		dev, err := p.Load(context.Background(), func(float64) {})
		if err != nil || dev != "cpu" || e.lastTask != string(k) {
			t.Fatalf("%s: load dev=%q err=%v task=%q", k, dev, err, e.lastTask)
		}
	}
	if _, ok := NewPipeline("chat", e, e, nil); ok {
		t.Fatalf("unknown kind must not build")
	}
}

func TestPipeline_RunsInsideWorker(t *testing.T) {
	e := &fakeEngine{}
	w := Start(KindCaptioning, CaptionPipeline{Loader: e, Engine: e}, Options{})
	defer w.Terminate()
	if m := next(t, w, StatusLoading); m.Status != StatusReady || m.Device != "cpu" {
		t.Fatalf("expected ready, got %+v", m)
	}
	w.Post(ProcessFrame(types.NewRGBAFrame(4, 4), 0))
	if m := next(t, w, StatusLoading); m.Status != StatusComplete || m.Caption != "person riding a bike" {
		t.Fatalf("expected caption, got %+v", m)
	}
}
