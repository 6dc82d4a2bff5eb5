package inference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"visiond/pkg/types"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}

func writeMsgpack(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	b, err := msgpack.Marshal(v)
	if err != nil {
		t.Errorf("marshal: %v", err)
		return
	}
	w.Header().Set("Content-Type", msgpackContentType)
	_, _ = w.Write(b)
}

func newFakeEndpoint(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var polls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/v1/tasks/depth", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&polls, 1) < 3 {
			writeMsgpack(t, w, loadStatus{Status: "loading", Progress: 40})
			return
		}
		writeMsgpack(t, w, loadStatus{Status: "ready", Device: "cuda"})
	})
	mux.HandleFunc("/v1/tasks/broken", func(w http.ResponseWriter, r *http.Request) {
		writeMsgpack(t, w, loadStatus{Status: "error", Error: "weights corrupt"})
	})
	mux.HandleFunc("/v1/depth", func(w http.ResponseWriter, r *http.Request) {
		var req frameRequest
		if err := msgpack.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeMsgpack(t, w, DepthTensor{Values: make([]float32, req.Width*req.Height), Width: req.Width, Height: req.Height})
	})
	mux.HandleFunc("/v1/detection", func(w http.ResponseWriter, r *http.Request) {
		writeMsgpack(t, w, types.DetectionOutput{
			Sizes:    [2]int{64, 48},
			Outputs:  []types.Box{{1, 2, 3, 4, 0.9, 7}},
			ID2Label: map[int]string{7: "cup"},
		})
	})
	mux.HandleFunc("/v1/captioning", func(w http.ResponseWriter, r *http.Request) {
		writeMsgpack(t, w, captionResponse{Text: "a cup on a table"})
	})
	mux.HandleFunc("/v1/audio", func(w http.ResponseWriter, r *http.Request) {
		var req textRequest
		_ = msgpack.NewDecoder(r.Body).Decode(&req)
		if req.Text == "" {
			http.Error(w, "empty", http.StatusBadRequest)
			return
		}
		writeMsgpack(t, w, Waveform{Samples: []float32{0, 0.5}, SampleRate: 16000})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &polls
}

func TestRemote_LoadPollsUntilReady(t *testing.T) {
	srv, polls := newFakeEndpoint(t)
	r := NewRemote(RemoteConfig{BaseURL: srv.URL, PollInterval: 5 * time.Millisecond})
	var last float64
	dev, err := r.Load(testCtx(t), "depth", func(p float64) { last = p })
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if dev != "cuda" || last != 100 || atomic.LoadInt32(polls) != 3 {
		t.Fatalf("device=%s last=%v polls=%d", dev, last, *polls)
	}
	if _, err := r.Load(testCtx(t), "broken", nil); err == nil {
		t.Fatalf("expected load error")
	}
}

func TestRemote_TaskCalls(t *testing.T) {
	srv, _ := newFakeEndpoint(t)
	r := NewRemote(RemoteConfig{BaseURL: srv.URL + "/"})
	ctx := testCtx(t)
	if err := r.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}
	f := types.NewRGBAFrame(640, 480)
	d, err := r.EstimateDepth(ctx, f, 256)
	if err != nil {
		t.Fatalf("EstimateDepth: %v", err)
	}
	if d.Width != 256 || d.Height != 192 {
		t.Fatalf("expected resized request, got %dx%d", d.Width, d.Height)
	}
	det, err := r.Detect(ctx, f, 0)
	if err != nil || det.Label(7) != "cup" || len(det.Outputs) != 1 {
		t.Fatalf("Detect: %+v %v", det, err)
	}
	txt, err := r.Caption(ctx, f, 384)
	if err != nil || txt != "a cup on a table" {
		t.Fatalf("Caption: %q %v", txt, err)
	}
	wf, err := r.Synthesize(ctx, "hello")
	if err != nil || wf.SampleRate != 16000 || len(wf.Samples) != 2 {
		t.Fatalf("Synthesize: %+v %v", wf, err)
	}
	if _, err := r.Synthesize(ctx, ""); err == nil {
		t.Fatalf("expected http error")
	}
}

func TestRemote_Unconfigured(t *testing.T) {
	r := NewRemote(RemoteConfig{})
	if _, err := r.Load(context.Background(), "depth", nil); !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
}

func TestRemote_ServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "warming up", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	r := NewRemote(RemoteConfig{BaseURL: srv.URL})
	if err := r.Health(testCtx(t)); !IsDependencyUnavailable(err) {
		t.Fatalf("expected dependency unavailable, got %v", err)
	}
}

type fixedChecker bool

func (c fixedChecker) IsServiceReady(context.Context, string) bool { return bool(c) }

type okLoader struct{ calls int }

func (l *okLoader) Load(context.Context, string, func(float64)) (string, error) {
	l.calls++
	return "cpu", nil
}

func TestCacheGatedLoader(t *testing.T) {
	next := &okLoader{}
	g := CacheGatedLoader{Next: next, Checker: fixedChecker(false)}
	if _, err := g.Load(context.Background(), "depth", nil); !IsDependencyUnavailable(err) {
		t.Fatalf("expected gate to refuse, got %v", err)
	}
	if next.calls != 0 {
		t.Fatalf("next loader must not run")
	}
	g.Checker = fixedChecker(true)
	if dev, err := g.Load(context.Background(), "depth", nil); err != nil || dev != "cpu" {
		t.Fatalf("expected pass-through, got %q %v", dev, err)
	}
}

func TestResizeFrame(t *testing.T) {
	f := types.NewRGBAFrame(100, 400)
	r := ResizeFrame(f, 200)
	if r.Width != 50 || r.Height != 200 || len(r.Data) != 50*200*4 {
		t.Fatalf("portrait resize: %dx%d len=%d", r.Width, r.Height, len(r.Data))
	}
	if ResizeFrame(f, 0) != f || ResizeFrame(f, 1000) != f {
		t.Fatalf("expected unchanged frame")
	}
}
