package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"visiond/internal/app"
	"visiond/internal/config"
	"visiond/internal/httpapi"
	"visiond/internal/inference"
	"visiond/pkg/types"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t.Cleanup(cancel)
	return c
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// stubEngine answers every task instantly with fixed results.
type stubEngine struct{}

func (stubEngine) Load(_ context.Context, _ string, progress func(float64)) (string, error) {
	progress(100)
	return "stub", nil
}

func (stubEngine) EstimateDepth(context.Context, *types.Frame, int) (inference.DepthTensor, error) {
	return inference.DepthTensor{Values: []float32{1, 2, 3, 4}, Width: 2, Height: 2}, nil
}

func (stubEngine) Detect(context.Context, *types.Frame, int) (types.DetectionOutput, error) {
	return types.DetectionOutput{
		Sizes:    [2]int{2, 2},
		Outputs:  []types.Box{{0, 0, 2, 2, 0.9, 1}},
		ID2Label: map[int]string{1: "person"},
	}, nil
}

func (stubEngine) Caption(context.Context, *types.Frame, int) (string, error) {
	return "a person in a room", nil
}

func (stubEngine) Synthesize(context.Context, string) (inference.Waveform, error) {
	return inference.Waveform{Samples: []float32{0, 0.25, -0.25}, SampleRate: 16000}, nil
}

func writeArchive(t *testing.T, path string, files map[string][]byte) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

// newServer runs the full HTTP stack against a local directory registry
// and a directory camera. The process reads its own /registry over HTTP.
func newServer(t *testing.T) (*httptest.Server, *app.App) {
	t.Helper()
	regDir, camDir := t.TempDir(), t.TempDir()
	writeArchive(t, filepath.Join(regDir, "depth", "depth-v1.zip"), map[string][]byte{
		"config.json":               []byte(`{"model":"depth"}`),
		"onnx/model_quantized.onnx": bytes.Repeat([]byte{3}, 8192),
	})
	writeArchive(t, filepath.Join(regDir, "object-detection", "detr-v1.zip"), map[string][]byte{
		"config.json":               []byte(`{"model":"detr"}`),
		"onnx/model_quantized.onnx": bytes.Repeat([]byte{5}, 8192),
	})
	writePNG(t, filepath.Join(camDir, "frame-000.png"))

	var handler atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handler.Load().(http.Handler)
		if !ok {
			http.Error(w, "starting", http.StatusServiceUnavailable)
			return
		}
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := config.Config{
		CacheDir:    t.TempDir(),
		RegistryURL: srv.URL + "/registry",
		Camera:      config.CameraConfig{Dir: camDir},
		Registry: config.RegistryConfig{
			Dir:     regDir,
			BaseURL: srv.URL,
			Keys:    []string{"depth", "object-detection"},
		},
	}
	cfg.ApplyDefaults()
	a, err := app.New(testCtx(t), cfg,
		app.WithLogger(zerolog.Nop()),
		app.WithRegisterer(prometheus.NewRegistry()),
		app.WithEngine(stubEngine{}),
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(a.Close)
	handler.Store(httpapi.NewMux(a))
	return srv, a
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return resp.StatusCode
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}
