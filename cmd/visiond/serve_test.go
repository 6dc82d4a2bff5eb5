package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"visiond/internal/app"
	"visiond/internal/config"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func waitHealthy(t *testing.T, base string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not become healthy in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func get(t *testing.T, url string) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode
}

func TestServeStartsAndShutsDown(t *testing.T) {
	port := findFreePort(t)
	cfg := config.Config{
		Addr:     fmt.Sprintf("127.0.0.1:%d", port),
		CacheDir: t.TempDir(),
		Registry: config.RegistryConfig{Dir: t.TempDir()},
	}
	cfg.ApplyDefaults()
	c := &cli{cfg: cfg, log: zerolog.Nop(), out: io.Discard}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- serve(ctx, c, app.WithRegisterer(prometheus.NewRegistry())) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitHealthy(t, base)
	if code := get(t, base+"/readyz"); code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with no task: %d", code)
	}
	if code := get(t, base+"/registry"); code != http.StatusOK {
		t.Fatalf("registry: %d", code)
	}
	if code := get(t, base+"/models"); code != http.StatusOK {
		t.Fatalf("models: %d", code)
	}
	if code := get(t, base+"/metrics"); code != http.StatusOK {
		t.Fatalf("metrics: %d", code)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServeReportsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	cfg := config.Config{Addr: ln.Addr().String(), CacheDir: t.TempDir()}
	cfg.ApplyDefaults()
	c := &cli{cfg: cfg, log: zerolog.Nop(), out: io.Discard}
	if err := serve(context.Background(), c, app.WithRegisterer(prometheus.NewRegistry())); err == nil {
		t.Fatal("want address in use error")
	}
}
