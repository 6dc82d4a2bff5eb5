package inference

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"visiond/pkg/types"
)

const msgpackContentType = "application/msgpack"

// RemoteConfig tunes the remote client. Zero values take the defaults.
type RemoteConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	// PollInterval spaces load status polls.
	PollInterval time.Duration
	Logger       zerolog.Logger
}

// Remote implements Engine against an HTTP inference endpoint speaking
// msgpack:
//
//	GET  /v1/health
//	GET  /v1/tasks/{task}     load status {status, progress, device, error}
//	POST /v1/{task}           frame or text in, task output back
type Remote struct {
	baseURL      string
	apiKey       string
	reqTimeout   time.Duration
	pollInterval time.Duration
	httpClient   *http.Client
	log          zerolog.Logger
}

// NewRemote constructs a client. Requests carry context timeouts; the
// http.Client itself has none.
func NewRemote(cfg RemoteConfig) *Remote {
	connect := cfg.ConnectTimeout
	if connect <= 0 {
		connect = 5 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connect,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	return &Remote{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		reqTimeout:   cfg.RequestTimeout,
		pollInterval: poll,
		httpClient:   &http.Client{Transport: tr, Timeout: 0},
		log:          cfg.Logger.With().Str("component", "inference").Logger(),
	}
}

type frameRequest struct {
	Width    int    `msgpack:"width"`
	Height   int    `msgpack:"height"`
	Channels int    `msgpack:"channels"`
	Data     []byte `msgpack:"data"`
}

type textRequest struct {
	Text string `msgpack:"text"`
}

type captionResponse struct {
	Text string `msgpack:"text"`
}

type loadStatus struct {
	Status   string  `msgpack:"status"`
	Progress float64 `msgpack:"progress"`
	Device   string  `msgpack:"device"`
	Error    string  `msgpack:"error"`
}

// Health checks the endpoint is reachable.
func (r *Remote) Health(ctx context.Context) error {
	return r.do(ctx, http.MethodGet, "/v1/health", nil, nil)
}

// Load polls the task status until the endpoint reports ready or error.
func (r *Remote) Load(ctx context.Context, task string, progress func(float64)) (string, error) {
	t := time.NewTicker(r.pollInterval)
	defer t.Stop()
	for {
		var st loadStatus
		if err := r.do(ctx, http.MethodGet, "/v1/tasks/"+task, nil, &st); err != nil {
			return "", err
		}
		switch st.Status {
		case "ready":
			if progress != nil {
				progress(100)
			}
			if st.Device == "" {
				st.Device = "remote"
			}
			return st.Device, nil
		case "error":
			return "", fmt.Errorf("load %s: %s", task, st.Error)
		}
		if progress != nil {
			progress(st.Progress)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
}

func (r *Remote) postFrame(ctx context.Context, task string, f *types.Frame, size int, out any) error {
	if f == nil {
		return errors.New("nil frame")
	}
	rf := ResizeFrame(f, size)
	req := frameRequest{Width: rf.Width, Height: rf.Height, Channels: rf.Channels, Data: rf.Data}
	return r.do(ctx, http.MethodPost, "/v1/"+task, req, out)
}

func (r *Remote) EstimateDepth(ctx context.Context, f *types.Frame, size int) (DepthTensor, error) {
	var out DepthTensor
	err := r.postFrame(ctx, "depth", f, size, &out)
	if err == nil && len(out.Values) != out.Width*out.Height {
		err = fmt.Errorf("depth: %d values for %dx%d", len(out.Values), out.Width, out.Height)
	}
	return out, err
}

func (r *Remote) Detect(ctx context.Context, f *types.Frame, size int) (types.DetectionOutput, error) {
	var out types.DetectionOutput
	err := r.postFrame(ctx, "detection", f, size, &out)
	return out, err
}

func (r *Remote) Caption(ctx context.Context, f *types.Frame, size int) (string, error) {
	var out captionResponse
	err := r.postFrame(ctx, "captioning", f, size, &out)
	return out.Text, err
}

func (r *Remote) Synthesize(ctx context.Context, text string) (Waveform, error) {
	var out Waveform
	err := r.do(ctx, http.MethodPost, "/v1/audio", textRequest{Text: text}, &out)
	return out, err
}

// do encodes in (when non-nil) as msgpack and decodes the response into out.
func (r *Remote) do(ctx context.Context, method, path string, in, out any) error {
	if r.baseURL == "" {
		return ErrDependencyUnavailable("inference endpoint not configured")
	}
	if r.reqTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.reqTimeout)
		defer cancel()
	}
	var body io.Reader
	if in != nil {
		b, err := msgpack.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", msgpackContentType)
	}
	req.Header.Set("Accept", msgpackContentType)
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		// Translate context timeouts/cancels
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrDependencyUnavailable("inference endpoint unreachable: " + err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusServiceUnavailable {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return ErrDependencyUnavailable("inference endpoint unavailable: " + string(b))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.New("inference http error: " + resp.Status + ": " + string(b))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := msgpack.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
