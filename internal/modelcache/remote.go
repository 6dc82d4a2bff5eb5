package modelcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"visiond/pkg/types"
)

// FetchRemoteInfo reads the model registry at url. Keys missing from the
// response are unavailable for this session.
func FetchRemoteInfo(ctx context.Context, client *http.Client, url string) (map[string]types.RemoteModelInfo, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.New("registry http error: " + resp.Status + ": " + string(b))
	}
	var out map[string]types.RemoteModelInfo
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode registry response: %w", err)
	}
	if out == nil {
		out = map[string]types.RemoteModelInfo{}
	}
	return out, nil
}
