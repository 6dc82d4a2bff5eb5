// Package registry answers "which archive is the latest for each model key"
// for the model downloader. Sources pick the most recently modified .zip
// under each key and describe it with a download URL and an ETag.
package registry

import (
	"context"

	"visiond/pkg/types"
)

// DefaultKeys are the model keys served when none are configured.
var DefaultKeys = []string{"depth", "tts", "vocoder", "image-captioning", "object-detection"}

// Source resolves the latest archive per model key. Keys without an archive
// are absent from the result.
type Source interface {
	Resolve(ctx context.Context) (map[string]types.RemoteModelInfo, error)
}

func keysOrDefault(keys []string) []string {
	if len(keys) == 0 {
		return DefaultKeys
	}
	return keys
}
