package modelcache

import (
	"context"
	"sort"

	"visiond/pkg/types"
)

// LocalStatus is the validation result of one cached model.
type LocalStatus string

const (
	StatusMissing LocalStatus = "missing"
	StatusInvalid LocalStatus = "invalid"
	StatusValid   LocalStatus = "valid"
)

// Classification compares the local state with the remote registry.
type Classification string

const (
	NeedsDownload Classification = "needsDownload"
	Outdated      Classification = "outdated"
	UpToDate      Classification = "upToDate"
	Unavailable   Classification = "unavailable"
)

// ServiceModels lists the model keys each service needs.
var ServiceModels = map[string][]string{
	"depth":      {"depth"},
	"detection":  {"object-detection"},
	"captioning": {"image-captioning"},
	"audio":      {"tts", "vocoder"},
}

// Validator checks cached models against their manifests.
type Validator struct {
	cache *Cache
}

func NewValidator(c *Cache) *Validator { return &Validator{cache: c} }

// GetCachedManifest returns the persisted manifest of key, or nil.
func (v *Validator) GetCachedManifest(ctx context.Context, key string) (*types.Manifest, error) {
	return v.cache.GetCachedManifest(ctx, key)
}

// ValidateCachedFiles recomputes the hash of every manifest entry. It stops at
// the first missing file or mismatching hash.
func (v *Validator) ValidateCachedFiles(ctx context.Context, key string, m *types.Manifest) bool {
	if m == nil {
		return false
	}
	rels := make([]string, 0, len(m.Files))
	for rel := range m.Files {
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	for _, rel := range rels {
		got, err := v.cache.hashFile(ctx, key, rel)
		if err != nil {
			v.cache.log.Debug().Err(err).Str("model", key).Str("file", rel).Msg("cached file unreadable")
			return false
		}
		if got != m.Files[rel] {
			v.cache.log.Debug().Str("model", key).Str("file", rel).Msg("hash mismatch")
			return false
		}
	}
	return true
}

// Status derives missing, invalid or valid for key.
func (v *Validator) Status(ctx context.Context, key string) LocalStatus {
	m, err := v.GetCachedManifest(ctx, key)
	if err != nil {
		v.cache.log.Warn().Err(err).Str("model", key).Msg("manifest unreadable")
		return StatusInvalid
	}
	if m == nil {
		return StatusMissing
	}
	if !v.ValidateCachedFiles(ctx, key, m) {
		return StatusInvalid
	}
	return StatusValid
}

// Classify maps a local status to a download decision.
func Classify(local LocalStatus, remoteAvailable bool) Classification {
	if !remoteAvailable {
		return Unavailable
	}
	switch local {
	case StatusValid:
		return UpToDate
	case StatusInvalid:
		return Outdated
	default:
		return NeedsDownload
	}
}

// IsServiceReady reports whether every model of service validates. Unknown
// services are never ready.
func (v *Validator) IsServiceReady(ctx context.Context, service string) bool {
	keys, ok := ServiceModels[service]
	if !ok {
		return false
	}
	for _, k := range keys {
		if v.Status(ctx, k) != StatusValid {
			return false
		}
	}
	return true
}

// Report builds the per-key view used by the API and the CLI. A key is stale
// when its cached manifest carries a different ETag than the registry.
func (v *Validator) Report(ctx context.Context, keys []string, remote map[string]types.RemoteModelInfo) []types.ModelStatus {
	out := make([]types.ModelStatus, 0, len(keys))
	for _, k := range keys {
		local := v.Status(ctx, k)
		info, ok := remote[k]
		st := types.ModelStatus{
			Key:    k,
			Local:  string(local),
			Remote: string(Classify(local, ok)),
		}
		if ok && local != StatusMissing {
			if m, err := v.GetCachedManifest(ctx, k); err == nil && m != nil && m.ETag != info.ETag {
				st.Stale = true
			}
		}
		out = append(out, st)
	}
	return out
}
