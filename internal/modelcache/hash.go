package modelcache

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"path"
	"strconv"
	"strings"
)

// SampleSize is the length of each region read by PartialHash.
const SampleSize = 1 << 20

// HashFunc fingerprints an object of the given size.
type HashFunc func(r io.ReaderAt, size int64) (string, error)

// handlers selects the hash policy by file extension. Entries with other
// extensions are not cached.
var handlers = map[string]HashFunc{
	".json":        HashFull,
	".onnx":        PartialHash,
	".ort":         PartialHash,
	".bin":         PartialHash,
	".safetensors": PartialHash,
	".data":        PartialHash,
}

// HandlerFor returns the hash policy for name, or false when the extension is unknown.
func HandlerFor(name string) (HashFunc, bool) {
	h, ok := handlers[strings.ToLower(path.Ext(name))]
	return h, ok
}

// HashFull is the hex SHA-256 of the whole content.
func HashFull(r io.ReaderAt, size int64) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, io.NewSectionReader(r, 0, size)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// PartialHash fingerprints the first, middle and last SampleSize bytes. Each
// region is hashed on its own, then the three hex digests and the decimal
// size are concatenated and hashed again. Regions overlap for small inputs.
func PartialHash(r io.ReaderAt, size int64) (string, error) {
	chunk := int64(SampleSize)
	mid := max(0, size/2-chunk/2)
	end := max(0, size-chunk)

	var combined strings.Builder
	for _, off := range []int64{0, mid, end} {
		n := min(chunk, size-off)
		h := sha256.New()
		if _, err := io.Copy(h, io.NewSectionReader(r, off, n)); err != nil {
			return "", err
		}
		combined.WriteString(hex.EncodeToString(h.Sum(nil)))
	}
	combined.WriteString(strconv.FormatInt(size, 10))
	sum := sha256.Sum256([]byte(combined.String()))
	return hex.EncodeToString(sum[:]), nil
}
