package modelcache

import (
	"context"
	"io"
)

// Store is a flat namespace of byte objects addressed by slash-separated
// paths such as "/models/depth/model.onnx".
type Store interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	// List returns every path with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ReaderAtStore is implemented by stores that can serve random reads, which
// lets partial hashing avoid loading whole weight files.
type ReaderAtStore interface {
	OpenReaderAt(ctx context.Context, path string) (ReaderAtCloser, int64, error)
}

// ReaderAtCloser is an io.ReaderAt that must be closed.
type ReaderAtCloser interface {
	io.ReaderAt
	io.Closer
}

// StreamStore is implemented by stores that can write an object of known
// size straight from a reader.
type StreamStore interface {
	PutStream(ctx context.Context, path string, r io.Reader, size int64) error
}
