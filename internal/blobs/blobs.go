// Package blobs holds transient binary payloads (synthesized audio) behind
// opaque blob: URLs until they are revoked.
package blobs

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scheme prefixes every URL handed out by a Store.
const Scheme = "blob:"

// Blob is one stored payload.
type Blob struct {
	Data        []byte
	ContentType string
	Created     time.Time
}

// Store is an in-memory blob registry safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	blobs map[string]Blob
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{blobs: make(map[string]Blob), now: time.Now}
}

// Put stores data and returns its URL.
func (s *Store) Put(data []byte, contentType string) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.blobs[id] = Blob{Data: data, ContentType: contentType, Created: s.now()}
	s.mu.Unlock()
	return Scheme + id
}

// Get resolves a URL or a bare id.
func (s *Store) Get(url string) (Blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[strings.TrimPrefix(url, Scheme)]
	return b, ok
}

// Revoke releases a blob. Unknown URLs are ignored.
func (s *Store) Revoke(url string) {
	if url == "" {
		return
	}
	s.mu.Lock()
	delete(s.blobs, strings.TrimPrefix(url, Scheme))
	s.mu.Unlock()
}

// Len reports how many blobs are live.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
