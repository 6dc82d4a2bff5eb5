package modelcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"visiond/internal/common/fsutil"
)

// FSStore keeps objects as files below a root directory.
type FSStore struct {
	root string
}

// NewFSStore creates the root directory if needed. A leading '~' is expanded.
func NewFSStore(root string) (*FSStore, error) {
	p, err := fsutil.ExpandHome(root)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FSStore{root: abs}, nil
}

// Root returns the absolute cache directory.
func (s *FSStore) Root() string { return s.root }

// resolve maps a store path below root; ".." segments cannot escape it.
func (s *FSStore) resolve(p string) string {
	clean := path.Clean("/" + p)
	return filepath.Join(s.root, filepath.FromSlash(clean))
}

func (s *FSStore) Get(_ context.Context, p string) ([]byte, error) {
	b, err := os.ReadFile(s.resolve(p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *FSStore) Put(_ context.Context, p string, data []byte) error {
	full := s.resolve(p)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, full)
}

// PutStream copies r into a temporary sibling and renames it into place.
func (s *FSStore) PutStream(_ context.Context, p string, r io.Reader, _ int64) (err error) {
	full := s.resolve(p)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	tmp := full + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()
	if _, err = io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, full)
}

func (s *FSStore) Delete(_ context.Context, p string) error {
	err := os.Remove(s.resolve(p))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

func (s *FSStore) List(_ context.Context, prefix string) ([]string, error) {
	if !fsutil.PathExists(s.root) {
		return nil, nil
	}
	var out []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		sp := "/" + filepath.ToSlash(rel)
		if strings.HasPrefix(sp, prefix) {
			out = append(out, sp)
		}
		return nil
	})
	return out, err
}

func (s *FSStore) OpenReaderAt(_ context.Context, p string) (ReaderAtCloser, int64, error) {
	f, err := os.Open(s.resolve(p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, st.Size(), nil
}
