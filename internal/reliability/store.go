// Package reliability keeps the service's databases healthy and backed up.
package reliability

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Object is one stored backup archive.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Store holds backup archives. S3Store keeps them off-site, LocalStore in a
// directory next to the databases.
type Store interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64) error
	List(ctx context.Context, prefix string) ([]Object, error)
	Delete(ctx context.Context, key string) error
}

// LocalStore keeps archives in a directory.
type LocalStore struct {
	dir string
}

// NewLocalStore creates the directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

// Dir returns the backup directory
func (s *LocalStore) Dir() string {
	return s.dir
}

func (s *LocalStore) Upload(ctx context.Context, key string, r io.Reader, size int64) error {
	tmp := filepath.Join(s.dir, "."+key+".partial")
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, filepath.Join(s.dir, key))
}

func (s *LocalStore) List(ctx context.Context, prefix string) ([]Object, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	objects := make([]Object, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		objects = append(objects, Object{Key: e.Name(), Size: info.Size(), LastModified: info.ModTime()})
	}
	return objects, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	return os.Remove(filepath.Join(s.dir, key))
}
