package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"backoffice/internal/entity"
)

// File зеркало на диске: один JSON-файл на ключ, запись атомарна
// (временный файл, fsync, rename).
type File struct {
	dir string
	mu  sync.Mutex
}

func NewFile(dir string) (*File, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mirror dir %s: %w", dir, err)
	}
	return &File{dir: dir}, nil
}

// backoffice:startups → backoffice_startups.json
func (f *File) path(key string) string {
	name := strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(key)
	return filepath.Join(f.dir, name+".json")
}

func (f *File) Load(_ context.Context, key string) ([]entity.Entity, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &entity.MirrorError{Key: key, Op: "load", Err: err}
	}
	return decode(key, data)
}

func (f *File) Save(_ context.Context, key string, items []entity.Entity) error {
	data, err := encode(items)
	if err != nil {
		return &entity.MirrorError{Key: key, Op: "save", Err: err}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := writeAtomic(f.path(key), data); err != nil {
		return &entity.MirrorError{Key: key, Op: "save", Err: err}
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".mirror-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
