// Package blob хранилище загруженных файлов. Форма получает от него
// постоянную ссылку вместо байтов.
package blob

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Object метаданные сохранённого файла.
type Object struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
	URL    string `json:"url"`
}

// Store хранилище байтов по ключу.
type Store interface {
	Put(ctx context.Context, name string, r io.Reader) (Object, error)
	Open(key string) (io.ReadCloser, error)
	Delete(key string) error
}

var ErrBadKey = errors.New("blob: invalid key")

// LocalStore кладёт файлы под Root с ключом YYYY/MM/<ulid><ext>.
type LocalStore struct {
	Root    string // например, "./uploads"
	BaseURL string // префикс ссылки, например "/files/"

	mu      sync.Mutex
	entropy io.Reader
}

func NewLocalStore(root, baseURL string) *LocalStore {
	if root == "" {
		root = "uploads"
	}
	if baseURL == "" {
		baseURL = "/files/"
	}
	return &LocalStore{Root: root, BaseURL: baseURL}
}

func (s *LocalStore) newKey(name string, now time.Time) string {
	s.mu.Lock()
	if s.entropy == nil {
		s.entropy = ulid.Monotonic(rand.Reader, 0)
	}
	id := ulid.MustNew(ulid.Timestamp(now), s.entropy)
	s.mu.Unlock()

	ext := strings.ToLower(path.Ext(strings.ReplaceAll(name, "\\", "/")))
	if len(ext) > 10 {
		ext = ""
	}
	return fmt.Sprintf("%04d/%02d/%s%s", now.Year(), int(now.Month()), strings.ToLower(id.String()), ext)
}

// Put сохраняет поток, считая размер и sha256 по пути.
func (s *LocalStore) Put(ctx context.Context, name string, r io.Reader) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	key := s.newKey(name, time.Now().UTC())
	full, err := s.Path(key)
	if err != nil {
		return Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Object{}, fmt.Errorf("blob mkdir: %w", err)
	}
	f, err := os.Create(full)
	if err != nil {
		return Object{}, fmt.Errorf("blob create: %w", err)
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(full)
		return Object{}, fmt.Errorf("blob write: %w", err)
	}
	return Object{
		Key:    key,
		Name:   filepath.Base(name),
		Size:   n,
		SHA256: hex.EncodeToString(h.Sum(nil)),
		URL:    s.URL(key),
	}, nil
}

// Upload ссылка на сохранённый файл.
func (s *LocalStore) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	obj, err := s.Put(ctx, name, r)
	if err != nil {
		return "", err
	}
	return obj.URL, nil
}

func (s *LocalStore) URL(key string) string {
	return strings.TrimRight(s.BaseURL, "/") + "/" + key
}

func (s *LocalStore) Open(key string) (io.ReadCloser, error) {
	full, err := s.Path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

func (s *LocalStore) Delete(key string) error {
	full, err := s.Path(key)
	if err != nil {
		return err
	}
	return os.Remove(full)
}

// Path локальный путь ключа. Ключи вне Root отклоняются.
func (s *LocalStore) Path(key string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	if key == "" || clean == "/" || strings.Contains(key, "..") {
		return "", ErrBadKey
	}
	return filepath.Join(s.Root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}
