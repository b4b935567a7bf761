package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/go-authkit-session/securestore"
)

const (
	saltFile   = ".salt"
	fileSuffix = ".sealed"
)

var _ securestore.Store = (*FileStore)(nil)

// FileStore keeps one sealed file per key inside a private directory.
type FileStore struct {
	dir    string
	sealer *securestore.Sealer
	mu     sync.RWMutex
}

// Open creates the directory if needed and derives the record key from the
// passphrase and the directory's salt (generated on first use).
func Open(dir, passphrase string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("[filestore.Open] dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("[filestore.Open] os.MkdirAll: %w", err)
	}

	salt, err := loadOrCreateSalt(filepath.Join(dir, saltFile))
	if err != nil {
		return nil, fmt.Errorf("[filestore.Open] salt: %w", err)
	}

	sealer, err := securestore.NewPassphraseSealer(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("[filestore.Open] %w", err)
	}

	return &FileStore{dir: dir, sealer: sealer}, nil
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if err := securestore.ValidateKey(key); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	sealed, err := os.ReadFile(s.path(key))
	s.mu.RUnlock()

	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("[FileStore.Get] os.ReadFile: %w", err)
	}

	value, err := s.sealer.Open(key, sealed)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set writes to a temp file in the same directory and renames it over the
// previous value, so readers see either the old or the new record.
func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	if err := securestore.ValidateKey(key); err != nil {
		return err
	}

	sealed, err := s.sealer.Seal(key, value)
	if err != nil {
		return fmt.Errorf("[FileStore.Set] seal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("[FileStore.Set] os.CreateTemp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return fmt.Errorf("[FileStore.Set] write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("[FileStore.Set] sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[FileStore.Set] close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return fmt.Errorf("[FileStore.Set] os.Rename: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := securestore.ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("[FileStore.Delete] os.Remove: %w", err)
	}
	return nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+fileSuffix)
}

func loadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil {
		return salt, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	salt, err = securestore.NewSalt()
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		// Another process won the race
		return os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(salt); err != nil {
		f.Close()
		return nil, err
	}
	return salt, f.Close()
}
