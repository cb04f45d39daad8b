package tokenstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/spf13/viper"
)

const (
	fileType      = "yaml"
	fileMode      = 0o600
	directoryMode = 0o700
)

// FileStore keeps the slots in a YAML file so a session survives restarts
type FileStore struct {
	path   string
	values map[string]string
	lock   sync.RWMutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore opens the token file at path, creating its directory if needed.
// A missing file is an empty store.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("[NewFileStore] path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), directoryMode); err != nil {
		return nil, fmt.Errorf("[NewFileStore] failed to create directory for %s: %w", path, err)
	}

	fs := &FileStore{
		path:   path,
		values: make(map[string]string),
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fs, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(fileType)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("[NewFileStore] failed to read %s: %w", path, err)
	}
	for _, slot := range []Slot{AccessSlot, RefreshSlot} {
		if value := v.GetString(string(slot)); value != "" {
			fs.values[string(slot)] = value
		}
	}
	return fs, nil
}

// Path returns the backing file location
func (fs *FileStore) Path() string {
	return fs.path
}

func (fs *FileStore) Get(slot Slot) (string, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	value, ok := fs.values[string(slot)]
	if !ok {
		return "", fmt.Errorf("[FileStore Get] %s: %w", slot, errors.ErrNotFound)
	}
	return value, nil
}

func (fs *FileStore) Set(slot Slot, value string) error {
	if value == "" {
		return fs.Delete(slot)
	}

	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.values[string(slot)] = value
	return fs.flush()
}

func (fs *FileStore) Delete(slot Slot) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if _, ok := fs.values[string(slot)]; !ok {
		return nil
	}
	delete(fs.values, string(slot))
	return fs.flush()
}

// flush rewrites the whole file from values. Caller holds the lock.
// viper cannot unset keys, so a fresh instance is built on every write. It
// also derives the format from the file name, so the content goes to a .yaml
// sibling first and is renamed over path whatever its extension.
func (fs *FileStore) flush() error {
	v := viper.New()
	v.SetConfigType(fileType)
	v.SetConfigPermissions(fileMode)
	for k, value := range fs.values {
		v.Set(k, value)
	}

	tmp := fs.tempPath()
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("[FileStore flush] failed to remove stale %s: %w", tmp, err)
	}
	if err := v.WriteConfigAs(tmp); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("[FileStore flush] failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("[FileStore flush] failed to replace %s: %w", fs.path, err)
	}
	return nil
}

func (fs *FileStore) tempPath() string {
	dir, base := filepath.Split(fs.path)
	return filepath.Join(dir, "."+base+".tmp."+fileType)
}
