// Package keystore persists credentials and preferences in a JSON file under
// the user's config directory, the way the browser dashboard keeps them in
// localStorage. The file is shared between processes; a watcher propagates
// logout performed elsewhere (see watcher.go).
package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const fileName = "credentials.json"

type fileData struct {
	Token        string `json:"token,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	Language     string `json:"language,omitempty"`
	Theme        string `json:"theme,omitempty"`
}

// FileStore is a file-backed key-value store for tokens and preferences.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// New creates a store backed by the given file path. The parent directory is
// created if missing.
func New(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Default places the store under the user config directory
// (e.g. ~/.config/stockkanban/credentials.json).
func Default() (*FileStore, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolve config dir: %w", err)
	}
	return New(filepath.Join(dir, "stockkanban", fileName))
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.path
}

// SaveTokens writes the token pair, preserving stored preferences.
func (f *FileStore) SaveTokens(accessToken, refreshToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data := f.read()
	data.Token = accessToken
	data.RefreshToken = refreshToken
	return f.write(data)
}

// LoadTokens returns the persisted token pair. Both are empty when nothing
// is stored.
func (f *FileStore) LoadTokens() (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data := f.read()
	return data.Token, data.RefreshToken, nil
}

// ClearTokens removes the token pair but keeps preferences.
func (f *FileStore) ClearTokens() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data := f.read()
	data.Token = ""
	data.RefreshToken = ""
	return f.write(data)
}

// Language returns the persisted language preference.
func (f *FileStore) Language() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read().Language
}

// SetLanguage persists the language preference.
func (f *FileStore) SetLanguage(lang string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data := f.read()
	data.Language = lang
	return f.write(data)
}

// Theme returns the persisted theme preference.
func (f *FileStore) Theme() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read().Theme
}

// SetTheme persists the theme preference.
func (f *FileStore) SetTheme(theme string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data := f.read()
	data.Theme = theme
	return f.write(data)
}

// read returns the current file contents, or zero data when the file is
// missing or unreadable. Credentials that cannot be parsed are treated as
// absent rather than surfaced.
func (f *FileStore) read() fileData {
	var data fileData

	raw, err := os.ReadFile(f.path)
	if err != nil {
		return data
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return fileData{}
	}
	return data
}

// write persists via write-then-rename so concurrent readers never observe a
// partially written file.
func (f *FileStore) write(data fileData) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode keystore: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write keystore: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace keystore: %w", err)
	}
	return nil
}

// ErrClosed is returned by Watch when the underlying watcher shuts down.
var ErrClosed = errors.New("keystore watcher closed")
