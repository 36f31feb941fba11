package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Credentials supplies the bearer token for each request and forgets it
// when the API rejects it.
type Credentials interface {
	Token() string
	Clear() error
}

// MemoryToken holds a token in memory only.
type MemoryToken struct {
	mu  sync.RWMutex
	tok string
}

// NewMemoryToken returns credentials backed by tok.
func NewMemoryToken(tok string) *MemoryToken {
	return &MemoryToken{tok: tok}
}

func (m *MemoryToken) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tok
}

func (m *MemoryToken) Clear() error {
	m.mu.Lock()
	m.tok = ""
	m.mu.Unlock()
	return nil
}

// FileToken stores the token in a single file (e.g. ~/.novadash/token).
// The file is read once and cached.
type FileToken struct {
	path string

	mu     sync.Mutex
	tok    string
	loaded bool
}

// NewFileToken returns credentials stored at path.
func NewFileToken(path string) *FileToken {
	return &FileToken{path: path}
}

// Path returns the backing file path.
func (f *FileToken) Path() string {
	return f.path
}

func (f *FileToken) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.loaded {
		data, err := os.ReadFile(f.path)
		if err == nil {
			f.tok = strings.TrimSpace(string(data))
		}
		f.loaded = true
	}
	return f.tok
}

// Save writes tok to disk with owner-only permissions.
func (f *FileToken) Save(tok string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(f.path, []byte(tok), 0600); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	f.tok = tok
	f.loaded = true
	return nil
}

// Clear removes the token file. A missing file is not an error.
func (f *FileToken) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tok = ""
	f.loaded = true
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}
