// Package session persists and replays the authenticated browser context
// produced by the login command.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"pageharvest/pkg/config"
	herrors "pageharvest/pkg/errors"
)

// AuthContext is an opaque serialized browser session. It is loaded once
// and shared read-only; only the browser backend looks inside it.
type AuthContext struct {
	raw    []byte
	source string
}

// NewAuthContext wraps a serialized session state
func NewAuthContext(raw []byte, source string) *AuthContext {
	buf := make([]byte, len(raw))
	copy(buf, raw)
	return &AuthContext{raw: buf, source: source}
}

// Bytes returns a copy of the serialized state
func (a *AuthContext) Bytes() []byte {
	buf := make([]byte, len(a.raw))
	copy(buf, a.raw)
	return buf
}

// Source is where the context was loaded from
func (a *AuthContext) Source() string {
	return a.source
}

// Store loads and saves an AuthContext
type Store interface {
	// Load returns the saved context or a MissingSession error
	Load() (*AuthContext, error)

	// Save persists the context atomically
	Save(auth *AuthContext) error

	// Exists reports whether a saved context is present
	Exists() bool
}

// NewStore returns the backend selected by cfg
func NewStore(cfg config.SessionConfig) (Store, error) {
	if cfg.Encrypt {
		return NewEncryptedFileStore(cfg.Path)
	}
	return NewFileStore(cfg.Path), nil
}

// FileStore keeps the session as plain JSON on disk
type FileStore struct {
	path string
}

// NewFileStore creates a plain file store at path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file location
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the session file
func (f *FileStore) Load() (*AuthContext, error) {
	content, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, herrors.MissingSession(f.path, err)
		}
		return nil, herrors.New(herrors.ErrorTypeInvalidSession, "failed to read session", err)
	}
	if !json.Valid(content) {
		return nil, herrors.New(herrors.ErrorTypeInvalidSession,
			fmt.Sprintf("session at %s is not valid JSON", f.path), nil)
	}
	return NewAuthContext(content, f.path), nil
}

// Save writes the session file atomically with owner-only permissions
func (f *FileStore) Save(auth *AuthContext) error {
	if auth == nil || len(auth.raw) == 0 {
		return fmt.Errorf("refusing to save an empty session")
	}
	return writeFileAtomic(f.path, auth.raw)
}

// Exists checks whether the session file is present
func (f *FileStore) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// writeFileAtomic writes via a temporary file in the same directory and renames
func writeFileAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("failed to set session permissions: %w", err)
	}
	return os.Rename(tmpName, path)
}
