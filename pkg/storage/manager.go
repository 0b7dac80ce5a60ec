package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"pageharvest/pkg/config"
	herrors "pageharvest/pkg/errors"
	"pageharvest/pkg/manifest"
)

// LockFileName is the run lock created inside the artifact directory
const LockFileName = manifest.ReservedPrefix + ".lock"

// PartialDirName holds in-progress writes. Its contents are never artifacts.
const PartialDirName = manifest.ReservedPrefix + "-partial"

// ErrArtifactExists is returned by Write when the id already has an artifact
var ErrArtifactExists = errors.New("artifact already exists")

// ArtifactStore maps item ids to files in one directory. Artifacts are
// written once and never replaced.
type ArtifactStore struct {
	dir       string
	extension string
	written   map[string]bool
	mu        sync.RWMutex
}

// NewArtifactStore opens dir, creating it if needed
func NewArtifactStore(cfg config.ArtifactsConfig) (*ArtifactStore, error) {
	if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	ext := cfg.Extension
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	store := &ArtifactStore{
		dir:       cfg.Directory,
		extension: ext,
		written:   make(map[string]bool),
	}

	if err := store.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing artifacts: %w", err)
	}

	return store, nil
}

// scanExistingFiles records artifacts already on disk; partial temp files
// are ignored
func (s *ArtifactStore) scanExistingFiles() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || strings.HasPrefix(name, manifest.ReservedPrefix) {
			continue
		}
		if !strings.HasSuffix(name, s.extension) {
			continue
		}
		s.written[strings.TrimSuffix(name, s.extension)] = true
	}

	return nil
}

// Path returns the artifact location for id
func (s *ArtifactStore) Path(id string) (string, error) {
	if err := manifest.ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, id+s.extension), nil
}

// Exists reports whether an artifact for id is on disk
func (s *ArtifactStore) Exists(id string) bool {
	path, err := s.Path(id)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Write stores content for id. The file appears fully written or not at
// all, and an existing artifact is never replaced.
func (s *ArtifactStore) Write(id string, content []byte) error {
	path, err := s.Path(id)
	if err != nil {
		return herrors.ForItem(herrors.ErrorTypeWrite, id, "invalid artifact id", err)
	}
	if s.Exists(id) {
		return herrors.ForItem(herrors.ErrorTypeWrite, id, path, ErrArtifactExists)
	}

	partial := filepath.Join(s.dir, PartialDirName)
	if err := os.MkdirAll(partial, 0755); err != nil {
		return herrors.ForItem(herrors.ErrorTypeWrite, id, "failed to create partial directory", err)
	}
	tmp, err := os.CreateTemp(partial, id+s.extension+".*")
	if err != nil {
		return herrors.ForItem(herrors.ErrorTypeWrite, id, "failed to create temporary file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return herrors.ForItem(herrors.ErrorTypeWrite, id, "failed to write artifact data", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return herrors.ForItem(herrors.ErrorTypeWrite, id, "failed to sync artifact", err)
	}
	if err := tmp.Close(); err != nil {
		return herrors.ForItem(herrors.ErrorTypeWrite, id, "failed to close artifact", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return herrors.ForItem(herrors.ErrorTypeWrite, id, "failed to set permissions", err)
	}

	if err := publish(tmpName, path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return herrors.ForItem(herrors.ErrorTypeWrite, id, path, ErrArtifactExists)
		}
		return herrors.ForItem(herrors.ErrorTypeWrite, id, "failed to publish artifact", err)
	}

	s.mu.Lock()
	s.written[id] = true
	s.mu.Unlock()

	return nil
}

// publish moves tmp into place without replacing an existing file. A hard
// link fails with ErrExist when the target exists; filesystems without
// links fall back to rename.
func publish(tmp, path string) error {
	err := os.Link(tmp, path)
	if err == nil || errors.Is(err, os.ErrExist) {
		return err
	}
	if _, statErr := os.Stat(path); statErr == nil {
		return os.ErrExist
	}
	return os.Rename(tmp, path)
}

// Dir returns the artifact directory
func (s *ArtifactStore) Dir() string {
	return s.dir
}

// Count returns the number of artifacts known to the store
func (s *ArtifactStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.written)
}

// RemoveStaleTemp deletes partial files left by an interrupted write.
// Only call it while holding the run lock.
func (s *ArtifactStore) RemoveStaleTemp() (int, error) {
	partial := filepath.Join(s.dir, PartialDirName)
	entries, err := os.ReadDir(partial)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read partial directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(partial, entry.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// RunLock guards an artifact directory against concurrent harvests
type RunLock struct {
	path string
	lock *flock.Flock
}

// AcquireRunLock takes the directory lock without blocking
func (s *ArtifactStore) AcquireRunLock() (*RunLock, error) {
	path := filepath.Join(s.dir, LockFileName)
	lock := flock.New(path)

	ok, err := lock.TryLock()
	if err != nil {
		return nil, herrors.New(herrors.ErrorTypeRunInProgress, "failed to acquire run lock", err)
	}
	if !ok {
		return nil, herrors.New(herrors.ErrorTypeRunInProgress,
			fmt.Sprintf("another harvest holds %s", path), nil)
	}

	return &RunLock{path: path, lock: lock}, nil
}

// Path returns the lock file location
func (l *RunLock) Path() string {
	return l.path
}

// Release unlocks the directory
func (l *RunLock) Release() error {
	return l.lock.Unlock()
}
