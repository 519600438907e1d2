package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// ErrInvalidPath is returned for paths that are empty or escape the store root
var ErrInvalidPath = errors.New("invalid object path")

// ObjectStore keeps blobs addressed by slash-separated paths
type ObjectStore interface {
	Write(ctx context.Context, objectPath string, data []byte) error
	// Read returns nil, nil when nothing is stored at objectPath
	Read(ctx context.Context, objectPath string) ([]byte, error)
	// Delete is a no-op for missing objects
	Delete(ctx context.Context, objectPath string) error
}

// FSStore is an ObjectStore on the local filesystem
type FSStore struct {
	root string
	// writers share dirs; pruning empty folders takes it exclusively
	dirs sync.RWMutex
}

// NewFSStore creates the root directory if needed
func NewFSStore(root string) (*FSStore, error) {
	rootAbs, err := filepath.Abs(filepath.FromSlash(root))
	if err != nil {
		return nil, fmt.Errorf("unable to resolve storage root: %w", err)
	}
	info, err := os.Stat(rootAbs)
	switch {
	case os.IsNotExist(err):
		Logger.Info("Creating storage directory", "path", rootAbs)
		if err := os.MkdirAll(rootAbs, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("error checking storage directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("storage path is not a directory: %s", rootAbs)
	}
	return &FSStore{root: rootAbs}, nil
}

// Root is the absolute directory the store writes under
func (s *FSStore) Root() string {
	return s.root
}

// resolve maps an object path to a file under the root
func (s *FSStore) resolve(objectPath string) (string, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(objectPath, `\`, "/"))
	if cleaned == "/" || strings.TrimSpace(objectPath) == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
	}
	full := filepath.Join(s.root, filepath.FromSlash(cleaned))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, objectPath)
	}
	return full, nil
}

// Write stores data atomically: temp file in the same directory, then rename
func (s *FSStore) Write(ctx context.Context, objectPath string, data []byte) error {
	full, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.dirs.RLock()
	defer s.dirs.RUnlock()
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move object into place: %w", err)
	}
	Logger.Debug("Stored object", "path", objectPath, "size", len(data))
	return nil
}

// Read implements ObjectStore
func (s *FSStore) Read(ctx context.Context, objectPath string) ([]byte, error) {
	full, err := s.resolve(objectPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// Delete implements ObjectStore
func (s *FSStore) Delete(ctx context.Context, objectPath string) error {
	full, err := s.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	s.pruneEmptyDirs(filepath.Dir(full))
	return nil
}

// pruneEmptyDirs removes empty parents left behind by Delete, stopping at the root
func (s *FSStore) pruneEmptyDirs(dir string) {
	s.dirs.Lock()
	defer s.dirs.Unlock()
	for dir != s.root && strings.HasPrefix(dir, s.root) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		Logger.Debug("Removing empty object folder", "dir", dir)
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
