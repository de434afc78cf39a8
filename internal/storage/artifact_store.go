// internal/storage/artifact_store.go
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ArtifactStore persists uploaded clips and stitched outputs under a base
// directory. Filenames are generated server-side so caller input never
// reaches the filesystem.
type ArtifactStore struct {
	BaseDir string

	// file level locks, path -> *sync.RWMutex
	fileLocks sync.Map
}

// NewArtifactStore creates the store and its base directory.
func NewArtifactStore(baseDir string) (*ArtifactStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &ArtifactStore{BaseDir: baseDir}, nil
}

func (s *ArtifactStore) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := s.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

// SaveStream writes an uploaded stream to a fresh uniquely-named file and
// returns the generated filename plus its absolute path.
func (s *ArtifactStore) SaveStream(r io.Reader, originalName string) (filename, fullPath string, err error) {
	filename = fmt.Sprintf("%s%s", uuid.New().String(), safeExt(originalName))
	fullPath = filepath.Join(s.BaseDir, filename)

	lock := s.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	// write to a temp file first so a failed upload never leaves a
	// half-written artifact behind
	tempPath := fullPath + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", "", fmt.Errorf("failed to create artifact file: %w", err)
	}

	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		os.Remove(tempPath)
		return "", "", fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return "", "", fmt.Errorf("failed to finalize artifact: %w", err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		os.Remove(tempPath)
		return "", "", fmt.Errorf("failed to move artifact into place: %w", err)
	}

	return filename, fullPath, nil
}

// SaveBytes writes a complete payload under a generated name.
func (s *ArtifactStore) SaveBytes(data []byte, originalName string) (filename, fullPath string, err error) {
	return s.SaveStream(strings.NewReader(string(data)), originalName)
}

// Resolve maps a bare filename back to a path inside the store. Traversal
// segments are rejected.
func (s *ArtifactStore) Resolve(filename string) (string, error) {
	if filename == "" || strings.Contains(filename, "/") || strings.Contains(filename, "\\") || strings.Contains(filename, "..") {
		return "", fmt.Errorf("invalid artifact name %q", filename)
	}
	fullPath := filepath.Join(s.BaseDir, filename)
	if _, err := os.Stat(fullPath); err != nil {
		return "", fmt.Errorf("artifact %q not found: %w", filename, err)
	}
	return fullPath, nil
}

// Remove deletes one artifact. Missing files are not an error.
func (s *ArtifactStore) Remove(filename string) error {
	fullPath := filepath.Join(s.BaseDir, filepath.Base(filename))

	lock := s.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove artifact: %w", err)
	}
	return nil
}

// List returns the filenames currently in the store.
func (s *ArtifactStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// safeExt keeps only a plausible extension from the client-supplied name.
func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if len(ext) < 2 || len(ext) > 6 {
		return ".mp4"
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ".mp4"
		}
	}
	return ext
}
