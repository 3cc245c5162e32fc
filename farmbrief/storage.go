package farmbrief

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
)

// FileStorage manages local persistence of uploaded documents and
// generated audio, under category-named directories below a base dir.
type FileStorage struct {
	baseDir  string
	audioDir string
	pdfDir   string
	tempDir  string
	logger   *slog.Logger
}

// NewFileStorage creates the storage directories if needed.
func NewFileStorage(baseDir string, logger *slog.Logger) (*FileStorage, error) {
	s := &FileStorage{
		baseDir:  baseDir,
		audioDir: filepath.Join(baseDir, "audio"),
		pdfDir:   filepath.Join(baseDir, "pdf"),
		tempDir:  filepath.Join(baseDir, "temp"),
		logger:   logger,
	}
	for _, dir := range []string{s.audioDir, s.pdfDir, s.tempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("error creating storage dir %s: %w", dir, err)
		}
	}
	return s, nil
}

// SavePDF stores an uploaded PDF under its original filename.
func (s *FileStorage) SavePDF(data []byte, filename string) (string, error) {
	path := filepath.Join(s.pdfDir, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("error saving PDF: %w", err)
	}
	return path, nil
}

// SaveAudio stores generated audio under the given identifier.
func (s *FileStorage) SaveAudio(data []byte, identifier string) (string, error) {
	path := filepath.Join(s.audioDir, identifier+".mp3")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("error saving audio: %w", err)
	}
	return path, nil
}

// TempPath returns a path under the temp directory for the given name.
// Callers are responsible for cleanup.
func (s *FileStorage) TempPath(name string) string {
	return filepath.Join(s.tempDir, name)
}

// CleanupOldFiles deletes regular files older than maxAge from the temp
// and audio directories. Best effort: individual failures are logged and
// skipped, and there's no access-time tracking - modification time decides.
func (s *FileStorage) CleanupOldFiles(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, dir := range []string{s.tempDir, s.audioDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return removed, fmt.Errorf("error reading %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if err := os.Remove(path); err != nil {
				s.logger.Warn(
					"failed to remove old file",
					tint.Err(err),
					"path", path,
				)
				continue
			}
			removed++
		}
	}
	return removed, nil
}
