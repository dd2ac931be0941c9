package evidence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ImageFileName is the name of the evidence image inside a session directory.
const ImageFileName = "sessionImage.jpg"

// ErrInvalidSessionID is returned for session ids that would escape the evidence directory.
var ErrInvalidSessionID = errors.New("invalid session id for evidence path")

// FileStore writes evidence images to <dir>/<sessionID>/sessionImage.jpg.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir. An empty dir means the working directory.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = "."
	}
	return &FileStore{dir: dir}
}

// Path returns where the image of sessionID is stored.
func (s *FileStore) Path(sessionID string) string {
	return filepath.Join(s.dir, sessionID, ImageFileName)
}

// Save writes image for sessionID and returns the file path. The session
// directory is created if absent; an existing image is overwritten.
func (s *FileStore) Save(sessionID string, image []byte) (string, error) {
	if sessionID == "" || sessionID == "." || strings.Contains(sessionID, "..") || strings.ContainsAny(sessionID, `/\`) {
		return "", ErrInvalidSessionID
	}

	sessionDir := filepath.Join(s.dir, sessionID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create evidence directory: %w", err)
	}

	path := filepath.Join(sessionDir, ImageFileName)
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return "", fmt.Errorf("failed to write evidence image: %w", err)
	}
	return path, nil
}
