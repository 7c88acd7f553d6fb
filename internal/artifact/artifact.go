// Package artifact persists pipeline stage outputs as JSON files.
//
// Files are plain overwrite-on-write; there is no locking and no atomic
// rename. Two runs for the same username within the same second share a path.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// TimestampLayout is the run timestamp embedded in artifact file names.
const TimestampLayout = "20060102_150405"

var ErrPathOutsideRoot = errors.New("path outside artifact root")

func Timestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) EnsureDir() error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}

// Path returns {root}/{username}_{stage}_{timestamp}.json.
func (s *Store) Path(username, stage, timestamp string) string {
	return filepath.Join(s.root, fmt.Sprintf("%s_%s_%s.json", username, stage, timestamp))
}

// Save writes v as a stage artifact and returns its path.
func (s *Store) Save(username, stage, timestamp string, v any) (string, error) {
	path := s.Path(username, stage, timestamp)
	if err := WriteJSON(path, v); err != nil {
		return "", err
	}
	return path, nil
}

// Read decodes the artifact at path into v. Relative paths resolve against
// the working directory; either way the file must live under the store root.
func (s *Store) Read(path string, v any) error {
	abs, err := s.resolve(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("artifact not found: %s", path)
		}
		return fmt.Errorf("failed to read artifact: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode artifact %s: %w", path, err)
	}
	return nil
}

// Sub returns a store for dir. Relative dirs are taken under the root, like
// Join; absolute dirs must already lie under it.
func (s *Store) Sub(dir string) (*Store, error) {
	if dir == "" {
		return s, nil
	}
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.root, filepath.Clean(string(filepath.Separator)+dir))
	}
	abs, err := s.resolveDir(dir)
	if err != nil {
		return nil, err
	}
	return NewStore(abs), nil
}

// Join resolves name relative to the root and rejects traversal.
func (s *Store) Join(name string) (string, error) {
	return s.resolve(filepath.Join(s.root, filepath.Clean(string(filepath.Separator)+name)))
}

func (s *Store) resolve(path string) (string, error) {
	absBase, err := filepath.Abs(s.root)
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", ErrPathOutsideRoot
	}
	return absPath, nil
}

func (s *Store) resolveDir(dir string) (string, error) {
	absBase, err := filepath.Abs(s.root)
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	if absDir != absBase && !strings.HasPrefix(absDir, absBase+string(filepath.Separator)) {
		return "", ErrPathOutsideRoot
	}
	return absDir, nil
}

// WriteJSON writes v as indented JSON, replacing any existing file.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write artifact %s: %w", path, err)
	}
	return nil
}
