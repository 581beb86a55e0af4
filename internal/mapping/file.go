package mapping

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"placeholder-anonymizer/internal/logger"
)

// Backend persists a Store. A run saves at most once (anonymize) or loads
// at most once (deanonymize).
type Backend interface {
	Load() (*Store, error)
	Save(s *Store) error
	Path() string
}

// Open picks the backend for path: a bbolt database for ".db" and ".bolt"
// files, a JSON document otherwise. A leading "~" is expanded to the
// user's home directory.
func Open(path string, log *logger.Logger) (Backend, error) {
	if log == nil {
		log = logger.Discard()
	}
	p, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(p)) {
	case ".db", ".bolt":
		return &boltFile{path: p, log: log}, nil
	default:
		return &jsonFile{path: p, log: log}, nil
	}
}

// ExpandPath resolves a leading "~" or "~/" to the home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("mapping: empty mapping file path")
	}
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("mapping: expand %q: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// jsonFile stores the mapping as a single JSON document.
type jsonFile struct {
	path string
	log  *logger.Logger
}

func (f *jsonFile) Path() string { return f.path }

func (f *jsonFile) Load() (*Store, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read mapping file: %w", err)
	}
	s, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	f.log.Debugf("mapping_load", "loaded %d entries (%d types) from %s", s.Len(), len(s.Types()), f.path)
	return s, nil
}

// Save writes the document atomically: temp file in the same directory,
// fsync, rename over the target.
func (f *jsonFile) Save(s *Store) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create mapping directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp mapping file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(Marshal(s)); err != nil {
		tmp.Close()        //nolint:errcheck // best-effort cleanup
		os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("write temp mapping file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()        //nolint:errcheck // best-effort cleanup
		os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("sync temp mapping file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp mapping file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename mapping file: %w", err)
	}
	f.log.Debugf("mapping_save", "wrote %d entries (%d types) to %s", s.Len(), len(s.Types()), f.path)
	return nil
}
