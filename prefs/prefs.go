// Package prefs persists local user preferences in a small JSON key-value
// file. Storage is best effort: read failures fall back to defaults and
// write failures are logged and otherwise ignored.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/deepnoodle-ai/execview/log"
	"github.com/fsnotify/fsnotify"
)

// KeyArtifactProfile stores the artifact-collection profile.
const KeyArtifactProfile = "artifact_profile"

// DefaultPath returns the preferences file under the user's config
// directory, or a file in the working directory if that is unknown.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "execview-prefs.json"
	}
	return filepath.Join(dir, "execview", "prefs.json")
}

// Store is a key-value preference store backed by one file.
type Store struct {
	path   string
	logger log.Logger

	mu     sync.Mutex
	values map[string]string
}

// Open loads the preferences at path. A missing or unreadable file yields an
// empty store.
func Open(path string, logger log.Logger) *Store {
	s := &Store{path: path, logger: log.OrNull(logger), values: map[string]string{}}
	s.reload()
	return s
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) reload() {
	values, err := readValues(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Debug("reading preferences failed", "path", s.path, "error", err)
		}
		values = map[string]string{}
	}
	s.mu.Lock()
	s.values = values
	s.mu.Unlock()
}

func readValues(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	values := map[string]string{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return values, nil
}

// Get returns the value stored for key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key and writes the file.
func (s *Store) Set(key, value string) {
	s.mu.Lock()
	s.values[key] = value
	data, err := json.MarshalIndent(s.values, "", "  ")
	s.mu.Unlock()
	if err != nil {
		s.logger.Debug("encoding preferences failed", "error", err)
		return
	}
	if err := writeFile(s.path, data); err != nil {
		s.logger.Debug("writing preferences failed", "path", s.path, "error", err)
	}
}

// writeFile replaces path atomically.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Profile returns the stored artifact profile, or DefaultProfile if none is
// stored or the stored value is not valid.
func (s *Store) Profile() Profile {
	v, ok := s.Get(KeyArtifactProfile)
	if !ok {
		return DefaultProfile
	}
	p, err := ParseProfile(v)
	if err != nil {
		s.logger.Debug("ignoring stored artifact profile", "value", v)
		return DefaultProfile
	}
	return p
}

// SetProfile stores the artifact profile.
func (s *Store) SetProfile(p Profile) error {
	if !p.Valid() {
		return fmt.Errorf("unknown artifact profile %q", p)
	}
	s.Set(KeyArtifactProfile, string(p))
	return nil
}

// Watch reloads the store when the file changes on disk and calls onChange
// whenever the artifact profile changes as a result. It blocks until ctx is
// done.
func (s *Store) Watch(ctx context.Context, onChange func(Profile)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	last := s.Profile()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			s.reload()
			if p := s.Profile(); p != last {
				last = p
				if onChange != nil {
					onChange(p)
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Debug("preferences watcher error", "error", err)
		}
	}
}
