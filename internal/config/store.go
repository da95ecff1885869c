package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Store owns the JSON settings document on disk. Readers take a
// snapshot at request time; nothing holds a snapshot across requests,
// so an on-disk edit (ours or an external editor's) is visible on the
// next call.
type Store struct {
	path     string
	defaults map[string]any

	mu   sync.RWMutex
	data map[string]any
}

func NewStore(path, projectsRoot string) *Store {
	s := &Store{
		path: path,
		defaults: map[string]any{
			"last_project":  "",
			"last_model":    "",
			"last_provider": "",
			"debug_enabled": false,
			"projects_root": projectsRoot,
		},
	}
	s.reload()
	return s
}

// Snapshot returns a copy of the current settings document.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Update merges patch into the document and persists it. Unknown keys
// are kept: the document is an open bag shared with the web UI.
func (s *Store) Update(patch map[string]any) (map[string]any, error) {
	s.mu.Lock()
	for k, v := range patch {
		s.data[k] = v
	}
	s.mu.Unlock()

	if err := s.save(); err != nil {
		return nil, err
	}
	return s.Snapshot(), nil
}

// Directory returns the last selected project path, falling back to
// the projects root when none has been chosen yet.
func (s *Store) Directory() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, _ := s.data["last_project"].(string); p != "" {
		return p
	}
	root, _ := s.data["projects_root"].(string)
	return root
}

func (s *Store) LastProject() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, _ := s.data["last_project"].(string)
	return p
}

func (s *Store) ProjectsRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	root, _ := s.data["projects_root"].(string)
	if root == "" {
		root, _ = s.defaults["projects_root"].(string)
	}
	return root
}

func (s *Store) SetLastProject(path string) error {
	_, err := s.Update(map[string]any{"last_project": path})
	return err
}

func (s *Store) SetProjectsRoot(path string) error {
	_, err := s.Update(map[string]any{"projects_root": path})
	return err
}

// Watch reloads the document whenever the file changes on disk, until
// ctx is canceled. The parent directory is watched because editors and
// our own atomic save replace the file rather than writing in place.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config dir: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != s.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[config] watch error: %v", err)
		}
	}
}

func (s *Store) reload() {
	data := make(map[string]any, len(s.defaults))
	for k, v := range s.defaults {
		data[k] = v
	}
	if raw, err := os.ReadFile(s.path); err == nil {
		var onDisk map[string]any
		if err := json.Unmarshal(raw, &onDisk); err == nil {
			for k, v := range onDisk {
				data[k] = v
			}
		} else {
			log.Printf("[config] %s unreadable, using defaults: %v", s.path, err)
		}
	}

	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
}

func (s *Store) save() error {
	s.mu.RLock()
	raw, err := json.MarshalIndent(s.data, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "config-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, s.path)
}
