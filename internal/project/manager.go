// Package project manages the on-disk project directories the agent
// works in.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	ErrExists   = errors.New("project already exists")
	ErrNotFound = errors.New("project not found")
)

type Project struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// RootFunc resolves the projects root at call time so a config change
// takes effect without restarting.
type RootFunc func() string

type Manager struct {
	root RootFunc
}

func NewManager(root RootFunc) *Manager {
	return &Manager{root: root}
}

// List returns all project directories under the root, newest first.
// Hidden directories and plain files are skipped.
func (m *Manager) List() ([]Project, error) {
	root := m.root()
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return []Project{}, nil
		}
		return nil, fmt.Errorf("read projects root: %w", err)
	}

	projects := []Project{}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		projects = append(projects, Project{
			Name:     entry.Name(),
			Path:     filepath.Join(root, entry.Name()),
			Created:  info.ModTime(),
			Modified: info.ModTime(),
		})
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].Created.After(projects[j].Created)
	})
	return projects, nil
}

// Create makes a new project directory seeded with the stock layout.
// An explicit path overrides the root-relative default.
func (m *Manager) Create(name, path string) (Project, error) {
	if strings.TrimSpace(name) == "" {
		return Project{}, fmt.Errorf("project name is required")
	}
	target := path
	if target == "" {
		target = filepath.Join(m.root(), name)
	}
	if _, err := os.Stat(target); err == nil {
		return Project{}, fmt.Errorf("%w: %s", ErrExists, target)
	}

	if err := os.MkdirAll(target, 0o755); err != nil {
		return Project{}, fmt.Errorf("create project dir: %w", err)
	}
	for _, sub := range []string{"src", "assets"} {
		if err := os.Mkdir(filepath.Join(target, sub), 0o755); err != nil && !os.IsExist(err) {
			return Project{}, fmt.Errorf("create %s dir: %w", sub, err)
		}
	}
	readme := fmt.Sprintf("# %s\n\nCreated: %s\n", name, time.Now().Format("2006-01-02 15:04:05"))
	if err := os.WriteFile(filepath.Join(target, "README.md"), []byte(readme), 0o644); err != nil {
		return Project{}, fmt.Errorf("write README: %w", err)
	}

	info, err := os.Stat(target)
	if err != nil {
		return Project{}, err
	}
	return Project{Name: name, Path: target, Created: info.ModTime(), Modified: info.ModTime()}, nil
}

// Get looks up a single project by directory name.
func (m *Manager) Get(name string) (Project, error) {
	target := filepath.Join(m.root(), name)
	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		return Project{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return Project{Name: name, Path: target, Created: info.ModTime(), Modified: info.ModTime()}, nil
}

// Delete removes a project directory and everything in it.
func (m *Manager) Delete(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	target := filepath.Join(m.root(), name)
	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return os.RemoveAll(target)
}
