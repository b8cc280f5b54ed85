// Package catalog loads benchmark definitions — ordered task-template
// lists — from YAML files.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/webbench/benchd/internal/models"
)

// ErrBenchmarkNotFound indicates the named benchmark is not in the catalog.
var ErrBenchmarkNotFound = errors.New("benchmark not found")

// Catalog supplies the scripted task lists evaluations are built from.
type Catalog interface {
	// TasksFor returns the benchmark's task templates in execution order.
	TasksFor(name string) ([]models.TaskTemplate, error)
	// VersionOf returns the benchmark's version string.
	VersionOf(name string) (string, error)
	// Names lists the available benchmarks, sorted.
	Names() []string
}

// Benchmark is one catalog entry as authored on disk.
type Benchmark struct {
	Name        string                `yaml:"name"`
	Version     string                `yaml:"version"`
	Description string                `yaml:"description,omitempty"`
	Tasks       []models.TaskTemplate `yaml:"tasks"`
}

// Validate checks that the benchmark is structurally usable.
func (b *Benchmark) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("benchmark name is required")
	}
	if len(b.Tasks) == 0 {
		return fmt.Errorf("benchmark %q has no tasks", b.Name)
	}
	for i, t := range b.Tasks {
		if t.Name == "" {
			return fmt.Errorf("benchmark %q: task %d has no name", b.Name, i+1)
		}
		if t.Prompt == "" {
			return fmt.Errorf("benchmark %q: task %q has no prompt", b.Name, t.Name)
		}
		if t.MaxScore < 0 {
			return fmt.Errorf("benchmark %q: task %q has negative max_score", b.Name, t.Name)
		}
	}
	return nil
}

// LoadBenchmark loads and validates one benchmark file.
func LoadBenchmark(path string) (*Benchmark, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var b Benchmark
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse benchmark %s: %w", path, err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	// Tasks without an explicit max score are worth one point.
	for i := range b.Tasks {
		if b.Tasks[i].MaxScore == 0 {
			b.Tasks[i].MaxScore = 1
		}
	}

	return &b, nil
}

// FileCatalog is a Catalog backed by a directory of *.yaml benchmark files.
type FileCatalog struct {
	benchmarks map[string]*Benchmark
}

// NewFileCatalog loads every benchmark file under dir.
func NewFileCatalog(dir string) (*FileCatalog, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no benchmark files found in %s", dir)
	}

	c := &FileCatalog{benchmarks: make(map[string]*Benchmark)}
	for _, path := range paths {
		b, err := LoadBenchmark(path)
		if err != nil {
			return nil, fmt.Errorf("load benchmark %s: %w", path, err)
		}
		if _, exists := c.benchmarks[b.Name]; exists {
			return nil, fmt.Errorf("duplicate benchmark name %q (%s)", b.Name, path)
		}
		c.benchmarks[b.Name] = b
	}
	return c, nil
}

// TasksFor returns the benchmark's task templates in execution order.
func (c *FileCatalog) TasksFor(name string) ([]models.TaskTemplate, error) {
	b, ok := c.benchmarks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBenchmarkNotFound, name)
	}
	templates := make([]models.TaskTemplate, len(b.Tasks))
	copy(templates, b.Tasks)
	return templates, nil
}

// VersionOf returns the benchmark's version string.
func (c *FileCatalog) VersionOf(name string) (string, error) {
	b, ok := c.benchmarks[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrBenchmarkNotFound, name)
	}
	return b.Version, nil
}

// Names lists the available benchmarks, sorted.
func (c *FileCatalog) Names() []string {
	names := make([]string, 0, len(c.benchmarks))
	for name := range c.benchmarks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StaticCatalog is an in-memory Catalog, convenient for tests.
type StaticCatalog struct {
	Benchmarks map[string]*Benchmark
}

func (c *StaticCatalog) TasksFor(name string) ([]models.TaskTemplate, error) {
	b, ok := c.Benchmarks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBenchmarkNotFound, name)
	}
	return b.Tasks, nil
}

func (c *StaticCatalog) VersionOf(name string) (string, error) {
	b, ok := c.Benchmarks[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrBenchmarkNotFound, name)
	}
	return b.Version, nil
}

func (c *StaticCatalog) Names() []string {
	names := make([]string, 0, len(c.Benchmarks))
	for name := range c.Benchmarks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
