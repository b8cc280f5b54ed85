package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webbench/benchd/internal/models"
)

const sampleBenchmark = `name: web-basic
version: "1.0.0"
description: Basic web interaction benchmark
tasks:
  - name: search product
    prompt: Search for a red bicycle
    expected_result: bicycle
    max_score: 10
    category: search
    tags: [smoke]
    timeout_seconds: 30
  - name: add to cart
    prompt: Add the first result to the cart
    expected_result: added to cart
`

func writeBenchmark(t *testing.T, dir, filename, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644))
}

func TestLoadBenchmark(t *testing.T) {
	dir := t.TempDir()
	writeBenchmark(t, dir, "web-basic.yaml", sampleBenchmark)

	b, err := LoadBenchmark(filepath.Join(dir, "web-basic.yaml"))
	require.NoError(t, err)
	require.Equal(t, "web-basic", b.Name)
	require.Equal(t, "1.0.0", b.Version)
	require.Len(t, b.Tasks, 2)
	require.Equal(t, "search product", b.Tasks[0].Name)
	require.Equal(t, 10.0, b.Tasks[0].MaxScore)
	require.Equal(t, []string{"smoke"}, b.Tasks[0].Tags)
	require.Equal(t, 30, b.Tasks[0].TimeoutSec)

	// Unset max score defaults to one point.
	require.Equal(t, 1.0, b.Tasks[1].MaxScore)
}

func TestLoadBenchmarkValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errText string
	}{
		{"missing name", "version: \"1\"\ntasks:\n  - name: a\n    prompt: b\n", "name is required"},
		{"no tasks", "name: empty\nversion: \"1\"\n", "has no tasks"},
		{"task without name", "name: bad\ntasks:\n  - prompt: b\n", "has no name"},
		{"task without prompt", "name: bad\ntasks:\n  - name: a\n", "has no prompt"},
		{"negative max score", "name: bad\ntasks:\n  - name: a\n    prompt: b\n    max_score: -1\n", "negative max_score"},
		{"invalid yaml", "name: [unclosed\n", "parse benchmark"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeBenchmark(t, dir, "bad.yaml", tt.content)
			_, err := LoadBenchmark(filepath.Join(dir, "bad.yaml"))
			require.ErrorContains(t, err, tt.errText)
		})
	}
}

func TestNewFileCatalog(t *testing.T) {
	dir := t.TempDir()
	writeBenchmark(t, dir, "web-basic.yaml", sampleBenchmark)
	writeBenchmark(t, dir, "checkout.yml", `name: checkout
version: "2.0"
tasks:
  - name: pay
    prompt: Complete the checkout
`)

	c, err := NewFileCatalog(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"checkout", "web-basic"}, c.Names())

	version, err := c.VersionOf("checkout")
	require.NoError(t, err)
	require.Equal(t, "2.0", version)

	tasks, err := c.TasksFor("web-basic")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
}

func TestNewFileCatalogEmptyDir(t *testing.T) {
	_, err := NewFileCatalog(t.TempDir())
	require.ErrorContains(t, err, "no benchmark files")
}

func TestNewFileCatalogDuplicateName(t *testing.T) {
	dir := t.TempDir()
	writeBenchmark(t, dir, "a.yaml", sampleBenchmark)
	writeBenchmark(t, dir, "b.yaml", sampleBenchmark)
	_, err := NewFileCatalog(dir)
	require.ErrorContains(t, err, "duplicate benchmark name")
}

func TestCatalogUnknownBenchmark(t *testing.T) {
	dir := t.TempDir()
	writeBenchmark(t, dir, "web-basic.yaml", sampleBenchmark)
	c, err := NewFileCatalog(dir)
	require.NoError(t, err)

	_, err = c.TasksFor("nope")
	require.ErrorIs(t, err, ErrBenchmarkNotFound)
	_, err = c.VersionOf("nope")
	require.ErrorIs(t, err, ErrBenchmarkNotFound)
}

func TestStaticCatalog(t *testing.T) {
	c := &StaticCatalog{Benchmarks: map[string]*Benchmark{
		"mini": {
			Name:    "mini",
			Version: "0.1",
			Tasks:   []models.TaskTemplate{{Name: "a", Prompt: "do a", MaxScore: 1}},
		},
	}}

	tasks, err := c.TasksFor("mini")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, []string{"mini"}, c.Names())

	_, err = c.TasksFor("other")
	require.ErrorIs(t, err, ErrBenchmarkNotFound)
}
