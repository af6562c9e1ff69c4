package toolset

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toolsets.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tool_sets": []}`), 0644))

	r := NewRegistry()
	w, err := NewManifestWatcher(r, path)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer func() { _ = w.Stop() }()

	manifest := `{
		"tool_sets": [
			{"name": "general", "tools": [{"name": "current_time", "disabled": true}]}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0644))

	assert.Eventually(t, func() bool {
		set, ok := r.Get(SetGeneral)
		if !ok {
			return false
		}
		_, hasTime := set.Tool("current_time")
		return !hasTime
	}, 2*time.Second, 20*time.Millisecond)
}

func TestManifestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toolsets.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tool_sets": []}`), 0644))

	r := NewRegistry()
	w, err := NewManifestWatcher(r, path)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer func() { _ = w.Stop() }()

	// Writing an unrelated file in the watched directory must not disturb
	// the registry.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{{{`), 0644))
	time.Sleep(300 * time.Millisecond)

	set, _ := r.Get(SetGeneral)
	_, ok := set.Tool("current_time")
	assert.True(t, ok)
}

func TestManifestWatcherStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "toolsets.json")

	r := NewRegistry()
	w, err := NewManifestWatcher(r, path)
	require.NoError(t, err)
	require.NoError(t, w.Start())

	assert.NoError(t, w.Stop())
	// Second stop only errors on the already-closed fsnotify watcher, never
	// panics.
	_ = w.Stop()
}
