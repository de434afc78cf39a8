// internal/storage/artifact_store_test.go
package storage

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveBytesGeneratesName(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir())
	require.NoError(t, err)

	name, fullPath, err := store.SaveBytes([]byte("payload"), "../../evil.mp4")
	require.NoError(t, err)
	assert.NotContains(t, name, "..")
	assert.True(t, strings.HasSuffix(name, ".mp4"))

	data, err := os.ReadFile(fullPath)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestSafeExtFallsBackToMP4(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir())
	require.NoError(t, err)

	name, _, err := store.SaveBytes([]byte("x"), "no-extension")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(name, ".mp4"))

	name, _, err = store.SaveBytes([]byte("x"), "weird.<script>")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(name, ".mp4"))
}

func TestResolveRejectsTraversal(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir())
	require.NoError(t, err)

	for _, bad := range []string{"", "../secret", "a/b.mp4", "..\\win.mp4"} {
		_, err := store.Resolve(bad)
		assert.Error(t, err, bad)
	}
}

func TestResolveAndList(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir())
	require.NoError(t, err)

	name, fullPath, err := store.SaveBytes([]byte("clip"), "a.mp4")
	require.NoError(t, err)

	resolved, err := store.Resolve(name)
	require.NoError(t, err)
	assert.Equal(t, fullPath, resolved)

	names, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{name}, names)

	require.NoError(t, store.Remove(name))
	_, err = store.Resolve(name)
	assert.Error(t, err)
	// removing twice is fine
	assert.NoError(t, store.Remove(name))
}
