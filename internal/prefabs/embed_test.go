package prefabs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListIncludesStarter(t *testing.T) {
	names, err := List()
	require.NoError(t, err)
	assert.Contains(t, names, "starter")
}

func TestInstallIfEmptySeedsAndIsIdempotent(t *testing.T) {
	dir := t.TempDir()

	installed, err := InstallIfEmpty(dir)
	require.NoError(t, err)
	assert.True(t, installed)

	for _, rel := range []string{"Starter/Starter.toc", "Starter/Starter.lua", "Starter/README.md"} {
		_, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel)))
		assert.NoError(t, err, rel)
	}

	// A populated directory is left alone.
	installed, err = InstallIfEmpty(dir)
	require.NoError(t, err)
	assert.False(t, installed)
}

func TestInstallDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "Starter")
	require.NoError(t, os.MkdirAll(target, 0o755))
	custom := filepath.Join(target, "Starter.lua")
	require.NoError(t, os.WriteFile(custom, []byte("-- customized"), 0o644))

	require.NoError(t, Install("starter", dir))

	data, err := os.ReadFile(custom)
	require.NoError(t, err)
	assert.Equal(t, "-- customized", string(data))
}
