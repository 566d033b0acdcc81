package indexer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "words")
	require.NoError(t, WriteVersion(dir, 7))

	v, err := ReadVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, v.Version)
	assert.False(t, v.CreatedAt.IsZero())

	_, err = os.Stat(filepath.Join(dir, versionFile+".tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestEnsureVersionWipesOnChange(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "words")
	state, err := EnsureVersion(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, VersionCreated, state)

	data := filepath.Join(dir, "000001.vlog")
	require.NoError(t, os.WriteFile(data, []byte("x"), 0o644))

	state, err = EnsureVersion(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, VersionCurrent, state)
	assert.FileExists(t, data)

	state, err = EnsureVersion(dir, 2)
	require.NoError(t, err)
	assert.Equal(t, VersionStale, state)
	assert.NoFileExists(t, data)
	v, err := ReadVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Version)
}

func TestReadVersionDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteVersion(dir, 3))
	path := filepath.Join(dir, versionFile)
	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	buf[9] ^= 0xff
	require.NoError(t, os.WriteFile(path, buf, 0o644))

	_, err = ReadVersion(dir)
	assert.ErrorIs(t, err, errVersionCorrupt)

	state, err := EnsureVersion(dir, 3)
	require.NoError(t, err)
	assert.Equal(t, VersionStale, state)
}
