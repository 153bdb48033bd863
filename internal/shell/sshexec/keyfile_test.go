package sshexec

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKey(t *testing.T, mode fs.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, []byte("fake key material"), 0o600))
	require.NoError(t, os.Chmod(path, mode))
	return path
}

// =============================================================================
// KeyModeSecure Tests
// =============================================================================

func TestKeyModeSecure(t *testing.T) {
	tests := []struct {
		mode fs.FileMode
		ok   bool
	}{
		{0o600, true},
		{0o400, true},
		{0o644, false},
		{0o640, false},
		{0o666, false},
		{0o700, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ok, KeyModeSecure(tt.mode), "mode %o", tt.mode)
	}
}

// =============================================================================
// EnsureKeyMode Tests
// =============================================================================

func TestEnsureKeyMode_AlreadySecure(t *testing.T) {
	path := writeKey(t, 0o600)

	mode, fixed, err := EnsureKeyMode(path)
	require.NoError(t, err)

	assert.False(t, fixed)
	assert.Equal(t, fs.FileMode(0o600), mode.Perm())
}

func TestEnsureKeyMode_ReadOnlyAccepted(t *testing.T) {
	path := writeKey(t, 0o400)

	mode, fixed, err := EnsureKeyMode(path)
	require.NoError(t, err)

	assert.False(t, fixed)
	assert.Equal(t, fs.FileMode(0o400), mode.Perm())
}

func TestEnsureKeyMode_CorrectsLoosePermissions(t *testing.T) {
	path := writeKey(t, 0o644)

	mode, fixed, err := EnsureKeyMode(path)
	require.NoError(t, err)

	assert.True(t, fixed)
	assert.Equal(t, fs.FileMode(0o600), mode.Perm())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o600), info.Mode().Perm())
}

func TestEnsureKeyMode_Missing(t *testing.T) {
	_, _, err := EnsureKeyMode(filepath.Join(t.TempDir(), "absent"))
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
