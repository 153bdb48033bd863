package sshexec

import (
	"fmt"
	"io/fs"
	"os"
)

// =============================================================================
// Key File Permissions
// =============================================================================

// KeyModeSecure reports whether a key file mode is acceptable: only the
// owner may read it, with or without write permission (0600 or 0400).
func KeyModeSecure(mode fs.FileMode) bool {
	perm := mode.Perm()
	return perm == 0o600 || perm == 0o400
}

// EnsureKeyMode checks the SSH key file and tightens its permissions to
// 0600 when they are looser than 0600/0400. It returns the resulting
// mode and whether a correction was applied.
func EnsureKeyMode(path string) (fs.FileMode, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, fmt.Errorf("%w: %s", ErrKeyNotFound, path)
		}
		return 0, false, fmt.Errorf("stat key file: %w", err)
	}

	mode := info.Mode()
	if KeyModeSecure(mode) {
		return mode, false, nil
	}

	if err := os.Chmod(path, 0o600); err != nil {
		return mode, false, fmt.Errorf("chmod key file to 0600: %w", err)
	}
	return fs.FileMode(0o600), true, nil
}
