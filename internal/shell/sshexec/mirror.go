package sshexec

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// =============================================================================
// Directory Mirroring
// =============================================================================

// DefaultExcludes are the path names skipped during artifact transfer:
// version-control metadata and dependency/build caches that are rebuilt
// on the remote side.
var DefaultExcludes = []string{".git", "node_modules", "vendor", "__pycache__", ".venv", "target", "dist"}

// mirrorTimeout bounds the whole transfer, including the archive upload.
const mirrorTimeout = 5 * time.Minute

// Mirror transfers the local directory tree to remoteDir on the target
// host. The tree is streamed as a gzipped tar archive over the SSH
// session's stdin and unpacked remotely, so no additional transfer tool
// is needed on either side. Entries whose base name matches an exclusion
// are skipped along with their children.
func (e *Executor) Mirror(ctx context.Context, localDir, remoteDir string, excludes []string) error {
	if err := e.connect(e.config.ConnectTimeout); err != nil {
		return err
	}

	e.mu.Lock()
	session, err := e.client.NewSession()
	e.mu.Unlock()
	if err != nil {
		return NewExecError("mirror", e.host, err)
	}
	defer session.Close()

	pr, pw := io.Pipe()
	session.Stdin = pr
	// Closing the reader on every exit unblocks the archive goroutine,
	// which would otherwise sit in a pipe write forever after a timeout
	// or cancellation.
	defer pr.Close()

	archiveErr := make(chan error, 1)
	go func() {
		err := writeArchive(pw, localDir, excludes)
		pw.CloseWithError(err)
		archiveErr <- err
	}()

	cmd := fmt.Sprintf("mkdir -p %s && tar -xzf - -C %s", shellQuote(remoteDir), shellQuote(remoteDir))

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		return NewExecError("mirror", e.host, ctx.Err())
	case <-time.After(mirrorTimeout):
		return NewExecError("mirror", e.host, fmt.Errorf("%w after %v", ErrTimeout, mirrorTimeout))
	case err := <-done:
		if err != nil {
			return NewExecError("mirror", e.host, err)
		}
		if aErr := <-archiveErr; aErr != nil {
			return NewExecError("mirror", e.host, fmt.Errorf("archive local tree: %w", aErr))
		}
		return nil
	}
}

// writeArchive streams localDir as a gzipped tar to w, skipping excluded
// entries. Symlinks are archived as links; other irregular files are
// skipped.
func writeArchive(w io.Writer, localDir string, excludes []string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.WalkDir(localDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if excluded(d.Name(), excludes) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				return err
			}
		} else if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if info.Mode().IsRegular() {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			_, err = io.Copy(tw, f)
			f.Close()
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func excluded(name string, excludes []string) bool {
	for _, pattern := range excludes {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// shellQuote single-quotes a path for safe inclusion in a remote command
// line. Embedded single quotes are escaped with the '"'"' idiom.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
