// Package merge moves organized output into a user's permanent library.
package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"DropFM/core/pipeline"
	"DropFM/logger"
)

// FileError is a failure to move one file.
type FileError struct {
	Path string // relative to the source root
	Err  error
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Result lists what happened to every entry under the source root.
type Result struct {
	Merged  []string
	Failed  []FileError
	Skipped []string // symlinks and other non-regular entries
}

// Total is the number of files a merge attempted.
func (r *Result) Total() int {
	return len(r.Merged) + len(r.Failed)
}

// Err summarizes per-file failures. Files already merged stay in the
// library; nothing is rolled back.
func (r *Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	causes := make([]error, 0, 3)
	for i, f := range r.Failed {
		if i == 3 {
			causes = append(causes, fmt.Errorf("and %d more", len(r.Failed)-3))
			break
		}
		causes = append(causes, f)
	}
	return pipeline.Wrap(pipeline.ErrMerge, "merge",
		fmt.Sprintf("merged %d of %d files", len(r.Merged), r.Total()), errors.Join(causes...))
}

// Merger moves files, falling back to copy when source and library are on
// different filesystems.
type Merger struct {
	rename func(oldpath, newpath string) error
}

func New() *Merger {
	return &Merger{rename: os.Rename}
}

// Merge walks srcDir and moves every regular file to the same relative path
// under libraryDir, replacing existing files. A returned error means the
// merge could not start or was cancelled; per-file problems are in Result.
func (m *Merger) Merge(ctx context.Context, srcDir, libraryDir string) (*Result, error) {
	res := &Result{}
	if err := os.MkdirAll(libraryDir, 0o755); err != nil {
		return res, pipeline.Wrap(pipeline.ErrMerge, "merge", "create library dir", err)
	}

	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == srcDir {
				return walkErr
			}
			rel, _ := filepath.Rel(srcDir, path)
			res.Failed = append(res.Failed, FileError{Path: rel, Err: walkErr})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			logger.Warn("Skipping non-regular file during merge", logger.String("path", rel))
			res.Skipped = append(res.Skipped, rel)
			return nil
		}

		if err := m.moveFile(path, filepath.Join(libraryDir, rel)); err != nil {
			logger.Warn("Failed to merge file", logger.String("path", rel), logger.ErrorField(err))
			res.Failed = append(res.Failed, FileError{Path: rel, Err: err})
			return nil
		}
		res.Merged = append(res.Merged, rel)
		return nil
	})
	if err != nil {
		return res, pipeline.Wrap(pipeline.ErrMerge, "merge", "walk "+srcDir, err)
	}
	return res, nil
}

func (m *Merger) moveFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create target directory: %w", err)
	}
	err := m.rename(src, dest)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return fmt.Errorf("move file: %w", err)
	}

	if err := copyVerified(src, dest); err != nil {
		return fmt.Errorf("copy file across devices: %w", err)
	}
	if err := os.Remove(src); err != nil {
		// the library copy is complete; staging cleanup will retry
		logger.Warn("Failed to remove source file after copy", logger.String("path", src), logger.ErrorField(err))
	}
	return nil
}

// copyVerified copies into a hidden temp file next to dest, checks the byte
// count, then renames it into place.
func copyVerified(src, dest string) error {
	source, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer source.Close()

	info, err := source.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, source)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("copy data: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync destination: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close destination: %w", err)
	}

	copied, err := os.Stat(tmpPath)
	if err != nil {
		return fmt.Errorf("stat copy: %w", err)
	}
	if written != info.Size() || copied.Size() != info.Size() {
		return fmt.Errorf("size mismatch: source %d bytes, copy %d bytes", info.Size(), copied.Size())
	}
	if err := os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("commit copy: %w", err)
	}
	committed = true
	return nil
}
