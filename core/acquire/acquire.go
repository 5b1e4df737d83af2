// Package acquire fills a staging directory with audio from one source.
package acquire

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"DropFM/model"
)

// Acquirer writes the files of one source into req.StagingDir and returns how
// many regular files the directory holds afterwards.
type Acquirer interface {
	Acquire(ctx context.Context, req Request) (int, error)
}

// FilePart is one uploaded file. Size is the client's claim and is
// re-checked while copying.
type FilePart struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// Request is the input for a single acquisition.
type Request struct {
	Kind       model.SourceKind
	Source     string // URL for downloaders, joined filenames for uploads
	Parts      []FilePart
	StagingDir string
	Progress   func(message string)
}

func (r Request) report(format string, args ...interface{}) {
	if r.Progress != nil {
		r.Progress(fmt.Sprintf(format, args...))
	}
}

// Router dispatches a request to the acquirer registered for its kind.
type Router map[model.SourceKind]Acquirer

func (r Router) Acquire(ctx context.Context, req Request) (int, error) {
	a, ok := r[req.Kind]
	if !ok || a == nil {
		return 0, fmt.Errorf("no acquirer for source kind %q", req.Kind)
	}
	return a.Acquire(ctx, req)
}

// CountFiles counts visible regular files directly in dir.
func CountFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read staging dir: %w", err)
	}
	n := 0
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		n++
	}
	return n, nil
}
