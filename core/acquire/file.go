package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"DropFM/core/pipeline"
	"DropFM/core/validator"
	"DropFM/logger"

	"github.com/dustin/go-humanize"
)

// Limits bounds an upload.
type Limits struct {
	MaxFileBytes  int64
	MaxTotalBytes int64
}

// FileReceiver copies uploaded parts into staging. Either every part is
// written or none is.
type FileReceiver struct {
	validator *validator.Validator
	limits    Limits
}

func NewFileReceiver(v *validator.Validator, limits Limits) *FileReceiver {
	return &FileReceiver{validator: v, limits: limits}
}

var errTooLarge = errors.New("exceeds size limit")

// Check runs the per-part and aggregate checks without touching the disk.
func (f *FileReceiver) Check(parts []FilePart) error {
	if len(parts) == 0 {
		return pipeline.Wrap(pipeline.ErrValidation, "upload", "no files in request", nil)
	}
	var total int64
	for _, p := range parts {
		if err := f.validator.ValidateFilename(p.Name); err != nil {
			return err
		}
		if p.Size < 0 {
			return pipeline.Wrap(pipeline.ErrAcquisition, "upload", fmt.Sprintf("%s: invalid size", p.Name), nil)
		}
		if f.limits.MaxFileBytes > 0 && p.Size > f.limits.MaxFileBytes {
			return pipeline.Wrap(pipeline.ErrAcquisition, "upload",
				fmt.Sprintf("%s is %s, limit is %s", p.Name, humanize.IBytes(uint64(p.Size)), humanize.IBytes(uint64(f.limits.MaxFileBytes))), errTooLarge)
		}
		total += p.Size
	}
	if f.limits.MaxTotalBytes > 0 && total > f.limits.MaxTotalBytes {
		return pipeline.Wrap(pipeline.ErrAcquisition, "upload",
			fmt.Sprintf("upload totals %s, limit is %s", humanize.IBytes(uint64(total)), humanize.IBytes(uint64(f.limits.MaxTotalBytes))), errTooLarge)
	}
	return nil
}

// Acquire checks every part, then streams each into the staging directory.
func (f *FileReceiver) Acquire(ctx context.Context, req Request) (int, error) {
	if err := f.Check(req.Parts); err != nil {
		return 0, err
	}

	var written []string
	var total int64
	cleanup := func() {
		for _, path := range written {
			_ = os.Remove(path)
		}
	}

	for _, part := range req.Parts {
		if err := ctx.Err(); err != nil {
			cleanup()
			return 0, err
		}
		dest, n, err := f.copyPart(req.StagingDir, part, f.limits.MaxTotalBytes-total)
		if dest != "" {
			written = append(written, dest)
		}
		if err != nil {
			cleanup()
			return 0, err
		}
		total += n
		req.report("received %s (%s)", filepath.Base(dest), humanize.IBytes(uint64(n)))
	}

	logger.Info("Upload staged",
		logger.String("stagingDir", req.StagingDir),
		logger.Int("files", len(written)),
		logger.String("size", humanize.IBytes(uint64(total))))
	return CountFiles(req.StagingDir)
}

// copyPart writes one part; remaining is what is left of the total budget.
func (f *FileReceiver) copyPart(dir string, part FilePart, remaining int64) (string, int64, error) {
	src, err := part.Open()
	if err != nil {
		return "", 0, pipeline.Wrap(pipeline.ErrAcquisition, "upload", part.Name+": open", err)
	}
	defer src.Close()

	out, dest, err := createUnique(dir, filepath.Base(part.Name))
	if err != nil {
		return "", 0, pipeline.Wrap(pipeline.ErrAcquisition, "upload", part.Name+": create", err)
	}

	limit := int64(-1)
	if f.limits.MaxFileBytes > 0 {
		limit = f.limits.MaxFileBytes
	}
	if f.limits.MaxTotalBytes > 0 && (limit < 0 || remaining < limit) {
		limit = remaining
	}
	reader := io.Reader(src)
	if limit >= 0 {
		reader = io.LimitReader(src, limit+1)
	}

	n, copyErr := io.Copy(out, reader)
	closeErr := out.Close()
	switch {
	case copyErr != nil:
		return dest, n, pipeline.Wrap(pipeline.ErrAcquisition, "upload", part.Name+": write", copyErr)
	case closeErr != nil:
		return dest, n, pipeline.Wrap(pipeline.ErrAcquisition, "upload", part.Name+": close", closeErr)
	case limit >= 0 && n > limit:
		return dest, n, pipeline.Wrap(pipeline.ErrAcquisition, "upload",
			fmt.Sprintf("%s is larger than the allowed %s", part.Name, humanize.IBytes(uint64(limit))), errTooLarge)
	}
	return dest, n, nil
}

// createUnique opens dir/name exclusively, adding " (n)" before the
// extension when the name is taken.
func createUnique(dir, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < 1000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("too many files named %s", name)
}
