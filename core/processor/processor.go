// Package processor invokes the external audio organizer on a staging
// directory.
package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"DropFM/core/pipeline"
	"DropFM/core/runner"
	"DropFM/logger"
)

// Processor turns staged files into an organized tree under outputDir.
type Processor interface {
	Process(ctx context.Context, stagingDir, outputDir string) (int, error)
	Enabled() bool
}

// Tool runs the organizer binary with --input-dir/--output-dir.
type Tool struct {
	binary string
	runner runner.Runner
}

func NewTool(binary string, r runner.Runner) *Tool {
	return &Tool{binary: binary, runner: r}
}

func (t *Tool) Enabled() bool { return true }

// Process empties outputDir, runs the tool and counts what it produced.
// stagingDir is only read.
func (t *Tool) Process(ctx context.Context, stagingDir, outputDir string) (int, error) {
	if err := resetDir(outputDir); err != nil {
		return 0, pipeline.Wrap(pipeline.ErrProcessing, "processor", "prepare output dir", err)
	}

	_, err := t.runner.Run(ctx, runner.Command{
		Binary: t.binary,
		Args:   []string{"--input-dir", stagingDir, "--output-dir", outputDir},
	})
	if err != nil {
		var exitErr *runner.ExitError
		switch {
		case errors.Is(err, runner.ErrTimedOut):
			logger.Error("Processor timed out", logger.String("binary", t.binary), logger.ErrorField(err))
			return 0, pipeline.Wrap(pipeline.ErrTimeout, "processor", "", err)
		case errors.As(err, &exitErr):
			logger.Error("Processor failed",
				logger.String("binary", t.binary),
				logger.Int("exitCode", exitErr.ExitCode),
				logger.String("stderr", exitErr.StderrTail))
			return 0, pipeline.Wrap(pipeline.ErrProcessing, "processor", "", err)
		default:
			return 0, pipeline.Wrap(pipeline.ErrProcessing, "processor", "run", err)
		}
	}

	n, err := CountTree(outputDir)
	if err != nil {
		return 0, pipeline.Wrap(pipeline.ErrProcessing, "processor", "count output", err)
	}
	return n, nil
}

// Disabled is the bypass mode: nothing runs and the caller merges raw
// staged files.
type Disabled struct{}

func (Disabled) Enabled() bool { return false }

func (Disabled) Process(context.Context, string, string) (int, error) {
	return 0, runner.ErrDisabled
}

var (
	_ Processor = (*Tool)(nil)
	_ Processor = Disabled{}
)

// Switch picks Tool or Disabled per attempt from a runtime override,
// falling back to the configured default.
type Switch struct {
	tool     Processor
	fallback bool
	override func(ctx context.Context) (enabled bool, ok bool, err error)
}

func NewSwitch(tool Processor, enabledByDefault bool, override func(ctx context.Context) (bool, bool, error)) *Switch {
	return &Switch{tool: tool, fallback: enabledByDefault, override: override}
}

// Resolve returns the processor to use for one attempt.
func (s *Switch) Resolve(ctx context.Context) Processor {
	enabled := s.fallback
	if s.override != nil {
		v, ok, err := s.override(ctx)
		switch {
		case err != nil:
			logger.Warn("Failed to read processor setting, using configured default",
				logger.Bool("enabled", s.fallback), logger.ErrorField(err))
		case ok:
			enabled = v
		}
	}
	if !enabled || s.tool == nil {
		return Disabled{}
	}
	return s.tool
}

func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// CountTree counts regular files below dir, skipping hidden names.
func CountTree(dir string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && len(d.Name()) > 0 && d.Name()[0] == '.' {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", dir, err)
	}
	return n, nil
}
