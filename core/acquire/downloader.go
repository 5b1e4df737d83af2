package acquire

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"DropFM/core/pipeline"
	"DropFM/core/runner"
	"DropFM/logger"
	"DropFM/model"

	"go.uber.org/zap"
)

// Downloader runs an external extraction tool that writes audio into the
// staging directory.
type Downloader struct {
	kind       model.SourceKind
	binary     string
	runner     runner.Runner
	buildArgs  func(source, stagingDir string) []string
	extensions map[string]struct{}
}

// YouTubeOptions configures the yt-dlp invocation.
type YouTubeOptions struct {
	Binary         string
	AudioFormat    string
	FormatSelector string
	PlayerClient   string
	ExtraArgs      []string
}

// SpotifyOptions configures the spotdl invocation.
type SpotifyOptions struct {
	Binary      string
	AudioFormat string
	ExtraArgs   []string
}

// NewYouTube 创建 yt-dlp 下载器
func NewYouTube(opts YouTubeOptions, r runner.Runner, extensions []string) *Downloader {
	return &Downloader{
		kind:       model.SourceYouTube,
		binary:     opts.Binary,
		runner:     r,
		buildArgs:  func(source, dir string) []string { return YouTubeArgs(opts, source, dir) },
		extensions: extensionSet(extensions),
	}
}

// NewSpotify 创建 spotdl 下载器
func NewSpotify(opts SpotifyOptions, r runner.Runner, extensions []string) *Downloader {
	return &Downloader{
		kind:       model.SourceSpotify,
		binary:     opts.Binary,
		runner:     r,
		buildArgs:  func(source, dir string) []string { return SpotifyArgs(opts, source, dir) },
		extensions: extensionSet(extensions),
	}
}

func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[strings.ToLower(strings.TrimPrefix(e, "."))] = struct{}{}
	}
	return set
}

// YouTubeArgs builds the yt-dlp argument vector. The URL is one element and
// the player client hint is appended as its own flag pair.
func YouTubeArgs(opts YouTubeOptions, url, stagingDir string) []string {
	args := []string{"--extract-audio"}
	if opts.AudioFormat != "" {
		args = append(args, "--audio-format", opts.AudioFormat)
	}
	if opts.FormatSelector != "" {
		args = append(args, "--format", opts.FormatSelector)
	}
	args = append(args,
		"--no-playlist",
		"--output", filepath.Join(stagingDir, "%(title)s.%(ext)s"),
		url,
	)
	args = append(args, opts.ExtraArgs...)
	if opts.PlayerClient != "" {
		args = append(args, "--extractor-args", "youtube:player_client="+opts.PlayerClient)
	}
	return args
}

// SpotifyArgs builds the spotdl argument vector.
func SpotifyArgs(opts SpotifyOptions, url, stagingDir string) []string {
	args := []string{
		"download", url,
		"--output", filepath.Join(stagingDir, "{artist} - {title}.{output-ext}"),
	}
	if opts.AudioFormat != "" {
		args = append(args, "--format", opts.AudioFormat)
	}
	return append(args, opts.ExtraArgs...)
}

// Acquire runs the tool and returns the number of files it left in staging.
func (d *Downloader) Acquire(ctx context.Context, req Request) (int, error) {
	stage := string(d.kind)
	stop, err := watchStaging(ctx, req.StagingDir, d.extensions, func(name string) {
		req.report("downloaded %s", name)
	})
	if err != nil {
		// progress is best-effort; the download itself can still run
		logger.Warn("Failed to watch staging dir", logger.String("dir", req.StagingDir), logger.ErrorField(err))
		stop = func() {}
	}

	req.report("starting %s", filepath.Base(d.binary))
	res, runErr := d.runner.Run(ctx, runner.Command{
		Binary: d.binary,
		Args:   d.buildArgs(req.Source, req.StagingDir),
		Dir:    req.StagingDir,
	})
	stop()

	if runErr != nil {
		var exitErr *runner.ExitError
		switch {
		case errors.Is(runErr, runner.ErrTimedOut):
			return 0, pipeline.Wrap(pipeline.ErrTimeout, stage, "download", runErr)
		case errors.As(runErr, &exitErr):
			logger.Error("Downloader failed",
				logger.String("kind", stage),
				logger.Int("exitCode", exitErr.ExitCode),
				logger.String("stderr", exitErr.StderrTail))
			return 0, pipeline.Wrap(pipeline.ErrAcquisition, stage, "download", runErr)
		default:
			return 0, pipeline.Wrap(pipeline.ErrAcquisition, stage, "download", runErr)
		}
	}

	n, err := CountFiles(req.StagingDir)
	if err != nil {
		return 0, pipeline.Wrap(pipeline.ErrAcquisition, stage, "count files", err)
	}
	if n == 0 {
		return 0, pipeline.Wrap(pipeline.ErrAcquisition, stage, fmt.Sprintf("%s produced no files", filepath.Base(d.binary)), nil)
	}
	fields := []zap.Field{logger.String("kind", stage), logger.Int("files", n)}
	if res != nil {
		fields = append(fields, logger.Duration("took", res.Duration))
	}
	logger.Info("Download finished", fields...)
	return n, nil
}

var (
	_ Acquirer = (*Downloader)(nil)
	_ Acquirer = (*FileReceiver)(nil)
	_ Acquirer = Router(nil)
)
