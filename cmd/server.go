package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"DropFM/core/acquire"
	"DropFM/core/auth"
	"DropFM/core/events"
	"DropFM/core/ingest"
	"DropFM/core/merge"
	"DropFM/core/processor"
	"DropFM/core/progress"
	"DropFM/core/runner"
	"DropFM/core/validator"
	"DropFM/db"
	"DropFM/logger"
	"DropFM/model"
	"DropFM/server"
	"DropFM/storage"

	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 30 * time.Second
	progressTTL     = 24 * time.Hour
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 DropFM 服务器",
	Long:  `启动 HTTP 服务器，接收文件上传、YouTube 与 Spotify 链接，并将整理后的音乐合并到用户曲库`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := db.EnsureDefaultAdmin(ctx, st.users); err != nil {
		return err
	}
	if err := recoverInterrupted(ctx, st.logs); err != nil {
		return err
	}

	staging, err := ingest.NewStaging(cfg.StagingDir)
	if err != nil {
		return err
	}
	if _, err := staging.CleanStale(cfg.StagingMaxAge()); err != nil {
		logger.Warn("Staging cleanup failed", logger.ErrorField(err))
	}
	library, err := ingest.NewLibraryResolver(cfg.MusicDir)
	if err != nil {
		return err
	}

	broker := newProgressBroker()
	defer db.CloseRedis()
	notifier := newNotifier()
	if closer, ok := notifier.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	v := validator.New(validator.Rules{
		AllowedExtensions: cfg.AllowedExtensions,
		YouTubeDomains:    cfg.YouTubeDomains,
		SpotifyDomains:    cfg.SpotifyDomains,
	})
	local := runner.NewLocalBinary(cfg.SubprocessTimeout(), cfg.StderrTailLines)

	acquirers := acquire.Router{
		model.SourceFile: acquire.NewFileReceiver(v, acquire.Limits{
			MaxFileBytes:  cfg.MaxFileSizeBytes(),
			MaxTotalBytes: cfg.MaxTotalSizeBytes(),
		}),
	}
	if cfg.YouTubeEnabled {
		acquirers[model.SourceYouTube] = acquire.NewYouTube(acquire.YouTubeOptions{
			Binary:         cfg.YtDlpPath,
			AudioFormat:    cfg.YouTubeAudioFormat,
			FormatSelector: cfg.YouTubeFormatSelector,
			PlayerClient:   cfg.YouTubePlayerClient,
			ExtraArgs:      cfg.YouTubeExtraArgs,
		}, local, cfg.AllowedExtensions)
	}
	if cfg.SpotifyEnabled {
		acquirers[model.SourceSpotify] = acquire.NewSpotify(acquire.SpotifyOptions{
			Binary:      cfg.SpotdlPath,
			AudioFormat: cfg.SpotifyAudioFormat,
			ExtraArgs:   cfg.SpotifyExtraArgs,
		}, local, cfg.AllowedExtensions)
	}

	processors := processor.NewSwitch(
		processor.NewTool(cfg.ProcessorPath, local),
		cfg.ProcessorEnabled,
		func(ctx context.Context) (bool, bool, error) {
			return st.settings.GetBool(ctx, model.SettingProcessorEnabled)
		},
	)

	svc, err := ingest.NewService(ingest.Deps{
		Logs:           st.logs,
		Validator:      v,
		Acquirers:      acquirers,
		Processors:     processors,
		Merger:         merge.New(),
		Library:        library,
		Staging:        staging,
		Mirror:         newMirror(ctx),
		Progress:       broker,
		Events:         notifier,
		AttemptTimeout: cfg.AttemptTimeout(),
		MaxConcurrent:  cfg.MaxConcurrentAttempts,
	})
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.SessionTimeout())
	if err != nil {
		return err
	}
	handler := server.NewAPIHandler(svc, st.logs, st.users, st.settings, tokens, broker, cfg)

	serveErr := server.Run(ctx, cfg.ServerAddr, server.NewRouter(handler), shutdownTimeout)

	logger.Info("Waiting for running upload attempts to finish")
	svc.Wait()
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	return nil
}

func newProgressBroker() progress.Broker {
	if cfg.RedisAddr() == "" {
		logger.Info("Redis not configured, progress stays in process")
		return progress.NewMemory(time.Hour)
	}
	client, err := db.ConnectRedis(cfg)
	if err != nil {
		logger.Warn("Redis unavailable, progress stays in process", logger.ErrorField(err))
		return progress.NewMemory(time.Hour)
	}
	logger.Info("Progress published through Redis", logger.String("addr", cfg.RedisAddr()))
	return progress.NewRedis(client, progressTTL)
}

func newNotifier() events.Notifier {
	if cfg.AMQPURL == "" {
		return events.Nop{}
	}
	n, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		logger.Warn("AMQP unavailable, upload events disabled", logger.ErrorField(err))
		return events.Nop{}
	}
	logger.Info("Upload events published", logger.String("exchange", cfg.AMQPExchange))
	return n
}

func newMirror(ctx context.Context) storage.Mirror {
	if !cfg.MirrorEnabled {
		return storage.Nop{}
	}
	store, err := storage.NewMinioStore(ctx, cfg)
	if err != nil {
		logger.Warn("MinIO unavailable, library mirror disabled", logger.ErrorField(err))
		return storage.Nop{}
	}
	return store
}
