package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mgpai22/autosub/internal/ffmpeg"
	"github.com/mgpai22/autosub/internal/transcribe"
	"github.com/mgpai22/autosub/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the browser upload page",
	Long: `Serve a page where a video can be uploaded and its subtitles
downloaded as an .srt file.

Examples:
  autosub serve
  autosub serve --listen 0.0.0.0:8501`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().
		String("listen", "", "Address to listen on (default from config, 127.0.0.1:8501)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.ListenAddr = listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to open job history: %w", err)
	}
	defer st.Close()

	if n, err := st.FailInterrupted(ctx); err != nil {
		logger.Warnw("failed to reset interrupted jobs", "error", err)
	} else if n > 0 {
		logger.Infow("marked interrupted jobs as failed", "count", n)
	}
	if cfg.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -cfg.RetentionDays)
		if n, err := st.Prune(ctx, cutoff); err != nil {
			logger.Warnw("failed to prune job history", "error", err)
		} else if n > 0 {
			logger.Infow("pruned old jobs", "count", n, "older_than", humanize.Time(cutoff))
		}
	}

	status := ffmpeg.Probe(ctx)
	if status.Available {
		logger.Infow("ffmpeg ready", "source", status.Source, "version", status.Version)
	} else {
		logger.Warnw("ffmpeg not found yet, it will be fetched on first use", "error", status.Error)
	}

	runner := newRunner(st, transcribe.Options{})
	srv, err := web.New(web.Options{
		ListenAddr:     cfg.ListenAddr,
		MaxUploadBytes: cfg.MaxUploadBytes,
		LockPath:       cfg.LockPath(),
		Engine:         cfg.Transcribe.Engine,
		ModelSize:      cfg.Transcribe.ModelSize,
		Language:       cfg.Transcribe.Language,
		Format:         "srt",
		OnListen: func(addr string) {
			fmt.Printf("Autosub listening on http://%s (uploads up to %s)\n",
				addr, humanize.IBytes(uint64(cfg.MaxUploadBytes)))
		},
	}, runner, st, logger)
	if err != nil {
		return err
	}

	return srv.ListenAndServe(ctx)
}
