package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mgpai22/autosub/internal/config"
	"github.com/mgpai22/autosub/internal/job"
	"github.com/mgpai22/autosub/internal/logging"
)

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "autosub",
	Short: "Automatic subtitle generator for videos",
	Long: `Autosub generates subtitles for video files using Whisper.

Run "autosub serve" for the browser upload page, or "autosub generate"
to write an .srt next to a local file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, path, exists, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", path, err)
		}
		cfg = loaded

		opts := logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}
		if verbose {
			opts.Level = "debug"
		}
		logger, err = logging.New(opts)
		if err != nil {
			logger = logging.NewLogger(verbose)
		}
		if exists {
			logger.Debugw("loaded config", "path", path)
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().
		BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		StringVar(&configPath, "config", "", "Config file (default ~/.config/autosub/config.toml)")
}

// printHint writes remediation advice for err to stderr, if any applies.
func printHint(err error) {
	if hint := job.Hint(err); hint != "" {
		fmt.Fprintf(os.Stderr, "hint: %s\n", hint)
	}
}
