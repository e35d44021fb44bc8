package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mgpai22/autosub/internal/job"
	"github.com/mgpai22/autosub/internal/media"
	"github.com/mgpai22/autosub/internal/store"
	"github.com/mgpai22/autosub/internal/subtitle"
	"github.com/mgpai22/autosub/internal/transcribe"
)

var generateCmd = &cobra.Command{
	Use:   "generate [media_file]",
	Short: "Generate subtitles for an audio or video file",
	Long: `Generate subtitles for the specified audio or video file.

Video files have their audio extracted with ffmpeg first. Local whisper is
the default engine; --engine openai or gemini uses the hosted APIs and
splits long recordings into chunks transcribed in parallel.

Examples:
  autosub generate video.mp4
  autosub generate video.mp4 --model small -o out/video.srt
  autosub generate talk.mkv --format vtt --language de
  autosub generate lecture.mp4 --engine openai`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().
		StringP("output", "o", "", "Output file path (default: next to the input)")
	generateCmd.Flags().
		StringP("format", "f", "srt", "Output subtitle format (srt, vtt); defaults to the -o extension")
	generateCmd.Flags().
		StringP("model", "m", "", "Whisper model size (tiny, base, small, medium, large)")
	generateCmd.Flags().
		StringP("engine", "e", "", "Transcription engine (whisper, openai, gemini)")
	generateCmd.Flags().
		StringP("language", "l", "", "Language code of the audio (e.g., en, es, fr); empty to auto-detect")
	generateCmd.Flags().
		String("transcript-language", "", "Output language for the transcript ('english' translates, empty keeps the original)")
	generateCmd.Flags().
		String("prompt", "", "Prompt with names or vocabulary to guide transcription")
	generateCmd.Flags().
		Bool("no-history", false, "Do not record the run in the job history")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	mediaPath := args[0]

	if _, err := os.Stat(mediaPath); os.IsNotExist(err) {
		return fmt.Errorf("file not found: %s", mediaPath)
	}
	if !media.IsMediaFile(mediaPath) {
		return fmt.Errorf("%w %s (expected audio or video file)", media.ErrUnsupportedFile, filepath.Ext(mediaPath))
	}

	formatStr, _ := cmd.Flags().GetString("format")
	outputPath, _ := cmd.Flags().GetString("output")
	model, _ := cmd.Flags().GetString("model")
	engine, _ := cmd.Flags().GetString("engine")
	language, _ := cmd.Flags().GetString("language")
	transcriptLang, _ := cmd.Flags().GetString("transcript-language")
	prompt, _ := cmd.Flags().GetString("prompt")
	noHistory, _ := cmd.Flags().GetBool("no-history")

	format, err := subtitle.ParseFormat(formatStr)
	if err != nil {
		return err
	}
	// "-o talk.vtt" alone picks the format
	if !cmd.Flags().Changed("format") && outputPath != "" {
		format = subtitle.GetFormatFromExtension(outputPath)
	}
	if outputPath == "" {
		outputPath = defaultOutputPath(mediaPath, format)
	}

	req := job.Request{
		Path:      mediaPath,
		Provider:  transcribe.Provider(firstNonEmpty(engine, cfg.Transcribe.Engine)),
		ModelSize: transcribe.ModelSize(firstNonEmpty(model, cfg.Transcribe.ModelSize)),
		Language:  firstNonEmpty(language, cfg.Transcribe.Language),
		Format:    format,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var st *store.Store
	if !noHistory {
		st, err = openStore(ctx)
		if err != nil {
			logger.Warnw("job history unavailable", "error", err)
			st = nil
		} else {
			defer st.Close()
		}
	}
	runner := newRunner(st, transcribe.Options{TranscriptLanguage: transcriptLang, Prompt: prompt})

	logger.Infow("Starting subtitle generation",
		"input", mediaPath,
		"output", outputPath,
		"engine", req.Provider,
		"model", req.ModelSize,
		"format", format,
	)

	result, err := runner.Run(ctx, req)
	if err != nil {
		printHint(err)
		return err
	}

	writer, err := subtitle.NewWriter(format)
	if err != nil {
		return fmt.Errorf("failed to create subtitle writer: %w", err)
	}
	if err := writer.Write(result.Document, outputPath); err != nil {
		return fmt.Errorf("failed to write subtitles: %w", err)
	}

	absOutput, _ := filepath.Abs(outputPath)
	fmt.Printf("Subtitles generated successfully: %s\n", absOutput)
	fmt.Printf("  Entries: %d\n", len(result.Document.Entries))
	fmt.Printf("  Duration: %s\n", result.Job.Duration().String())
	if st != nil {
		fmt.Printf("  Job: %s\n", result.Job.ID)
	}

	return nil
}

// defaultOutputPath replaces the media extension with the subtitle one.
func defaultOutputPath(mediaPath string, format subtitle.Format) string {
	base := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath))
	return base + subtitle.GetExtensionForFormat(format)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
