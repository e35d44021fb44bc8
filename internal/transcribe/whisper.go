package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mgpai22/autosub/internal/media"
	"github.com/mgpai22/autosub/internal/subtitle"
)

// WhisperTranscriber runs the local openai-whisper CLI, which loads the
// pretrained checkpoint for the chosen model size and writes a JSON result.
type WhisperTranscriber struct {
	binary    string
	modelSize ModelSize
	options   Options
	run       media.CommandRunner
	tempDir   string
}

// whisper CLI --output_format json payload
type whisperOutput struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		ID    int     `json:"id"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func NewWhisperTranscriber(opts Options) (*WhisperTranscriber, error) {
	size, err := ParseModelSize(string(opts.ModelSize))
	if err != nil {
		return nil, err
	}

	binary := strings.TrimSpace(opts.WhisperBinary)
	if binary == "" {
		binary = "whisper"
	}

	return &WhisperTranscriber{
		binary:    binary,
		modelSize: size,
		options:   opts,
		run:       media.RunCommand,
		tempDir:   opts.WorkDir,
	}, nil
}

// WithCommandRunner replaces the subprocess runner.
func (t *WhisperTranscriber) WithCommandRunner(run media.CommandRunner) {
	if run != nil {
		t.run = run
	}
}

// WithTempDir sets where per-run output directories are created.
func (t *WhisperTranscriber) WithTempDir(dir string) {
	t.tempDir = dir
}

func (t *WhisperTranscriber) Name() string {
	return "whisper:" + string(t.modelSize)
}

// transcribes single audio file
func (t *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	if _, err := os.Stat(audioPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("audio file not found: %s", audioPath)
	}

	outputDir, err := os.MkdirTemp(t.tempDir, "autosub-whisper-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create whisper output dir: %w", err)
	}
	defer os.RemoveAll(outputDir)

	out, err := t.run(ctx, t.binary, t.buildArgs(audioPath, outputDir)...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("transcription failed: %w", ctxErr)
		}
		return nil, fmt.Errorf("transcription failed: %s: %w: %s", t.binary, err, tail(out, 400))
	}

	baseName := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	data, err := os.ReadFile(filepath.Join(outputDir, baseName+".json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read whisper output: %w", err)
	}

	segments, language, err := parseWhisperOutput(data)
	if err != nil {
		return nil, err
	}
	if language == "" {
		language = t.options.Language
	}

	return &Result{
		Segments: segments,
		Language: language,
		Duration: lastEnd(segments),
	}, nil
}

func (t *WhisperTranscriber) buildArgs(audioPath, outputDir string) []string {
	args := []string{
		audioPath,
		"--model", string(t.modelSize),
		"--output_format", "json",
		"--output_dir", outputDir,
		"--verbose", "False",
	}
	if lang := strings.TrimSpace(t.options.Language); lang != "" {
		args = append(args, "--language", lang)
	}
	if translatesToEnglish(t.options.TranscriptLanguage) {
		args = append(args, "--task", "translate")
	}
	if t.options.Prompt != "" {
		args = append(args, "--initial_prompt", t.options.Prompt)
	}
	return args
}

// parseWhisperOutput keeps every segment, including empty ones, in the
// order whisper produced them.
func parseWhisperOutput(data []byte) ([]subtitle.Segment, string, error) {
	var payload whisperOutput
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, "", fmt.Errorf("failed to parse whisper json: %w", err)
	}

	segments := make([]subtitle.Segment, len(payload.Segments))
	for i, seg := range payload.Segments {
		segments[i] = subtitle.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		}
	}
	return segments, payload.Language, nil
}

func (t *WhisperTranscriber) Close() error {
	return nil
}

func translatesToEnglish(transcriptLanguage string) bool {
	lang := strings.ToLower(strings.TrimSpace(transcriptLanguage))
	return lang == "english" || lang == "en"
}

func tail(out []byte, max int) string {
	s := strings.TrimSpace(string(out))
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
