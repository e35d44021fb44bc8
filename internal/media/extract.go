package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	ffmpegbin "github.com/mgpai22/autosub/internal/ffmpeg"
)

// holds options for audio extraction
type ExtractOptions struct {
	Format     string // Output format (wav, mp3, aac, flac)
	SampleRate int    // Sample rate in Hz (e.g., 16000, 44100, 48000)
	Channels   int    // Number of channels (1 = mono, 2 = stereo)
	Bitrate    string // Bitrate for lossy formats (e.g., "64k", "128k")
}

// 16 kHz mono PCM, what whisper resamples to anyway
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		Format:     "wav",
		SampleRate: 16000,
		Channels:   1,
	}
}

// smaller payloads for hosted APIs with upload limits
func CompressedExtractOptions() ExtractOptions {
	return ExtractOptions{
		Format:     "mp3",
		SampleRate: 16000,
		Channels:   1,
		Bitrate:    "64k",
	}
}

// Extension returns the file extension matching opts.Format.
func (o ExtractOptions) Extension() string {
	switch o.Format {
	case "mp3", "aac", "flac":
		return "." + o.Format
	default:
		return ".wav"
	}
}

// Extractor pulls the audio track out of a media file.
type Extractor interface {
	ExtractAudio(ctx context.Context, inputPath, outputPath string, opts ExtractOptions) error
}

// CommandRunner executes an external binary and returns its combined output.
type CommandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// RunCommand is the default CommandRunner.
func RunCommand(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// FFmpegExtractor is the ffmpeg-backed Extractor.
type FFmpegExtractor struct {
	FFmpegPath func() (string, error)
	Run        CommandRunner
}

func NewExtractor() *FFmpegExtractor {
	return &FFmpegExtractor{
		FFmpegPath: ffmpegbin.FFmpegPath,
		Run:        RunCommand,
	}
}

// extracts audio from a video (or re-encodes an audio file)
func (e *FFmpegExtractor) ExtractAudio(
	ctx context.Context,
	inputPath, outputPath string,
	opts ExtractOptions,
) error {
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return fmt.Errorf("input file not found: %s", inputPath)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ffmpegPath, err := e.FFmpegPath()
	if err != nil {
		return err
	}

	out, err := e.Run(ctx, ffmpegPath, extractArgs(inputPath, outputPath, opts)...)
	if err != nil {
		return fmt.Errorf("ffmpeg extraction failed: %w: %s", err, lastLines(out, 3))
	}

	return nil
}

func extractArgs(inputPath, outputPath string, opts ExtractOptions) []string {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 16000
	}
	if opts.Channels <= 0 {
		opts.Channels = 1
	}

	kwargs := ffmpeg.KwArgs{
		"vn":       "",              // No video
		"ar":       opts.SampleRate, // Sample rate
		"ac":       opts.Channels,   // Channels
		"loglevel": "error",
	}

	switch opts.Format {
	case "mp3":
		kwargs["acodec"] = "libmp3lame"
		if opts.Bitrate != "" {
			kwargs["b:a"] = opts.Bitrate
		}
	case "aac":
		kwargs["acodec"] = "aac"
		if opts.Bitrate != "" {
			kwargs["b:a"] = opts.Bitrate
		}
	case "flac":
		kwargs["acodec"] = "flac"
	default:
		kwargs["acodec"] = "pcm_s16le"
	}

	return ffmpeg.Input(inputPath).
		Output(outputPath, kwargs).
		OverWriteOutput().
		GetArgs()
}

func lastLines(out []byte, n int) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
