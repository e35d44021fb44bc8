package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-audio/wav"

	ffmpegbin "github.com/mgpai22/autosub/internal/ffmpeg"
)

// JSON output from ffprobe
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Prober measures media duration.
type Prober struct {
	FFprobePath func() (string, error)
	Run         CommandRunner
}

func NewProber() *Prober {
	return &Prober{
		FFprobePath: ffmpegbin.FFprobePath,
		Run:         RunCommand,
	}
}

// Duration of an audio/video file. WAV headers are read directly, anything
// else goes through ffprobe.
func (p *Prober) Duration(ctx context.Context, filePath string) (time.Duration, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return 0, fmt.Errorf("file not found: %s", filePath)
	}

	if strings.EqualFold(filepath.Ext(filePath), ".wav") {
		if d, err := WAVDuration(filePath); err == nil {
			return d, nil
		}
	}

	ffprobePath, err := p.FFprobePath()
	if err != nil {
		return 0, err
	}

	out, err := p.Run(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		filePath,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbeDuration(out)
}

func parseProbeDuration(out []byte) (time.Duration, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

// WAVDuration reads the duration from a WAV header.
func WAVDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open wav file: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("invalid wav file: %s", path)
	}
	d, err := dec.Duration()
	if err != nil {
		return 0, fmt.Errorf("failed to read wav duration: %w", err)
	}
	return d, nil
}
