package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ChunkInfo is one piece of a split audio file and where it sits in the
// original timeline.
type ChunkInfo struct {
	Path      string
	Index     int
	StartTime time.Duration
	EndTime   time.Duration
}

// Chunker splits long audio into fixed-length pieces for hosted engines.
type Chunker struct {
	FFmpegPath  func() (string, error)
	Run         CommandRunner
	Prober      *Prober
	Concurrency int
}

func NewChunker() *Chunker {
	extractor := NewExtractor()
	return &Chunker{
		FFmpegPath: extractor.FFmpegPath,
		Run:        extractor.Run,
		Prober:     NewProber(),
	}
}

// planChunks lays out [start, end) windows of length covering total. Files
// are named <base>_chunk_NNN<ext> inside outputDir.
func planChunks(audioPath, outputDir string, total, length time.Duration) []ChunkInfo {
	ext := filepath.Ext(audioPath)
	base := strings.TrimSuffix(filepath.Base(audioPath), ext)

	var plan []ChunkInfo
	for start := time.Duration(0); start < total; start += length {
		i := len(plan)
		plan = append(plan, ChunkInfo{
			Path:      filepath.Join(outputDir, fmt.Sprintf("%s_chunk_%03d%s", base, i, ext)),
			Index:     i,
			StartTime: start,
			EndTime:   min(start+length, total),
		})
	}
	return plan
}

// Split cuts audioPath into chunks of chunkDuration inside outputDir, in
// timeline order. Concurrency of 0 or less defaults to 4 ffmpeg processes.
func (c *Chunker) Split(
	ctx context.Context,
	audioPath string,
	chunkDuration time.Duration,
	outputDir string,
) ([]ChunkInfo, error) {
	if chunkDuration <= 0 {
		return nil, fmt.Errorf("chunk duration must be positive, got %v", chunkDuration)
	}

	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	total, err := c.Prober.Duration(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get audio duration: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	ffmpegPath, err := c.FFmpegPath()
	if err != nil {
		return nil, err
	}

	plan := planChunks(audioPath, outputDir, total, chunkDuration)
	err = Parallel(ctx, len(plan), concurrency, func(ctx context.Context, i int) error {
		chunk := plan[i]
		args := ffmpeg.Input(audioPath).
			Output(chunk.Path, ffmpeg.KwArgs{
				"ss":       chunk.StartTime.Seconds(),
				"t":        (chunk.EndTime - chunk.StartTime).Seconds(),
				"c":        "copy",
				"loglevel": "error",
			}).
			OverWriteOutput().
			GetArgs()

		if _, err := c.Run(ctx, ffmpegPath, args...); err != nil {
			return fmt.Errorf("failed to create chunk %d: %w", chunk.Index, err)
		}
		return nil
	})
	if err != nil {
		CleanupChunks(plan)
		return nil, err
	}
	return plan, nil
}

// CleanupChunks removes chunk files, ignoring ones that were never written.
func CleanupChunks(chunks []ChunkInfo) error {
	var lastErr error
	for _, chunk := range chunks {
		if err := os.Remove(chunk.Path); err != nil && !os.IsNotExist(err) {
			lastErr = err
		}
	}
	return lastErr
}
