package transcribe

import (
	"context"
	"fmt"

	"github.com/mgpai22/autosub/internal/media"
	"github.com/mgpai22/autosub/internal/subtitle"
)

// transcribeChunks runs t over every chunk with at most concurrency calls in
// flight, shifts each chunk's segments onto the full timeline and joins them
// in chunk order. The first failure cancels the chunks still running.
func transcribeChunks(
	ctx context.Context,
	t Transcriber,
	chunks []media.ChunkInfo,
	concurrency int,
	language string,
) (*Result, error) {
	if len(chunks) == 0 {
		return &Result{Language: language}, nil
	}
	if concurrency <= 0 {
		concurrency = 3
	}

	parts := make([][]subtitle.Segment, len(chunks))
	err := media.Parallel(ctx, len(chunks), concurrency, func(ctx context.Context, i int) error {
		chunk := chunks[i]
		result, err := t.Transcribe(ctx, chunk.Path)
		if err != nil {
			return fmt.Errorf("chunk %d failed: %w", chunk.Index, err)
		}
		parts[i] = offsetSegments(result.Segments, chunk.StartTime)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var segments []subtitle.Segment
	for _, part := range parts {
		segments = append(segments, part...)
	}

	return &Result{
		Segments: segments,
		Language: language,
		Duration: chunks[len(chunks)-1].EndTime,
	}, nil
}
