package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgpai22/autosub/internal/ffmpeg"
	"github.com/mgpai22/autosub/internal/media"
	"github.com/mgpai22/autosub/internal/store"
	"github.com/mgpai22/autosub/internal/subtitle"
	"github.com/mgpai22/autosub/internal/transcribe"
)

type fakeExtractor struct {
	calls []media.ExtractOptions
	err   error
}

func (f *fakeExtractor) ExtractAudio(_ context.Context, inputPath, outputPath string, opts media.ExtractOptions) error {
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return f.err
	}
	if _, err := os.Stat(inputPath); err != nil {
		return err
	}
	return os.WriteFile(outputPath, []byte("audio"), 0o644)
}

type fakeTranscriber struct {
	segments  []subtitle.Segment
	err       error
	audioPath string
	chunked   []media.ChunkInfo
	closed    bool
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audioPath string) (*transcribe.Result, error) {
	f.audioPath = audioPath
	if f.err != nil {
		return nil, f.err
	}
	return &transcribe.Result{Segments: f.segments, Language: "en", Duration: 4200 * time.Millisecond}, nil
}

func (f *fakeTranscriber) TranscribeWithChunks(_ context.Context, chunks []media.ChunkInfo, _ int) (*transcribe.Result, error) {
	f.chunked = chunks
	return &transcribe.Result{Segments: f.segments, Duration: 25 * time.Minute}, nil
}

func (f *fakeTranscriber) Name() string { return "fake" }

func (f *fakeTranscriber) Close() error {
	f.closed = true
	return nil
}

type fixedProber time.Duration

func (p fixedProber) Duration(context.Context, string) (time.Duration, error) {
	return time.Duration(p), nil
}

type fakeSplitter struct {
	dir string
}

func (s *fakeSplitter) Split(_ context.Context, audioPath string, chunk time.Duration, outputDir string) ([]media.ChunkInfo, error) {
	s.dir = outputDir
	return []media.ChunkInfo{
		{Path: audioPath, Index: 0, StartTime: 0, EndTime: chunk},
		{Path: audioPath, Index: 1, StartTime: chunk, EndTime: 2 * chunk},
	}, nil
}

var sampleSegments = []subtitle.Segment{
	{Start: 0, End: 1.5, Text: "Hello world."},
	{Start: 1.5, End: 4.2, Text: " Second line."},
}

const sampleSRT = "1\n00:00:00,000 --> 00:00:01,500\nHello world.\n\n" +
	"2\n00:00:01,500 --> 00:00:04,200\nSecond line.\n\n"

type harness struct {
	runner      *Runner
	store       *store.Store
	extractor   *fakeExtractor
	transcriber *fakeTranscriber
	workDir     string
	provider    transcribe.Provider
	options     transcribe.Options
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "autosub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	h := &harness{
		store:       s,
		extractor:   &fakeExtractor{},
		transcriber: &fakeTranscriber{segments: sampleSegments},
		workDir:     t.TempDir(),
	}
	ids := 0
	base := []Option{
		WithStore(s),
		WithExtractor(h.extractor),
		WithProber(fixedProber(time.Minute)),
		WithSplitter(&fakeSplitter{}),
		WithWorkDir(h.workDir),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("job-%d", ids)
		}),
		WithTranscriberFactory(func(_ context.Context, p transcribe.Provider, o transcribe.Options) (transcribe.Transcriber, error) {
			h.provider = p
			h.options = o
			return h.transcriber, nil
		}),
	}
	h.runner = NewRunner(nil, append(base, opts...)...)
	return h
}

func TestRunUpload(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	result, err := h.runner.Run(ctx, Request{
		Filename: "holiday.MOV",
		Body:     strings.NewReader("video bytes"),
	})
	require.NoError(t, err)

	assert.Equal(t, sampleSRT, result.Output)
	assert.Len(t, result.Document.Entries, 2)
	assert.Equal(t, store.StatusSucceeded, result.Job.Status)
	assert.Equal(t, "job-1", result.Job.ID)
	assert.Equal(t, transcribe.ProviderWhisper, h.provider)
	assert.True(t, h.transcriber.closed)

	require.Len(t, h.extractor.calls, 1)
	assert.Equal(t, "wav", h.extractor.calls[0].Format)
	assert.Equal(t, ".wav", filepath.Ext(h.transcriber.audioPath))

	saved, err := h.store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusSucceeded, saved.Status)
	assert.Equal(t, sampleSRT, saved.Subtitles)
	assert.Equal(t, 2, saved.Entries)
	assert.Equal(t, "holiday.MOV", saved.Filename)
	assert.Equal(t, "base", saved.Model)
	assert.Equal(t, "en", saved.Language)

	assert.Equal(t, h.workDir, filepath.Dir(h.options.WorkDir), "engine scratch space should be the job workspace")
	leftovers, err := os.ReadDir(h.workDir)
	require.NoError(t, err)
	assert.Empty(t, leftovers, "job workspace should be removed")
	assert.False(t, h.runner.Busy())
}

func TestRunRendersVTT(t *testing.T) {
	h := newHarness(t)

	result, err := h.runner.Run(context.Background(), Request{
		Filename: "clip.mp4",
		Body:     strings.NewReader("x"),
		Format:   subtitle.FormatVTT,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.Output, "WEBVTT\n\n1\n00:00:00.000 --> 00:00:01.500\n"))
}

func TestRunLocalAudioSkipsExtraction(t *testing.T) {
	h := newHarness(t)
	audio := filepath.Join(t.TempDir(), "speech.wav")
	require.NoError(t, os.WriteFile(audio, []byte("RIFF"), 0o644))

	_, err := h.runner.Run(context.Background(), Request{Path: audio, Language: "en-US"})
	require.NoError(t, err)
	assert.Empty(t, h.extractor.calls)
	assert.Equal(t, audio, h.transcriber.audioPath)

	saved, err := h.store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "speech.wav", saved.Filename)
	assert.Equal(t, "en", saved.Language)
}

func TestRunRejectsUnsupportedUpload(t *testing.T) {
	h := newHarness(t)

	_, err := h.runner.Run(context.Background(), Request{
		Filename: "notes.txt",
		Body:     strings.NewReader("x"),
	})
	require.ErrorIs(t, err, media.ErrUnsupportedFile)

	jobs, err := h.store.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestRunRejectsBadOptions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.runner.Run(ctx, Request{Filename: "a.mp4", Body: strings.NewReader("x"), ModelSize: "huge"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = h.runner.Run(ctx, Request{Filename: "a.mp4", Body: strings.NewReader("x"), Provider: "acme"})
	assert.Error(t, err)
	_, err = h.runner.Run(ctx, Request{Filename: "a.mp4", Body: strings.NewReader("x"), Format: "ass"})
	assert.Error(t, err)
	_, err = h.runner.Run(ctx, Request{Filename: "a.mp4", Body: strings.NewReader("x"), Language: "not a language!"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = h.runner.Run(ctx, Request{})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestRunRecordsFailure(t *testing.T) {
	h := newHarness(t)
	h.transcriber.err = errors.New("transcription failed: whisper: exit status 1: CUDA out of memory")

	result, err := h.runner.Run(context.Background(), Request{
		Filename: "clip.mkv",
		Body:     strings.NewReader("x"),
	})
	require.Error(t, err)
	assert.Equal(t, store.StatusFailed, result.Job.Status)
	assert.Contains(t, Hint(err), "smaller model")

	saved, err := h.store.Get(context.Background(), result.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, saved.Status)
	assert.Contains(t, saved.Error, "out of memory")

	leftovers, err := os.ReadDir(h.workDir)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

// finishFailingStore records jobs but cannot save a result.
type finishFailingStore struct {
	*store.Store
}

func (finishFailingStore) Finish(context.Context, string, store.Outcome) error {
	return errors.New("database is locked")
}

func TestRunRecordsFailureWhenResultIsNotSaved(t *testing.T) {
	h := newHarness(t)
	h.runner.store = finishFailingStore{h.store}

	result, err := h.runner.Run(context.Background(), Request{Filename: "clip.mp4", Body: strings.NewReader("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to record job result")
	assert.Equal(t, store.StatusFailed, result.Job.Status)

	saved, err := h.store.Get(context.Background(), result.Job.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, saved.Status)
	assert.Contains(t, saved.Error, "database is locked")
}

func TestRunExtractionFailure(t *testing.T) {
	h := newHarness(t)
	h.extractor.err = fmt.Errorf("locate ffmpeg: %w", ffmpeg.ErrFFmpegUnavailable)

	_, err := h.runner.Run(context.Background(), Request{Filename: "clip.avi", Body: strings.NewReader("x")})
	require.ErrorIs(t, err, ffmpeg.ErrFFmpegUnavailable)
	assert.Contains(t, Hint(err), "AUTOSUB_FFMPEG_PATH")
}

func TestRunBusy(t *testing.T) {
	h := newHarness(t)
	h.runner.slot <- struct{}{}
	assert.True(t, h.runner.Busy())

	_, err := h.runner.Run(context.Background(), Request{Filename: "clip.mp4", Body: strings.NewReader("x")})
	require.ErrorIs(t, err, ErrBusy)

	<-h.runner.slot
	_, err = h.runner.Run(context.Background(), Request{Filename: "clip.mp4", Body: strings.NewReader("x")})
	assert.NoError(t, err)
}

func TestRunRemoteChunksLongAudio(t *testing.T) {
	splitter := &fakeSplitter{}
	h := newHarness(t,
		WithProber(fixedProber(25*time.Minute)),
		WithSplitter(splitter),
		WithChunkDuration(10*time.Minute),
	)

	result, err := h.runner.Run(context.Background(), Request{
		Filename: "lecture.mp4",
		Body:     strings.NewReader("x"),
		Provider: transcribe.ProviderOpenAI,
	})
	require.NoError(t, err)

	assert.Equal(t, transcribe.ProviderOpenAI, h.provider)
	require.Len(t, h.extractor.calls, 1)
	assert.Equal(t, "mp3", h.extractor.calls[0].Format)
	assert.Len(t, h.transcriber.chunked, 2)
	assert.Empty(t, h.transcriber.audioPath, "single-shot path should not run")
	assert.Equal(t, 25*time.Minute, result.Job.Duration())
}

func TestRunShortAudioIsNotChunked(t *testing.T) {
	h := newHarness(t)

	_, err := h.runner.Run(context.Background(), Request{
		Filename: "clip.mp4",
		Body:     strings.NewReader("x"),
		Provider: transcribe.ProviderGemini,
	})
	require.NoError(t, err)
	assert.Empty(t, h.transcriber.chunked)
	assert.NotEmpty(t, h.transcriber.audioPath)
}

func TestRunTimeout(t *testing.T) {
	h := newHarness(t, WithTimeout(time.Nanosecond))
	h.transcriber.err = context.DeadlineExceeded

	_, err := h.runner.Run(context.Background(), Request{Filename: "clip.mp4", Body: strings.NewReader("x")})
	require.Error(t, err)
	assert.Contains(t, Hint(err), "smaller model")
}

func TestHint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"busy", ErrBusy, "Try again"},
		{"unsupported", fmt.Errorf("%w .txt", media.ErrUnsupportedFile), "mp4, mkv, avi, mov"},
		{"whisper missing", fmt.Errorf("transcription failed: whisper: %w", &exec.Error{Name: "whisper", Err: exec.ErrNotFound}), "pip install -U openai-whisper"},
		{"openai key", errors.New("API key is required (set OPENAI_API_KEY)"), "OPENAI_API_KEY"},
		{"gemini key", errors.New("API key is required (set GEMINI_API_KEY)"), "GEMINI_API_KEY"},
		{"killed", errors.New("transcription failed: whisper: signal: killed"), "smaller model"},
		{"unknown", errors.New("boom"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Hint(tt.err)
			if tt.want == "" {
				assert.Empty(t, got)
				return
			}
			assert.Contains(t, got, tt.want)
		})
	}
}
