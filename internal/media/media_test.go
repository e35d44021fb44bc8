package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func TestFileClassification(t *testing.T) {
	tests := []struct {
		path         string
		video, audio bool
		upload       bool
	}{
		{"clip.mp4", true, false, true},
		{"CLIP.MKV", true, false, true},
		{"talk.avi", true, false, true},
		{"talk.mov", true, false, true},
		{"screen.webm", true, false, false},
		{"voice.wav", false, true, false},
		{"voice.mp3", false, true, false},
		{"notes.txt", false, false, false},
		{"noext", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsVideoFile(tt.path); got != tt.video {
				t.Errorf("IsVideoFile = %v, want %v", got, tt.video)
			}
			if got := IsAudioFile(tt.path); got != tt.audio {
				t.Errorf("IsAudioFile = %v, want %v", got, tt.audio)
			}
			if got := IsMediaFile(tt.path); got != (tt.video || tt.audio) {
				t.Errorf("IsMediaFile = %v", got)
			}
			if got := IsUploadAllowed(tt.path); got != tt.upload {
				t.Errorf("IsUploadAllowed = %v, want %v", got, tt.upload)
			}
		})
	}
}

func TestCheckUpload(t *testing.T) {
	if err := CheckUpload("movie.mov"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := CheckUpload("movie.webm")
	if !errors.Is(err, ErrUnsupportedFile) {
		t.Fatalf("expected ErrUnsupportedFile, got %v", err)
	}
	if !strings.Contains(err.Error(), "mp4, mkv, avi, mov") {
		t.Errorf("error should list allowed types: %v", err)
	}
}

func TestExtractArgs(t *testing.T) {
	args := extractArgs("in.mp4", "out.wav", DefaultExtractOptions())

	if !slices.Contains(args, "-vn") {
		t.Errorf("expected -vn in %v", args)
	}
	if !slices.Contains(args, "-y") {
		t.Errorf("expected -y in %v", args)
	}
	assertPair(t, args, "-i", "in.mp4")
	assertPair(t, args, "-ar", "16000")
	assertPair(t, args, "-ac", "1")
	assertPair(t, args, "-acodec", "pcm_s16le")
	if !slices.Contains(args, "out.wav") {
		t.Errorf("expected output path in %v", args)
	}
}

func TestExtractArgsCompressed(t *testing.T) {
	args := extractArgs("in.mp4", "out.mp3", CompressedExtractOptions())
	assertPair(t, args, "-acodec", "libmp3lame")
	assertPair(t, args, "-b:a", "64k")
}

func assertPair(t *testing.T, args []string, flag, value string) {
	t.Helper()
	i := slices.Index(args, flag)
	if i < 0 || i+1 >= len(args) || args[i+1] != value {
		t.Errorf("expected %s %s in %v", flag, value, args)
	}
}

func TestExtractOptionsExtension(t *testing.T) {
	if DefaultExtractOptions().Extension() != ".wav" {
		t.Error("default should produce .wav")
	}
	if CompressedExtractOptions().Extension() != ".mp3" {
		t.Error("compressed should produce .mp3")
	}
}

func TestFFmpegExtractor(t *testing.T) {
	tmp := t.TempDir()
	input := filepath.Join(tmp, "video.mp4")
	if err := os.WriteFile(input, []byte("fake"), 0644); err != nil {
		t.Fatal(err)
	}

	var gotBinary string
	var gotArgs []string
	extractor := &FFmpegExtractor{
		FFmpegPath: func() (string, error) { return "/usr/bin/ffmpeg", nil },
		Run: func(_ context.Context, binary string, args ...string) ([]byte, error) {
			gotBinary = binary
			gotArgs = args
			return nil, nil
		},
	}

	output := filepath.Join(tmp, "nested", "audio.wav")
	if err := extractor.ExtractAudio(context.Background(), input, output, DefaultExtractOptions()); err != nil {
		t.Fatalf("ExtractAudio failed: %v", err)
	}
	if gotBinary != "/usr/bin/ffmpeg" {
		t.Errorf("binary = %q", gotBinary)
	}
	if !slices.Contains(gotArgs, output) {
		t.Errorf("expected output path in args %v", gotArgs)
	}
	if _, err := os.Stat(filepath.Dir(output)); err != nil {
		t.Errorf("output directory not created: %v", err)
	}
}

func TestFFmpegExtractorErrors(t *testing.T) {
	tmp := t.TempDir()
	extractor := &FFmpegExtractor{
		FFmpegPath: func() (string, error) { return "ffmpeg", nil },
		Run: func(context.Context, string, ...string) ([]byte, error) {
			return []byte("line one\nInvalid data found when processing input\n"), errors.New("exit status 1")
		},
	}

	err := extractor.ExtractAudio(context.Background(), filepath.Join(tmp, "missing.mp4"), filepath.Join(tmp, "a.wav"), DefaultExtractOptions())
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got %v", err)
	}

	input := filepath.Join(tmp, "video.mp4")
	if err := os.WriteFile(input, []byte("fake"), 0644); err != nil {
		t.Fatal(err)
	}
	err = extractor.ExtractAudio(context.Background(), input, filepath.Join(tmp, "a.wav"), DefaultExtractOptions())
	if err == nil || !strings.Contains(err.Error(), "Invalid data found") {
		t.Errorf("expected ffmpeg output in error, got %v", err)
	}
}

func writeWAV(t *testing.T, path string, seconds int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           make([]int, 16000*seconds),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProberWAVHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	writeWAV(t, path, 2)

	prober := &Prober{
		FFprobePath: func() (string, error) { return "", errors.New("ffprobe must not be needed") },
	}
	d, err := prober.Duration(context.Background(), path)
	if err != nil {
		t.Fatalf("Duration failed: %v", err)
	}
	if d != 2*time.Second {
		t.Errorf("duration = %v, want 2s", d)
	}
}

func TestProberFFprobe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("fake"), 0644); err != nil {
		t.Fatal(err)
	}

	prober := &Prober{
		FFprobePath: func() (string, error) { return "ffprobe", nil },
		Run: func(_ context.Context, _ string, args ...string) ([]byte, error) {
			if args[len(args)-1] != path {
				t.Errorf("unexpected args %v", args)
			}
			return []byte(`{"format":{"duration":"12.500000"}}`), nil
		},
	}
	d, err := prober.Duration(context.Background(), path)
	if err != nil {
		t.Fatalf("Duration failed: %v", err)
	}
	if d != 12500*time.Millisecond {
		t.Errorf("duration = %v, want 12.5s", d)
	}
}

func TestParseProbeDurationInvalid(t *testing.T) {
	for _, input := range []string{`not json`, `{"format":{"duration":"N/A"}}`} {
		if _, err := parseProbeDuration([]byte(input)); err == nil {
			t.Errorf("expected error for %q", input)
		}
	}
}

func TestPlanChunks(t *testing.T) {
	plan := planChunks("/tmp/audio.mp3", "/tmp/out", 25*time.Second, 10*time.Second)
	if len(plan) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(plan))
	}
	if plan[2].StartTime != 20*time.Second || plan[2].EndTime != 25*time.Second {
		t.Errorf("last chunk = [%v, %v), want [20s, 25s)", plan[2].StartTime, plan[2].EndTime)
	}
	if filepath.Base(plan[1].Path) != "audio_chunk_001.mp3" {
		t.Errorf("chunk path = %q", plan[1].Path)
	}
	if exact := planChunks("a.wav", "out", 20*time.Second, 10*time.Second); len(exact) != 2 {
		t.Errorf("exact multiple produced %d chunks, want 2", len(exact))
	}
	if empty := planChunks("a.wav", "out", 0, 10*time.Second); len(empty) != 0 {
		t.Errorf("zero-length audio produced %d chunks", len(empty))
	}
}

func TestParallel(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[int]bool)
	err := Parallel(context.Background(), 10, 3, func(_ context.Context, i int) error {
		mu.Lock()
		seen[i] = true
		mu.Unlock()
		return nil
	})
	if err != nil || len(seen) != 10 {
		t.Fatalf("Parallel = %v after %d calls, want nil after 10", err, len(seen))
	}

	boom := errors.New("boom")
	calls := 0
	err = Parallel(context.Background(), 10, 1, func(_ context.Context, i int) error {
		calls++
		if i == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3: work should stop at the failure", calls)
	}

	if err := Parallel(context.Background(), 0, 4, nil); err != nil {
		t.Errorf("empty Parallel = %v", err)
	}
}

func TestChunkerSplit(t *testing.T) {
	tmp := t.TempDir()
	input := filepath.Join(tmp, "audio.mp3")
	if err := os.WriteFile(input, []byte("fake"), 0644); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	calls := 0
	run := func(_ context.Context, binary string, args ...string) ([]byte, error) {
		if binary == "ffprobe" {
			return []byte(`{"format":{"duration":"25"}}`), nil
		}
		mu.Lock()
		calls++
		mu.Unlock()
		return nil, nil
	}

	chunker := &Chunker{
		FFmpegPath:  func() (string, error) { return "ffmpeg", nil },
		Run:         run,
		Prober:      &Prober{FFprobePath: func() (string, error) { return "ffprobe", nil }, Run: run},
		Concurrency: 2,
	}

	chunks, err := chunker.Split(context.Background(), input, 10*time.Second, filepath.Join(tmp, "chunks"))
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("ffmpeg calls = %d, want 3", calls)
	}
	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Errorf("chunk %d has index %d", i, chunk.Index)
		}
	}
	if chunks[2].EndTime != 25*time.Second {
		t.Errorf("last chunk end = %v", chunks[2].EndTime)
	}
}

func TestChunkerRejectsZeroDuration(t *testing.T) {
	chunker := &Chunker{}
	if _, err := chunker.Split(context.Background(), "x.mp3", 0, t.TempDir()); err == nil {
		t.Error("expected error for zero chunk duration")
	}
}
