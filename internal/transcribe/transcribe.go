package transcribe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mgpai22/autosub/internal/media"
	"github.com/mgpai22/autosub/internal/subtitle"
)

// transcription result
type Result struct {
	Segments []subtitle.Segment
	Language string
	Duration time.Duration
}

// interface for audio transcription
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*Result, error)
	Name() string
	Close() error
}

// ConcurrentTranscriber can transcribe pre-split chunks in parallel.
type ConcurrentTranscriber interface {
	Transcriber
	TranscribeWithChunks(
		ctx context.Context,
		chunks []media.ChunkInfo,
		concurrency int,
	) (*Result, error)
}

// transcription service provider
type Provider string

const (
	ProviderWhisper Provider = "whisper"
	ProviderOpenAI  Provider = "openai"
	ProviderGemini  Provider = "gemini"
)

// Providers lists the supported engines in display order.
var Providers = []Provider{ProviderWhisper, ProviderOpenAI, ProviderGemini}

// ParseProvider maps a name to a Provider; empty means whisper.
func ParseProvider(name string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return ProviderWhisper, nil
	case ProviderWhisper, ProviderOpenAI, ProviderGemini:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported provider: %s", name)
	}
}

// Remote reports whether the provider uploads audio to a hosted API.
func (p Provider) Remote() bool {
	return p == ProviderOpenAI || p == ProviderGemini
}

// ModelSize is a pretrained whisper checkpoint size.
type ModelSize string

const (
	ModelTiny   ModelSize = "tiny"
	ModelBase   ModelSize = "base"
	ModelSmall  ModelSize = "small"
	ModelMedium ModelSize = "medium"
	ModelLarge  ModelSize = "large"
)

// ModelSizes lists every size, smallest first.
var ModelSizes = []ModelSize{ModelTiny, ModelBase, ModelSmall, ModelMedium, ModelLarge}

// DefaultModelSize balances speed and accuracy on CPU.
const DefaultModelSize = ModelBase

// ParseModelSize validates a model size name; empty means DefaultModelSize.
func ParseModelSize(name string) (ModelSize, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultModelSize, nil
	}
	for _, size := range ModelSizes {
		if string(size) == name {
			return size, nil
		}
	}
	return "", fmt.Errorf("unsupported model size %q (choose tiny, base, small, medium, or large)", name)
}

// transcription options
type Options struct {
	Language           string // Source language of audio, empty to auto-detect
	TranscriptLanguage string // Output language for transcript (default: "native")
	Model              string // Hosted model name (openai, gemini)
	ModelSize          ModelSize
	Prompt             string
	WhisperBinary      string
	WorkDir            string // Scratch space for engine output, empty for os.TempDir
}

// creates transcriber based on provider
func Factory(
	ctx context.Context,
	provider Provider,
	apiKey string,
	opts Options,
) (Transcriber, error) {
	switch provider {
	case ProviderWhisper, "":
		return NewWhisperTranscriber(opts)
	case ProviderGemini:
		return NewGeminiTranscriber(ctx, apiKey, opts)
	case ProviderOpenAI:
		return NewOpenAITranscriber(ctx, apiKey, opts)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// durationFunc measures audio length for results that do not report one.
type durationFunc func(ctx context.Context, path string) (time.Duration, error)

func defaultDuration() durationFunc {
	return media.NewProber().Duration
}

// shifts chunk-relative segment times onto the source timeline
func offsetSegments(segments []subtitle.Segment, offset time.Duration) []subtitle.Segment {
	shift := offset.Seconds()
	adjusted := make([]subtitle.Segment, len(segments))
	for i, seg := range segments {
		adjusted[i] = subtitle.Segment{
			Start: seg.Start + shift,
			End:   seg.End + shift,
			Text:  seg.Text,
		}
	}
	return adjusted
}

// lastEnd is the end of the final segment, used when no duration is known.
func lastEnd(segments []subtitle.Segment) time.Duration {
	if len(segments) == 0 {
		return 0
	}
	return time.Duration(segments[len(segments)-1].End * float64(time.Second))
}
