package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mgpai22/autosub/internal/media"
	"github.com/mgpai22/autosub/internal/subtitle"
)

// OpenAITranscriber sends audio to the hosted whisper endpoints.
type OpenAITranscriber struct {
	client   openai.Client
	model    string
	options  Options
	duration durationFunc
}

// verbose_json body shared by the transcription and translation endpoints
type verboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func NewOpenAITranscriber(
	ctx context.Context,
	apiKey string,
	opts Options,
) (*OpenAITranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required (set OPENAI_API_KEY)")
	}

	model := opts.Model
	if model == "" {
		model = "whisper-1"
	}

	return &OpenAITranscriber{
		client:   openai.NewClient(option.WithAPIKey(apiKey)),
		model:    model,
		options:  opts,
		duration: defaultDuration(),
	}, nil
}

func (t *OpenAITranscriber) Name() string {
	return "openai:" + t.model
}

// Transcribe uploads one audio file. With an English transcript language the
// translation endpoint is used instead.
func (t *OpenAITranscriber) Transcribe(
	ctx context.Context,
	audioPath string,
) (*Result, error) {
	file, err := os.Open(audioPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("audio file not found: %s", audioPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	duration, _ := t.duration(ctx, audioPath)

	translate := translatesToEnglish(t.options.TranscriptLanguage)
	raw, text, err := t.request(ctx, file, translate)
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	segments, language, err := decodeVerbose(raw, duration)
	if err != nil {
		segments = fallbackSegment(text, duration)
	}
	switch {
	case translate:
		language = "en"
	case language == "":
		language = t.options.Language
	}

	return &Result{
		Segments: segments,
		Language: language,
		Duration: duration,
	}, nil
}

// request returns the raw verbose_json body and the plain text field.
func (t *OpenAITranscriber) request(ctx context.Context, file io.Reader, translate bool) (string, string, error) {
	if translate {
		params := openai.AudioTranslationNewParams{
			File:           file,
			Model:          openai.AudioModel(t.model),
			ResponseFormat: openai.AudioTranslationNewParamsResponseFormatVerboseJSON,
		}
		if t.options.Prompt != "" {
			params.Prompt = openai.String(t.options.Prompt)
		}
		resp, err := t.client.Audio.Translations.New(ctx, params)
		if err != nil {
			return "", "", err
		}
		return resp.RawJSON(), resp.Text, nil
	}

	params := openai.AudioTranscriptionNewParams{
		File:                   file,
		Model:                  openai.AudioModel(t.model),
		ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"segment"},
	}
	if t.options.Language != "" {
		params.Language = openai.String(t.options.Language)
	}
	if t.options.Prompt != "" {
		params.Prompt = openai.String(t.options.Prompt)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", "", err
	}
	return resp.RawJSON(), resp.Text, nil
}

func fallbackSegment(text string, duration time.Duration) []subtitle.Segment {
	return []subtitle.Segment{{
		Start: 0,
		End:   duration.Seconds(),
		Text:  strings.TrimSpace(text),
	}}
}

// decodeVerbose turns a verbose_json body into segments and the detected
// language. Blank segments are dropped; a body with text but no segments
// becomes one segment spanning the reported (or fallback) duration.
func decodeVerbose(raw string, fallback time.Duration) ([]subtitle.Segment, string, error) {
	if raw == "" {
		return nil, "", fmt.Errorf("empty response")
	}

	var resp verboseResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, "", fmt.Errorf("failed to parse verbose_json response: %w", err)
	}

	if len(resp.Segments) == 0 {
		if strings.TrimSpace(resp.Text) == "" {
			return nil, "", fmt.Errorf("no segments or text in response")
		}
		if resp.Duration > 0 {
			fallback = time.Duration(resp.Duration * float64(time.Second))
		}
		return fallbackSegment(resp.Text, fallback), resp.Language, nil
	}

	segments := make([]subtitle.Segment, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		segments = append(segments, subtitle.Segment{Start: seg.Start, End: seg.End, Text: text})
	}
	return segments, resp.Language, nil
}

// transcribes multiple chunks in parallel
func (t *OpenAITranscriber) TranscribeWithChunks(
	ctx context.Context,
	chunks []media.ChunkInfo,
	concurrency int,
) (*Result, error) {
	return transcribeChunks(ctx, t, chunks, concurrency, t.options.Language)
}

func (t *OpenAITranscriber) Close() error {
	return nil
}
