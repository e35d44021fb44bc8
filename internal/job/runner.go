// Package job runs one upload through extraction, transcription and
// subtitle rendering, and records the outcome.
package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mgpai22/autosub/internal/config"
	"github.com/mgpai22/autosub/internal/logging"
	"github.com/mgpai22/autosub/internal/media"
	"github.com/mgpai22/autosub/internal/store"
	"github.com/mgpai22/autosub/internal/subtitle"
	"github.com/mgpai22/autosub/internal/transcribe"
)

var (
	// ErrBusy is returned while another job holds the single processing slot.
	ErrBusy = errors.New("another job is already running")
	// ErrInvalidRequest wraps bad engine, model or format choices.
	ErrInvalidRequest = errors.New("invalid request")
)

// Store is the persistence the runner needs; *store.Store satisfies it.
type Store interface {
	Create(ctx context.Context, job *store.Job) error
	Finish(ctx context.Context, id string, out store.Outcome) error
	Fail(ctx context.Context, id string, cause error) error
}

// Splitter cuts long audio into chunks; *media.Chunker satisfies it.
type Splitter interface {
	Split(ctx context.Context, audioPath string, chunkDuration time.Duration, outputDir string) ([]media.ChunkInfo, error)
}

// DurationProber measures media length; *media.Prober satisfies it.
type DurationProber interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// TranscriberFactory builds an engine for one run.
type TranscriberFactory func(ctx context.Context, provider transcribe.Provider, opts transcribe.Options) (transcribe.Transcriber, error)

// Request describes one subtitle generation.
type Request struct {
	// Filename is the original upload name; its extension picks the temp suffix.
	Filename string
	// Body is the uploaded content. When nil, Path is read in place.
	Body io.Reader
	Path string

	Provider  transcribe.Provider
	ModelSize transcribe.ModelSize
	Language  string
	Format    subtitle.Format
}

// Result is a finished run.
type Result struct {
	Job      *store.Job
	Document *subtitle.Document
	Output   string
}

// Runner executes requests one at a time.
type Runner struct {
	store          Store
	extractor      media.Extractor
	prober         DurationProber
	splitter       Splitter
	newTranscriber TranscriberFactory
	logger         *logging.Logger

	workDir           string
	timeout           time.Duration
	chunkDuration     time.Duration
	chunkConcurrency  int
	transcribeOptions transcribe.Options

	slot  chan struct{}
	newID func() string
}

// Option customizes a Runner.
type Option func(*Runner)

func WithStore(s Store) Option                 { return func(r *Runner) { r.store = s } }
func WithExtractor(e media.Extractor) Option   { return func(r *Runner) { r.extractor = e } }
func WithProber(p DurationProber) Option       { return func(r *Runner) { r.prober = p } }
func WithSplitter(s Splitter) Option           { return func(r *Runner) { r.splitter = s } }
func WithLogger(l *logging.Logger) Option      { return func(r *Runner) { r.logger = l } }
func WithWorkDir(dir string) Option            { return func(r *Runner) { r.workDir = dir } }
func WithTimeout(d time.Duration) Option       { return func(r *Runner) { r.timeout = d } }
func WithChunkDuration(d time.Duration) Option { return func(r *Runner) { r.chunkDuration = d } }
func WithIDGenerator(f func() string) Option   { return func(r *Runner) { r.newID = f } }

// WithTranscriberFactory replaces engine construction.
func WithTranscriberFactory(f TranscriberFactory) Option {
	return func(r *Runner) { r.newTranscriber = f }
}

// WithTranscribeOptions sets defaults (binary, hosted model names, prompt)
// merged into every request.
func WithTranscribeOptions(opts transcribe.Options) Option {
	return func(r *Runner) { r.transcribeOptions = opts }
}

// NewRunner builds a runner wired to ffmpeg and the transcribe factory.
// apiKeys maps hosted providers to their credentials.
func NewRunner(apiKeys map[transcribe.Provider]string, opts ...Option) *Runner {
	r := &Runner{
		extractor:        media.NewExtractor(),
		prober:           media.NewProber(),
		splitter:         media.NewChunker(),
		logger:           logging.NewNop(),
		workDir:          os.TempDir(),
		chunkDuration:    10 * time.Minute,
		chunkConcurrency: 3,
		slot:             make(chan struct{}, 1),
		newID:            uuid.NewString,
	}
	r.newTranscriber = func(ctx context.Context, provider transcribe.Provider, o transcribe.Options) (transcribe.Transcriber, error) {
		return transcribe.Factory(ctx, provider, apiKeys[provider], o)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Busy reports whether a job currently holds the slot.
func (r *Runner) Busy() bool {
	return len(r.slot) > 0
}

// Run processes req end to end. Every temporary file is removed before it
// returns, whatever the outcome.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	format, err := subtitle.ParseFormat(string(req.Format))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	provider, err := transcribe.ParseProvider(string(req.Provider))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	modelSize, err := transcribe.ParseModelSize(string(req.ModelSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	req.Language, err = config.NormalizeLanguage(req.Language)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if req.Body != nil {
		if err := media.CheckUpload(req.Filename); err != nil {
			return nil, err
		}
	} else if req.Path == "" {
		return nil, fmt.Errorf("%w: no upload body or path", ErrInvalidRequest)
	}

	select {
	case r.slot <- struct{}{}:
	default:
		return nil, ErrBusy
	}
	defer func() { <-r.slot }()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	filename := req.Filename
	if filename == "" {
		filename = filepath.Base(req.Path)
	}

	record := &store.Job{
		ID:       r.newID(),
		Filename: filename,
		Engine:   string(provider),
		Model:    string(modelSize),
		Language: req.Language,
		Format:   string(format),
	}
	logger := r.logger.With("job_id", record.ID, "file", filename)

	if r.store != nil {
		if err := r.store.Create(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to record job: %w", err)
		}
	} else {
		record.Status = store.StatusRunning
		record.CreatedAt = time.Now().UTC()
	}

	started := time.Now()
	logger.Infow("job started", "engine", provider, "model", modelSize, "format", format)

	fail := func(err error) (*Result, error) {
		logger.Errorw("job failed", "error", err, "elapsed", time.Since(started).Round(time.Millisecond))
		record.Status = store.StatusFailed
		record.Error = err.Error()
		if r.store != nil {
			if ferr := r.store.Fail(context.WithoutCancel(ctx), record.ID, err); ferr != nil {
				logger.Warnw("failed to record job failure", "error", ferr)
			}
		}
		return &Result{Job: record}, err
	}

	doc, duration, language, err := r.process(ctx, logger, record.ID, req, provider, modelSize)
	if err != nil {
		return fail(err)
	}

	output, err := doc.Render(format)
	if err != nil {
		return fail(err)
	}

	outcome := store.Outcome{
		Language:  language,
		Entries:   len(doc.Entries),
		Duration:  duration,
		Subtitles: output,
	}
	if r.store != nil {
		if err := r.store.Finish(context.WithoutCancel(ctx), record.ID, outcome); err != nil {
			return fail(fmt.Errorf("failed to record job result: %w", err))
		}
	}

	finished := time.Now().UTC()
	record.Status = store.StatusSucceeded
	record.Entries = outcome.Entries
	record.DurationMS = duration.Milliseconds()
	record.Subtitles = output
	record.FinishedAt = &finished
	if language != "" {
		record.Language = language
	}

	logger.Infow("job complete",
		"entries", outcome.Entries,
		"media_duration", duration.Round(time.Millisecond),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)

	return &Result{Job: record, Document: doc, Output: output}, nil
}

func (r *Runner) process(
	ctx context.Context,
	logger *logging.Logger,
	id string,
	req Request,
	provider transcribe.Provider,
	modelSize transcribe.ModelSize,
) (*subtitle.Document, time.Duration, string, error) {
	if err := os.MkdirAll(r.workDir, 0o755); err != nil {
		return nil, 0, "", fmt.Errorf("failed to create work directory: %w", err)
	}
	workspace, err := os.MkdirTemp(r.workDir, "job-"+id+"-")
	if err != nil {
		return nil, 0, "", fmt.Errorf("failed to create job workspace: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			logger.Warnw("failed to remove job workspace", "path", workspace, "error", err)
		}
	}()

	inputPath := req.Path
	if req.Body != nil {
		inputPath, err = spool(workspace, req.Filename, req.Body)
		if err != nil {
			return nil, 0, "", err
		}
		logger.Debugw("upload spooled", "path", inputPath)
	}

	audioPath, err := r.prepareAudio(ctx, logger, workspace, inputPath, provider)
	if err != nil {
		return nil, 0, "", err
	}

	opts := r.transcribeOptions
	opts.ModelSize = modelSize
	opts.Language = req.Language
	opts.WorkDir = workspace

	transcriber, err := r.newTranscriber(ctx, provider, opts)
	if err != nil {
		return nil, 0, "", fmt.Errorf("failed to create transcriber: %w", err)
	}
	defer transcriber.Close()

	logger.Infow("transcribing", "engine", transcriber.Name())
	result, err := r.transcribe(ctx, logger, workspace, audioPath, transcriber)
	if err != nil {
		return nil, 0, "", err
	}

	doc, err := subtitle.NewDocument(result.Segments)
	if err != nil {
		return nil, 0, "", fmt.Errorf("failed to build subtitles: %w", err)
	}

	return doc, result.Duration, result.Language, nil
}

// spool writes the upload to a temp file named after the original extension.
func spool(dir, filename string, body io.Reader) (string, error) {
	suffix := strings.ToLower(filepath.Ext(filename))
	if suffix == "" {
		suffix = ".mp4"
	}
	f, err := os.CreateTemp(dir, "upload-*"+suffix)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return f.Name(), nil
}

// prepareAudio extracts a mono 16 kHz track. Hosted engines get compressed
// mp3 to stay under upload limits; local whisper reads audio files as is.
func (r *Runner) prepareAudio(
	ctx context.Context,
	logger *logging.Logger,
	workspace, inputPath string,
	provider transcribe.Provider,
) (string, error) {
	if !provider.Remote() && media.IsAudioFile(inputPath) {
		return inputPath, nil
	}

	opts := media.DefaultExtractOptions()
	if provider.Remote() {
		opts = media.CompressedExtractOptions()
	}
	audioPath := filepath.Join(workspace, "audio"+opts.Extension())

	logger.Infow("extracting audio", "format", opts.Format, "sample_rate", opts.SampleRate)
	if err := r.extractor.ExtractAudio(ctx, inputPath, audioPath, opts); err != nil {
		return "", fmt.Errorf("failed to extract audio: %w", err)
	}
	return audioPath, nil
}

func (r *Runner) transcribe(
	ctx context.Context,
	logger *logging.Logger,
	workspace, audioPath string,
	transcriber transcribe.Transcriber,
) (*transcribe.Result, error) {
	concurrent, ok := transcriber.(transcribe.ConcurrentTranscriber)
	if ok && r.splitter != nil && r.prober != nil && r.chunkDuration > 0 {
		duration, err := r.prober.Duration(ctx, audioPath)
		if err == nil && duration > r.chunkDuration {
			chunks, err := r.splitter.Split(ctx, audioPath, r.chunkDuration, filepath.Join(workspace, "chunks"))
			if err != nil {
				return nil, fmt.Errorf("failed to split audio: %w", err)
			}
			logger.Infow("transcribing in chunks", "chunks", len(chunks), "duration", duration.Round(time.Second))
			result, err := concurrent.TranscribeWithChunks(ctx, chunks, r.chunkConcurrency)
			if err != nil {
				return nil, fmt.Errorf("transcription failed: %w", err)
			}
			return result, nil
		}
	}

	return transcriber.Transcribe(ctx, audioPath)
}
