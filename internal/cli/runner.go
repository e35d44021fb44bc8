package cli

import (
	"context"
	"time"

	"github.com/mgpai22/autosub/internal/job"
	"github.com/mgpai22/autosub/internal/store"
	"github.com/mgpai22/autosub/internal/transcribe"
)

func openStore(ctx context.Context) (*store.Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return store.Open(ctx, cfg.DatabasePath())
}

// newRunner wires a job runner from the loaded config. st may be nil.
func newRunner(st *store.Store, defaults transcribe.Options) *job.Runner {
	keys := map[transcribe.Provider]string{
		transcribe.ProviderOpenAI: cfg.Transcribe.OpenAIAPIKey,
		transcribe.ProviderGemini: cfg.Transcribe.GeminiAPIKey,
	}
	if defaults.WhisperBinary == "" {
		defaults.WhisperBinary = cfg.Transcribe.WhisperBinary
	}

	opts := []job.Option{
		job.WithLogger(logger.Named("job")),
		job.WithWorkDir(cfg.WorkDir),
		job.WithTimeout(time.Duration(cfg.Transcribe.TimeoutSeconds) * time.Second),
		job.WithTranscribeOptions(defaults),
		job.WithTranscriberFactory(func(ctx context.Context, p transcribe.Provider, o transcribe.Options) (transcribe.Transcriber, error) {
			if o.Model == "" {
				o.Model = hostedModel(p)
			}
			return transcribe.Factory(ctx, p, keys[p], o)
		}),
	}
	if st != nil {
		opts = append(opts, job.WithStore(st))
	}
	return job.NewRunner(keys, opts...)
}

func hostedModel(p transcribe.Provider) string {
	switch p {
	case transcribe.ProviderOpenAI:
		return cfg.Transcribe.OpenAIModel
	case transcribe.ProviderGemini:
		return cfg.Transcribe.GeminiModel
	default:
		return ""
	}
}
