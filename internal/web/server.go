// Package web serves the browser upload page and a small JSON API over the
// job history.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"

	"github.com/mgpai22/autosub/internal/ffmpeg"
	"github.com/mgpai22/autosub/internal/job"
	"github.com/mgpai22/autosub/internal/logging"
	"github.com/mgpai22/autosub/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

// Runner executes one generation; *job.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, req job.Request) (*job.Result, error)
	Busy() bool
}

// JobStore is the read side of the job history; *store.Store satisfies it.
type JobStore interface {
	Get(ctx context.Context, id string) (*store.Job, error)
	List(ctx context.Context, limit int) ([]*store.Job, error)
	Stats(ctx context.Context) (map[store.Status]int, error)
}

// Options configures the server.
type Options struct {
	ListenAddr     string
	MaxUploadBytes int64
	LockPath       string

	// OnListen, when set, is called with the bound address once the lock is
	// held and the listener is open.
	OnListen func(addr string)

	// form defaults
	Engine    string
	ModelSize string
	Language  string
	Format    string
}

// Server is the HTTP front end.
type Server struct {
	opts   Options
	runner Runner
	jobs   JobStore
	logger *logging.Logger
	tmpl   *template.Template
	mux    *http.ServeMux

	// ffmpegStatus is replaceable so tests do not depend on the host.
	ffmpegStatus func(ctx context.Context) ffmpeg.Status

	lock     *flock.Flock
	server   *http.Server
	mu       sync.Mutex
	listener net.Listener
}

// New builds a server; it does not listen until ListenAndServe.
func New(opts Options, runner Runner, jobs JobStore, logger *logging.Logger) (*Server, error) {
	if runner == nil || jobs == nil {
		return nil, errors.New("web server requires a runner and a job store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	tmpl, err := template.New("").Funcs(template.FuncMap{
		"ago":      humanize.Time,
		"bytes":    humanBytes,
		"duration": formatDuration,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	s := &Server{
		opts:         opts,
		runner:       runner,
		jobs:         jobs,
		logger:       logger.Named("web"),
		tmpl:         tmpl,
		mux:          http.NewServeMux(),
		ffmpegStatus: ffmpeg.Probe,
	}

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /generate", s.handleGenerate)
	s.mux.HandleFunc("GET /jobs/{id}/download", s.handleDownload)
	s.mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	s.mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	return s, nil
}

// Handler exposes the routes without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe takes the data-dir lock, serves until ctx is cancelled, then
// shuts down gracefully and releases the lock.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.opts.LockPath != "" {
		s.lock = flock.New(s.opts.LockPath)
		ok, err := s.lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return fmt.Errorf("another autosub server is already using %s", s.opts.LockPath)
		}
		defer func() {
			if err := s.lock.Unlock(); err != nil {
				s.logger.Warnw("failed to release server lock", "error", err)
			}
		}()
	}

	listener, err := net.Listen("tcp", s.opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	// transcription runs inside the POST, so writes are not time-limited.
	// Request contexts derive from ctx so shutdown reaches running jobs.
	s.server = &http.Server{
		Handler:           s.mux,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.Infow("web server listening", "address", s.Addr())
	if s.opts.OnListen != nil {
		s.opts.OnListen(s.Addr())
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.shutdown()
	s.logger.Infow("web server stopped")
	return nil
}

// shutdown stops accepting requests and waits for in-flight ones. A running
// job has already seen its context cancelled; it is waited for so its temp
// files and job record are settled before the caller closes the store.
func (s *Server) shutdown() {
	for {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := s.server.Shutdown(shutdownCtx)
		cancel()
		if err == nil {
			return
		}
		if !errors.Is(err, context.DeadlineExceeded) || !s.runner.Busy() {
			s.logger.Warnw("graceful shutdown failed", "error", err)
			_ = s.server.Close()
			return
		}
		s.logger.Warnw("waiting for running job to stop", "error", err)
	}
}

// Addr is the bound address once listening, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.ListenAddr
}

func humanBytes(n int64) string {
	if n <= 0 {
		return "unlimited"
	}
	return humanize.IBytes(uint64(n))
}

func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}
