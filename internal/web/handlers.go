package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mgpai22/autosub/internal/ffmpeg"
	"github.com/mgpai22/autosub/internal/job"
	"github.com/mgpai22/autosub/internal/media"
	"github.com/mgpai22/autosub/internal/store"
	"github.com/mgpai22/autosub/internal/subtitle"
	"github.com/mgpai22/autosub/internal/transcribe"
)

const recentJobs = 10

// multipart parts beyond this are spooled to disk by net/http
const formMemory = 32 << 20

type option struct {
	Value    string
	Label    string
	Selected bool
}

type pageData struct {
	Accept         string
	MaxUploadBytes int64
	Models         []option
	Engines        []option
	Formats        []option
	Language       string
	FFmpeg         ffmpeg.Status
	Busy           bool
	Jobs           []*store.Job

	Result  *store.Job
	Preview string
	Error   string
	Hint    string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, s.page(r, s.opts.Engine, s.opts.ModelSize, s.opts.Format, s.opts.Language))
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if s.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	}

	engine := s.opts.Engine
	model := s.opts.ModelSize
	format := s.opts.Format
	language := s.opts.Language

	fail := func(status int, err error) {
		s.logger.Warnw("generate failed", "status", status, "error", err)
		data := s.page(r, engine, model, format, language)
		data.Error = err.Error()
		data.Hint = job.Hint(err)
		s.render(w, r, status, data)
	}

	if err := r.ParseMultipartForm(formMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			fail(http.StatusRequestEntityTooLarge,
				fmt.Errorf("upload is larger than %s", humanBytes(s.opts.MaxUploadBytes)))
			return
		}
		fail(http.StatusBadRequest, fmt.Errorf("failed to read upload: %w", err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	engine = formValue(r, "engine", engine)
	model = formValue(r, "model", model)
	format = formValue(r, "format", format)
	language = strings.TrimSpace(r.FormValue("language"))

	file, header, err := r.FormFile("video")
	if err != nil {
		fail(http.StatusBadRequest, errors.New("choose a video file to upload"))
		return
	}
	defer file.Close()

	result, err := s.runner.Run(r.Context(), job.Request{
		Filename:  header.Filename,
		Body:      file,
		Provider:  transcribe.Provider(engine),
		ModelSize: transcribe.ModelSize(model),
		Language:  language,
		Format:    subtitle.Format(format),
	})
	if err != nil {
		fail(statusFor(err), err)
		return
	}

	data := s.page(r, engine, model, format, language)
	data.Result = result.Job
	data.Preview = preview(result.Output, 12)
	s.render(w, r, http.StatusOK, data)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	record, err := s.jobs.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if record.Status != store.StatusSucceeded {
		http.Error(w, "job has no subtitles", http.StatusConflict)
		return
	}

	format, err := subtitle.ParseFormat(record.Format)
	if err != nil {
		format = subtitle.FormatSRT
	}
	w.Header().Set("Content-Type", subtitle.ContentType(format))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="subtitles%s"`, subtitle.GetExtensionForFormat(format)))
	_, _ = w.Write([]byte(record.Subtitles))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.List(r.Context(), 0)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if jobs == nil {
		jobs = []*store.Job{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	record, err := s.jobs.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.ffmpegStatus(r.Context())
	jobs, err := s.jobs.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"busy":   s.runner.Busy(),
		"ffmpeg": status,
		"jobs":   jobs,
	})
}

func (s *Server) page(r *http.Request, engine, model, format, language string) *pageData {
	data := &pageData{
		Accept:         strings.Join(media.UploadExtensions, ","),
		MaxUploadBytes: s.opts.MaxUploadBytes,
		Language:       language,
		FFmpeg:         s.ffmpegStatus(r.Context()),
		Busy:           s.runner.Busy(),
	}

	if model == "" {
		model = string(transcribe.DefaultModelSize)
	}
	for _, size := range transcribe.ModelSizes {
		data.Models = append(data.Models, option{Value: string(size), Label: string(size), Selected: string(size) == model})
	}

	if engine == "" {
		engine = string(transcribe.ProviderWhisper)
	}
	labels := map[transcribe.Provider]string{
		transcribe.ProviderWhisper: "Whisper (local)",
		transcribe.ProviderOpenAI:  "OpenAI API",
		transcribe.ProviderGemini:  "Gemini API",
	}
	for _, p := range transcribe.Providers {
		data.Engines = append(data.Engines, option{Value: string(p), Label: labels[p], Selected: string(p) == engine})
	}

	if format == "" {
		format = string(subtitle.FormatSRT)
	}
	for _, f := range []subtitle.Format{subtitle.FormatSRT, subtitle.FormatVTT} {
		ext := subtitle.GetExtensionForFormat(f)
		data.Formats = append(data.Formats, option{Value: string(f), Label: ext, Selected: string(f) == format})
	}

	jobs, err := s.jobs.List(r.Context(), recentJobs)
	if err != nil {
		s.logger.Warnw("failed to list recent jobs", "error", err)
	}
	data.Jobs = jobs
	return data
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, data *pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logger.Errorw("failed to render page", "path", r.URL.Path, "error", err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Errorw("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, job.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, media.ErrUnsupportedFile):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, job.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ffmpeg.ErrFFmpegUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func formValue(r *http.Request, key, fallback string) string {
	if v := strings.TrimSpace(r.FormValue(key)); v != "" {
		return v
	}
	return fallback
}

// preview keeps the first n lines of a rendered document for display.
func preview(doc string, n int) string {
	lines := strings.SplitAfterN(doc, "\n", n+1)
	if len(lines) <= n {
		return doc
	}
	return strings.Join(lines[:n], "") + "…"
}
