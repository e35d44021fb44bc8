package job

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/mgpai22/autosub/internal/ffmpeg"
	"github.com/mgpai22/autosub/internal/media"
)

// Hint suggests a remedy for a failed run, or returns "" when nothing
// specific applies.
func Hint(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())

	switch {
	case errors.Is(err, ErrBusy):
		return "Another video is being processed. Try again when it finishes."
	case errors.Is(err, media.ErrUnsupportedFile):
		return "Upload a video file of type " + media.AllowedList() + "."
	case errors.Is(err, ffmpeg.ErrFFmpegUnavailable):
		return "Install ffmpeg and make sure it is on PATH, or set AUTOSUB_FFMPEG_PATH and AUTOSUB_FFPROBE_PATH."
	case errors.Is(err, exec.ErrNotFound) && strings.Contains(msg, "whisper"):
		return "The whisper command was not found. Install it with `pip install -U openai-whisper` or set transcribe.whisper_binary."
	case errors.Is(err, context.DeadlineExceeded):
		return "Transcription took too long. Try a smaller model or raise transcribe.timeout_seconds."
	case strings.Contains(msg, "openai_api_key"):
		return "Set OPENAI_API_KEY in the environment or a .env file."
	case strings.Contains(msg, "gemini_api_key"):
		return "Set GEMINI_API_KEY in the environment or a .env file."
	case strings.Contains(msg, "out of memory"), strings.Contains(msg, "signal: killed"):
		return "The model ran out of memory. Try a smaller model."
	case strings.Contains(msg, "request body too large"):
		return "The upload exceeds the configured size limit."
	}
	return ""
}
