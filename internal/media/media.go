// Package media wraps ffmpeg for audio extraction, probing and chunking,
// and classifies input files by extension.
package media

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFile is returned for uploads outside the allowed types.
var ErrUnsupportedFile = errors.New("unsupported file type")

// UploadExtensions are the container types the web uploader accepts.
var UploadExtensions = []string{".mp4", ".mkv", ".avi", ".mov"}

var videoExts = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
	".mpeg": true,
	".mpg":  true,
	".3gp":  true,
}

var audioExts = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".aac":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
	".wma":  true,
	".aiff": true,
}

// checks if the file is a video based on extension
func IsVideoFile(path string) bool {
	return videoExts[strings.ToLower(filepath.Ext(path))]
}

// checks if the file is an audio file based on extension
func IsAudioFile(path string) bool {
	return audioExts[strings.ToLower(filepath.Ext(path))]
}

// checks if the file is either audio or video
func IsMediaFile(path string) bool {
	return IsAudioFile(path) || IsVideoFile(path)
}

// IsUploadAllowed reports whether name carries one of UploadExtensions.
func IsUploadAllowed(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range UploadExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// CheckUpload returns ErrUnsupportedFile for names outside UploadExtensions.
func CheckUpload(name string) error {
	if IsUploadAllowed(name) {
		return nil
	}
	ext := filepath.Ext(name)
	if ext == "" {
		ext = "(none)"
	}
	return fmt.Errorf("%w %s: allowed types are %s", ErrUnsupportedFile, ext, AllowedList())
}

// AllowedList renders UploadExtensions without dots, e.g. "mp4, mkv, avi, mov".
func AllowedList() string {
	names := make([]string, len(UploadExtensions))
	for i, ext := range UploadExtensions {
		names[i] = strings.TrimPrefix(ext, ".")
	}
	return strings.Join(names, ", ")
}
