package subtitle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// writes a document to disk in a fixed format
type FileWriter struct {
	Format Format
}

func NewWriter(format Format) (Writer, error) {
	switch format {
	case FormatSRT, FormatVTT:
		return &FileWriter{Format: format}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// writes the document, creating parent directories as needed
func (w *FileWriter) Write(doc *Document, path string) error {
	content, err := doc.Render(w.Format)
	if err != nil {
		return err
	}

	if err := ensureDir(path); err != nil {
		return err
	}

	return os.WriteFile(path, []byte(content), 0644)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0755)
}

// parses a user supplied format name
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "srt":
		return FormatSRT, nil
	case "vtt", "webvtt":
		return FormatVTT, nil
	default:
		return "", fmt.Errorf("unsupported format %q: use srt or vtt", name)
	}
}

// subtitle format based on file extension
func GetFormatFromExtension(path string) Format {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".vtt":
		return FormatVTT
	default:
		return FormatSRT
	}
}

// file extension for a format
func GetExtensionForFormat(format Format) string {
	switch format {
	case FormatVTT:
		return ".vtt"
	default:
		return ".srt"
	}
}

// MIME type used when offering a document for download
func ContentType(format Format) string {
	switch format {
	case FormatVTT:
		return "text/vtt; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}
