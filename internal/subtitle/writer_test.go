package subtitle

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileWriterCreatesParentDirs(t *testing.T) {
	doc, err := NewDocument([]Segment{{Start: 0, End: 1, Text: "hello"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	writer, err := NewWriter(FormatVTT)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "nested", "out.vtt")
	if err := writer.Write(doc, path); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	if string(data) != doc.VTT() {
		t.Errorf("file content = %q, want %q", data, doc.VTT())
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"", FormatSRT, false},
		{"srt", FormatSRT, false},
		{" SRT ", FormatSRT, false},
		{"vtt", FormatVTT, false},
		{"WebVTT", FormatVTT, false},
		{"ass", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatExtensions(t *testing.T) {
	if GetExtensionForFormat(FormatVTT) != ".vtt" {
		t.Error("unexpected VTT extension")
	}
	if GetExtensionForFormat(FormatSRT) != ".srt" {
		t.Error("unexpected SRT extension")
	}
	if GetFormatFromExtension("movie.VTT") != FormatVTT {
		t.Error("expected VTT from .VTT extension")
	}
	if GetFormatFromExtension("movie.txt") != FormatSRT {
		t.Error("expected SRT fallback")
	}
}
