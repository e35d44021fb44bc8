// Package subtitle turns timed transcription segments into subtitle documents.
//
// Everything here is pure: no I/O outside of Write and ParseSRTFile, no
// logging and no shared state, so every function is safe for concurrent use.
package subtitle

import (
	"time"
)

// represents transcribed audio segment, times in seconds
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// represents single subtitle entry
type Entry struct {
	Index int
	Start time.Duration
	End   time.Duration
	Text  string
}

// represents complete subtitle track
type Document struct {
	Entries []Entry
}

// represents supported subtitle formats
type Format string

const (
	FormatSRT Format = "srt"
	FormatVTT Format = "vtt"
)

// interface for writing subtitles to files
type Writer interface {
	Write(doc *Document, path string) error
}
