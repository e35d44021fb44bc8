package subtitle

import (
	"fmt"
	"strings"
)

// NewDocument converts transcription segments to a subtitle document.
//
// Entries are numbered 1..N by input position. Segments are neither sorted
// nor dropped; text is only trimmed of surrounding whitespace.
func NewDocument(segments []Segment) (*Document, error) {
	entries := make([]Entry, 0, len(segments))

	for i, seg := range segments {
		start, err := toDuration(seg.Start)
		if err != nil {
			return nil, fmt.Errorf("segment %d: start: %w", i+1, err)
		}
		end, err := toDuration(seg.End)
		if err != nil {
			return nil, fmt.Errorf("segment %d: end: %w", i+1, err)
		}

		entries = append(entries, Entry{
			Index: i + 1,
			Start: start,
			End:   end,
			Text:  strings.TrimSpace(seg.Text),
		})
	}

	return &Document{Entries: entries}, nil
}

// BuildSRT renders segments as a SubRip document. Empty input yields "".
func BuildSRT(segments []Segment) (string, error) {
	return Build(FormatSRT, segments)
}

// BuildVTT renders segments as a WebVTT document.
func BuildVTT(segments []Segment) (string, error) {
	return Build(FormatVTT, segments)
}

// Build renders segments in the given format.
func Build(format Format, segments []Segment) (string, error) {
	doc, err := NewDocument(segments)
	if err != nil {
		return "", err
	}
	return doc.Render(format)
}

// Render serializes the document in the given format.
func (d *Document) Render(format Format) (string, error) {
	switch format {
	case FormatSRT:
		return d.SRT(), nil
	case FormatVTT:
		return d.VTT(), nil
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

// SRT serializes the document as SubRip.
func (d *Document) SRT() string {
	var sb strings.Builder
	d.writeBlocks(&sb, ',')
	return sb.String()
}

// VTT serializes the document as WebVTT.
func (d *Document) VTT() string {
	var sb strings.Builder
	sb.WriteString("WEBVTT\n\n")
	d.writeBlocks(&sb, '.')
	return sb.String()
}

// String returns the SubRip rendering.
func (d *Document) String() string {
	return d.SRT()
}

func (d *Document) writeBlocks(sb *strings.Builder, sep byte) {
	for i, entry := range d.Entries {
		// index (1-based)
		fmt.Fprintf(sb, "%d\n", i+1)

		// timestamps: 00:00:00,000 --> 00:00:00,000
		fmt.Fprintf(sb, "%s --> %s\n",
			formatClock(entry.Start, sep),
			formatClock(entry.End, sep))

		// text
		sb.WriteString(entry.Text)
		sb.WriteString("\n\n")
	}
}
