package subtitle

import (
	"fmt"
	"time"
)

// Issue is one structural problem found in a document.
type Issue struct {
	Index   int
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("entry %d: %s", i.Index, i.Message)
}

// Check reports structural problems; an empty result means the document is
// well formed.
func Check(doc *Document) []Issue {
	var issues []Issue
	if doc == nil {
		return issues
	}

	for i, entry := range doc.Entries {
		if entry.Index != i+1 {
			issues = append(issues, Issue{
				Index:   entry.Index,
				Message: fmt.Sprintf("out of sequence, expected %d", i+1),
			})
		}
		if entry.End < entry.Start {
			issues = append(issues, Issue{
				Index:   entry.Index,
				Message: "ends before it starts",
			})
		}
		if entry.Text == "" {
			issues = append(issues, Issue{Index: entry.Index, Message: "empty text"})
		}
		if i > 0 && entry.Start < doc.Entries[i-1].Start {
			issues = append(issues, Issue{
				Index:   entry.Index,
				Message: "starts before the previous entry",
			})
		}
	}

	return issues
}

// Duration is the end time of the latest entry.
func (d *Document) Duration() (last time.Duration) {
	for _, entry := range d.Entries {
		if entry.End > last {
			last = entry.End
		}
	}
	return last
}
