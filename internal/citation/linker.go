// Package citation links inline [n] markers in assistant text to the
// entry's own reference list. Citation numbers are positional: marker [n]
// points at the n-th reference of the entry that contains it, never at a
// paper id or any global numbering.
package citation

import (
	"regexp"
	"strconv"

	"github.com/scholarchat/gateway/internal/model/chat"
)

var markerPattern = regexp.MustCompile(`\[(\d+)\]`)

// Segment is one run of assistant text. Number is the 1-based citation
// number for marker segments and 0 for literal text. Linked reports
// whether the marker resolves into the entry's reference list; unlinked
// markers still render as their literal bracketed text.
type Segment struct {
	Text   string `json:"text"`
	Number int    `json:"number,omitempty"`
	Linked bool   `json:"linked,omitempty"`
}

// Split cuts text around citation markers. refCount is the length of the
// entry's reference list and bounds which markers are navigable.
func Split(text string, refCount int) []Segment {
	matches := markerPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		if text == "" {
			return nil
		}
		return []Segment{{Text: text}}
	}

	segments := make([]Segment, 0, len(matches)*2+1)
	last := 0
	for _, m := range matches {
		if m[0] > last {
			segments = append(segments, Segment{Text: text[last:m[0]]})
		}
		n, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			// Digits too long to fit an int; keep the marker as plain text.
			segments = append(segments, Segment{Text: text[m[0]:m[1]]})
		} else {
			segments = append(segments, Segment{
				Text:   text[m[0]:m[1]],
				Number: n,
				Linked: n >= 1 && n <= refCount,
			})
		}
		last = m[1]
	}
	if last < len(text) {
		segments = append(segments, Segment{Text: text[last:]})
	}
	return segments
}

// Resolve returns the reference marker n points at, or false when the
// marker falls outside the list. Out-of-range markers are not an error;
// the reveal action simply no-ops.
func Resolve(refs []chat.Reference, n int) (chat.Reference, bool) {
	if n < 1 || n > len(refs) {
		return chat.Reference{}, false
	}
	return refs[n-1], true
}
