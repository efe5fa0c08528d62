package conversation

import "github.com/scholarchat/gateway/internal/model/chat"

// Event types pushed to connected views after state changes.
const (
	EventTranscriptReset   = "transcript_reset"
	EventTranscriptReplace = "transcript_replace"
	EventTranscriptAppend  = "transcript_append"
	EventSessions          = "sessions"
	EventReveal            = "reveal"
	EventError             = "error"
	EventHighlight         = "highlight"
	EventHighlightClear    = "highlight_clear"
)

// Highlight marks one citation anchor for transient visual emphasis.
type Highlight struct {
	EntryID string `json:"entry_id"`
	Marker  int    `json:"marker"`
	PaperID string `json:"paper_id"`
}

// Event is one state-change notification.
type Event struct {
	Type       string         `json:"type"`
	Entry      *chat.Message  `json:"entry,omitempty"`
	Transcript []chat.Message `json:"transcript,omitempty"`
	Sessions   []chat.Session `json:"sessions,omitempty"`
	Reveal     *Directive     `json:"reveal,omitempty"`
	Error      string         `json:"error,omitempty"`
	Highlight  *Highlight     `json:"highlight,omitempty"`
}

// Sink receives controller events. Publish runs under the controller's
// lock and must not block.
type Sink interface {
	Publish(Event)
}

// NopSink discards events; useful when no view is attached.
type NopSink struct{}

func (NopSink) Publish(Event) {}
