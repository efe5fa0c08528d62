package search

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/scholarchat/gateway/internal/filter"
	"github.com/scholarchat/gateway/internal/model/chat"
)

// QueryPayload is the body of an upstream send-query call. SessionID is
// nil for an unbound conversation and must be serialized as an explicit
// null, never omitted. SelectedPaperIDs is omitted entirely when the
// working set is empty.
type QueryPayload struct {
	Query            string   `json:"query"`
	SessionID        *int64   `json:"session_id"`
	SelectedPaperIDs []string `json:"selected_paper_ids,omitempty"`
	filter.Fragment
}

// QueryResponse is a successful send-query answer. Metadata is opaque to
// the client and never inspected.
type QueryResponse struct {
	SessionID  int64            `json:"session_id"`
	MessageID  int64            `json:"message_id"`
	AIResponse string           `json:"ai_response"`
	References []chat.Reference `json:"references"`
	Metadata   json.RawMessage  `json:"metadata"`
}

// APIMessage is a transcript entry as the upstream returns it. Entry ids
// are numeric server-side and get coerced into the client's string
// identifier space on load.
type APIMessage struct {
	ID         int64            `json:"id"`
	Role       chat.Role        `json:"role"`
	Content    string           `json:"content"`
	CreatedAt  string           `json:"created_at"`
	References []chat.Reference `json:"references"`
}

// SessionDetail carries the full transcript of one session.
type SessionDetail struct {
	ID       int64        `json:"id"`
	Title    string       `json:"title"`
	Messages []APIMessage `json:"messages"`
}

// ToMessage converts an upstream entry to the client transcript form.
func (m APIMessage) ToMessage() chat.Message {
	return chat.Message{
		ID:         strconv.FormatInt(m.ID, 10),
		Role:       m.Role,
		Content:    m.Content,
		CreatedAt:  parseTimestamp(m.CreatedAt),
		References: m.References,
	}
}

// parseTimestamp accepts the timestamp shapes the upstream emits. An
// unparseable value degrades to the zero time rather than failing the
// whole session load.
func parseTimestamp(raw string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}
