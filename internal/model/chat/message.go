package chat

import "time"

// Role identifies the author of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the active conversation transcript. Ordering is
// insertion order; entries are never reordered once appended.
type Message struct {
	ID         string      `json:"id"`
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	CreatedAt  time.Time   `json:"created_at"`
	References []Reference `json:"references,omitempty"`
	// Failed marks an optimistic user entry whose send never got an answer.
	Failed bool `json:"failed,omitempty"`
}

// Reference is a retrievable record cited by an assistant entry. Immutable
// once attached; PaperID joins it to the selected-document working set.
type Reference struct {
	Rank           int     `json:"rank"`
	PaperID        string  `json:"paper_id"`
	Title          string  `json:"title"`
	Authors        string  `json:"authors"`
	Year           int     `json:"year"`
	Type           string  `json:"type,omitempty"`
	Faculty        string  `json:"faculty,omitempty"`
	Department     string  `json:"department,omitempty"`
	Abstract       string  `json:"abstract"`
	Keywords       string  `json:"keywords,omitempty"`
	URL            string  `json:"url"`
	RelevanceScore float64 `json:"relevance_score"`
}
