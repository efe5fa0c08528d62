package chat

// Session is a persisted, server-identified conversation. The upstream
// creates one on the first successful send of a new conversation; the
// client only observes ids, it never fabricates them.
type Session struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Username  string `json:"username,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}
