// Package conversation owns the client-side conversation state: the
// current session identity, the session list, the transcript, the
// selected-document working set and the active filters. It is the sole
// caller of the upstream transport boundary.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scholarchat/gateway/internal/citation"
	"github.com/scholarchat/gateway/internal/filter"
	"github.com/scholarchat/gateway/internal/model/chat"
	"github.com/scholarchat/gateway/internal/search"
)

var (
	// ErrEmptyQuery rejects a send whose text is empty after trimming.
	ErrEmptyQuery = errors.New("query is empty")
	// ErrBusy rejects an operation that would overlap an in-flight one.
	ErrBusy = errors.New("another request is in flight")
)

// highlightDuration is how long a citation anchor stays emphasized after
// a reveal before the clear event goes out.
const highlightDuration = 2 * time.Second

// Searcher is the transport boundary to the document-search API.
type Searcher interface {
	ListSessions(ctx context.Context, limit int) ([]chat.Session, error)
	SessionDetail(ctx context.Context, id int64) (search.SessionDetail, error)
	Send(ctx context.Context, payload search.QueryPayload) (search.QueryResponse, error)
}

// Options tunes controller timeouts and limits.
type Options struct {
	SendTimeout  time.Duration
	FetchTimeout time.Duration
	SessionLimit int
}

func (o Options) withDefaults() Options {
	if o.SendTimeout <= 0 {
		o.SendTimeout = 60 * time.Second
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 15 * time.Second
	}
	if o.SessionLimit <= 0 {
		o.SessionLimit = 50
	}
	return o
}

// Snapshot is a point-in-time copy of the controller state for views.
type Snapshot struct {
	SessionID       *int64                  `json:"session_id"`
	Sessions        []chat.Session          `json:"sessions"`
	Transcript      []chat.Message          `json:"transcript"`
	WorkingSet      []chat.SelectedDocument `json:"working_set"`
	Filters         chat.ActiveFilters      `json:"filters"`
	SessionsLoading bool                    `json:"sessions_loading"`
	SessionLoading  bool                    `json:"session_loading"`
	Sending         bool                    `json:"sending"`
}

// Controller is the conversation state machine. All mutations run under
// one mutex; the send and load transactions release it only across their
// single upstream call, so no other controller operation interleaves
// mid-transaction. The sending flag is the sole guard against overlapping
// sends and is cleared on every exit path.
type Controller struct {
	searcher Searcher
	sink     Sink
	log      *zap.Logger
	opts     Options

	mu        sync.Mutex
	sessionID *int64
	sessions  []chat.Session
	entries   transcript
	working   []chat.SelectedDocument
	filters   chat.ActiveFilters

	sessionsLoading bool
	sessionLoading  bool
	sending         bool

	highlightTimer *time.Timer
	highlightGen   uint64
	highlightTTL   time.Duration
}

// New builds a controller. A nil sink discards events.
func New(searcher Searcher, sink Sink, log *zap.Logger, opts Options) *Controller {
	if sink == nil {
		sink = NopSink{}
	}
	return &Controller{
		searcher:     searcher,
		sink:         sink,
		log:          log,
		opts:         opts.withDefaults(),
		highlightTTL: highlightDuration,
	}
}

// emit is called with c.mu held.
func (c *Controller) emit(event Event) {
	c.sink.Publish(event)
}

// Snapshot returns a consistent copy of the whole state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Sessions:        append([]chat.Session(nil), c.sessions...),
		Transcript:      c.entries.copy(),
		WorkingSet:      append([]chat.SelectedDocument(nil), c.working...),
		Filters:         c.filters,
		SessionsLoading: c.sessionsLoading,
		SessionLoading:  c.sessionLoading,
		Sending:         c.sending,
	}
	if c.sessionID != nil {
		id := *c.sessionID
		snap.SessionID = &id
	}
	return snap
}

// StartNewChat unbinds the session, clears the transcript and working set
// and resets filters. No network call; idempotent. Rejected while a send
// or a session load is in flight: an answer must not land in a
// conversation the user already abandoned, and a completing load must not
// replace a transcript that was just reset.
func (c *Controller) StartNewChat() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sending || c.sessionLoading {
		return ErrBusy
	}
	c.sessionID = nil
	c.entries.reset()
	c.working = nil
	c.filters = chat.ActiveFilters{}
	c.emit(Event{Type: EventTranscriptReset})
	return nil
}

// SelectSession points the controller at an existing session and loads
// its transcript. On failure the controller rolls back to the unbound
// state: it never stays pointed at a session whose content failed to
// load.
func (c *Controller) SelectSession(ctx context.Context, id int64) error {
	c.mu.Lock()
	if c.sending || c.sessionLoading {
		c.mu.Unlock()
		return ErrBusy
	}
	c.sessionID = &id
	c.working = nil
	c.sessionLoading = true
	prevLen := c.entries.len()
	c.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()
	detail, err := c.searcher.SessionDetail(fetchCtx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionLoading = false

	if err != nil {
		c.log.Error("session load failed", zap.Int64("session_id", id), zap.Error(err))
		c.sessionID = nil
		c.entries.reset()
		c.emit(Event{Type: EventError, Error: fmt.Sprintf("failed to load session %d: %v", id, err)})
		c.emit(Event{Type: EventTranscriptReset})
		return err
	}

	entries := make([]chat.Message, 0, len(detail.Messages))
	for _, m := range detail.Messages {
		entries = append(entries, m.ToMessage())
	}
	c.entries.replace(entries)
	c.emit(Event{Type: EventTranscriptReplace, Transcript: c.entries.copy()})
	c.revealAfterChange(prevLen)
	return nil
}

// RefreshSessions replaces the session list wholesale. Failures degrade
// to an empty list so the sidebar shows "no sessions" instead of stale or
// partial data; no user-visible error is raised.
func (c *Controller) RefreshSessions(ctx context.Context) {
	c.mu.Lock()
	if c.sessionsLoading {
		c.mu.Unlock()
		return
	}
	c.sessionsLoading = true
	limit := c.opts.SessionLimit
	c.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, c.opts.FetchTimeout)
	defer cancel()
	sessions, err := c.searcher.ListSessions(fetchCtx, limit)
	if err != nil {
		c.log.Warn("session list refresh failed", zap.Error(err))
		sessions = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionsLoading = false
	c.sessions = sessions
	c.emit(Event{Type: EventSessions, Sessions: append([]chat.Session(nil), sessions...)})
}

// ToggleDocument adds the document to the working set, or removes it when
// already present. Membership is keyed by id; insertion order is kept for
// display.
func (c *Controller) ToggleDocument(id, title string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, doc := range c.working {
		if doc.ID == id {
			c.working = append(c.working[:i], c.working[i+1:]...)
			return
		}
	}
	c.working = append(c.working, chat.SelectedDocument{ID: id, Title: title})
}

// RemoveDocument drops the document from the working set. Reachable from
// the chip affordance even when the document no longer appears in any
// reference list; removing an absent id is a no-op.
func (c *Controller) RemoveDocument(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, doc := range c.working {
		if doc.ID == id {
			c.working = append(c.working[:i], c.working[i+1:]...)
			return
		}
	}
}

// UpdateFilters replaces the active filter state wholesale. Validation
// happens at send time in the filter compiler, not here.
func (c *Controller) UpdateFilters(filters chat.ActiveFilters) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filters = filters
}

// SendQuery runs the core transaction: optimistic user entry, compiled
// payload, one upstream call, reconciliation by append. On failure the
// optimistic entry stays (marked failed) so the question is never
// silently lost.
func (c *Controller) SendQuery(ctx context.Context, text string) (chat.Message, error) {
	query := strings.TrimSpace(text)
	if query == "" {
		return chat.Message{}, ErrEmptyQuery
	}

	c.mu.Lock()
	if c.sending || c.sessionLoading {
		c.mu.Unlock()
		return chat.Message{}, ErrBusy
	}

	userEntry := chat.Message{
		ID:        "user-" + uuid.NewString(),
		Role:      chat.RoleUser,
		Content:   query,
		CreatedAt: time.Now().UTC(),
	}
	c.entries.append(userEntry)
	c.sending = true
	c.emit(Event{Type: EventTranscriptAppend, Entry: &userEntry})

	wasUnbound := c.sessionID == nil
	payload := search.QueryPayload{
		Query:    query,
		Fragment: filter.Compile(c.filters, time.Now().Year()),
	}
	if c.sessionID != nil {
		id := *c.sessionID
		payload.SessionID = &id
	}
	if len(c.working) > 0 {
		ids := make([]string, len(c.working))
		for i, doc := range c.working {
			ids[i] = doc.ID
		}
		payload.SelectedPaperIDs = ids
	}
	c.mu.Unlock()

	sendCtx, cancel := context.WithTimeout(ctx, c.opts.SendTimeout)
	defer cancel()
	resp, err := c.searcher.Send(sendCtx, payload)

	// Single reacquire point: sending is released on both outcomes.
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sending = false

	if err != nil {
		c.log.Error("send failed", zap.Error(err))
		c.entries.markFailed(userEntry.ID)
		c.emit(Event{Type: EventError, Error: sendErrorText(err)})
		return chat.Message{}, err
	}

	if wasUnbound {
		id := resp.SessionID
		c.sessionID = &id
		c.log.Info("session bound", zap.Int64("session_id", id))
		// Sidebar refresh is fire-and-forget: its failure does not roll
		// back the answer just received.
		go c.RefreshSessions(context.WithoutCancel(ctx))
	}

	answer := chat.Message{
		ID:         fmt.Sprintf("assistant-%d", resp.MessageID),
		Role:       chat.RoleAssistant,
		Content:    resp.AIResponse,
		CreatedAt:  time.Now().UTC(),
		References: resp.References,
	}
	if answer.References == nil {
		answer.References = []chat.Reference{}
	}

	prevLen := c.entries.len()
	c.entries.append(answer)
	c.working = nil
	c.emit(Event{Type: EventTranscriptAppend, Entry: &answer})
	c.revealAfterChange(prevLen)
	return answer, nil
}

// RevealCitation resolves marker n within the given assistant entry to
// its reference, emits a highlight event and schedules the clear two
// seconds later. A newer reveal supersedes a pending clear. Unresolvable
// markers silently no-op.
func (c *Controller) RevealCitation(entryID string, marker int) (chat.Reference, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.find(entryID)
	if !ok || entry.Role != chat.RoleAssistant {
		return chat.Reference{}, false
	}
	ref, ok := citation.Resolve(entry.References, marker)
	if !ok {
		return chat.Reference{}, false
	}

	if c.highlightTimer != nil {
		c.highlightTimer.Stop()
	}
	c.highlightGen++
	gen := c.highlightGen
	highlight := &Highlight{EntryID: entryID, Marker: marker, PaperID: ref.PaperID}
	c.emit(Event{Type: EventHighlight, Highlight: highlight})
	c.highlightTimer = time.AfterFunc(c.highlightTTL, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		// Stop cannot help once the timer has fired and the callback is
		// waiting on the lock; a superseded reveal must not clear the
		// newer highlight.
		if c.highlightGen != gen {
			return
		}
		c.emit(Event{Type: EventHighlightClear, Highlight: highlight})
	})
	return ref, true
}

// revealAfterChange is called with c.mu held after a transcript change.
func (c *Controller) revealAfterChange(prevLen int) {
	last, ok := c.entries.last()
	if !ok {
		return
	}
	directive, ok := scrollTarget(prevLen, c.entries.len(), last.Role, c.sessionLoading)
	if !ok {
		return
	}
	c.emit(Event{Type: EventReveal, Reveal: &directive})
}

func sendErrorText(err error) string {
	if errors.Is(err, search.ErrTimeout) {
		return "the assistant took too long to answer; please try again"
	}
	var apiErr *search.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return fmt.Sprintf("failed to send message: %v", err)
}
