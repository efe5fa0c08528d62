package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/scholarchat/gateway/internal/model/chat"
	"github.com/scholarchat/gateway/internal/search"
)

type fakeSearcher struct {
	mu            sync.Mutex
	listCalls     int
	sendCalls     int
	sentPayloads  []search.QueryPayload
	listErr       error
	detailErr     error
	sendErr       error
	detail        search.SessionDetail
	nextSessionID int64
	nextMessageID int64
	references    []chat.Reference
}

func (f *fakeSearcher) ListSessions(_ context.Context, limit int) ([]chat.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return []chat.Session{{ID: 1, Title: "history"}}, nil
}

func (f *fakeSearcher) SessionDetail(_ context.Context, id int64) (search.SessionDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detailErr != nil {
		return search.SessionDetail{}, f.detailErr
	}
	return f.detail, nil
}

func (f *fakeSearcher) Send(_ context.Context, payload search.QueryPayload) (search.QueryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++
	f.sentPayloads = append(f.sentPayloads, payload)
	if f.sendErr != nil {
		return search.QueryResponse{}, f.sendErr
	}
	f.nextMessageID++
	return search.QueryResponse{
		SessionID:  f.nextSessionID,
		MessageID:  f.nextMessageID,
		AIResponse: fmt.Sprintf("answer %d", f.nextMessageID),
		References: f.references,
	}, nil
}

func (f *fakeSearcher) listCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *captureSink) byType(eventType string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func newTestController(f Searcher, sink Sink) *Controller {
	return New(f, sink, zap.NewNop(), Options{
		SendTimeout:  time.Second,
		FetchTimeout: time.Second,
		SessionLimit: 50,
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSendQueryRejectsBlankInput(t *testing.T) {
	fake := &fakeSearcher{nextSessionID: 10}
	ctrl := newTestController(fake, nil)

	for _, input := range []string{"", "   ", "\n\t"} {
		if _, err := ctrl.SendQuery(context.Background(), input); !errors.Is(err, ErrEmptyQuery) {
			t.Fatalf("SendQuery(%q) err = %v, want ErrEmptyQuery", input, err)
		}
	}
	if fake.sendCalls != 0 {
		t.Fatalf("transport invoked %d times for blank input", fake.sendCalls)
	}
	if len(ctrl.Snapshot().Transcript) != 0 {
		t.Fatal("blank input must not mutate the transcript")
	}
}

func TestSendQueryBindsSessionOnce(t *testing.T) {
	fake := &fakeSearcher{nextSessionID: 42}
	ctrl := newTestController(fake, nil)

	if _, err := ctrl.SendQuery(context.Background(), "first question"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	snap := ctrl.Snapshot()
	if snap.SessionID == nil || *snap.SessionID != 42 {
		t.Fatalf("session not adopted: %+v", snap.SessionID)
	}
	waitFor(t, func() bool { return fake.listCallCount() == 1 })

	if _, err := ctrl.SendQuery(context.Background(), "second question"); err != nil {
		t.Fatalf("second send: %v", err)
	}
	snap = ctrl.Snapshot()
	if snap.SessionID == nil || *snap.SessionID != 42 {
		t.Fatalf("adoption must happen at most once, got %+v", snap.SessionID)
	}
	if payload := fake.sentPayloads[1]; payload.SessionID == nil || *payload.SessionID != 42 {
		t.Fatalf("second send must reuse the bound id, payload: %+v", payload.SessionID)
	}

	// No further refresh after the one triggered by adoption.
	time.Sleep(50 * time.Millisecond)
	if got := fake.listCallCount(); got != 1 {
		t.Fatalf("refresh count = %d, want exactly 1", got)
	}
}

func TestSendQueryTranscriptShape(t *testing.T) {
	fake := &fakeSearcher{nextSessionID: 5, references: []chat.Reference{{Rank: 1, PaperID: "p-1", Title: "A"}}}
	ctrl := newTestController(fake, nil)

	answer, err := ctrl.SendQuery(context.Background(), "  what is rag?  ")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if answer.Role != chat.RoleAssistant || len(answer.References) != 1 {
		t.Fatalf("unexpected answer: %+v", answer)
	}

	entries := ctrl.Snapshot().Transcript
	if len(entries) != 2 {
		t.Fatalf("transcript length = %d, want 2", len(entries))
	}
	if entries[0].Role != chat.RoleUser || entries[0].Content != "what is rag?" {
		t.Fatalf("optimistic entry should carry the trimmed text: %+v", entries[0])
	}
	if entries[1].ID != "assistant-1" {
		t.Fatalf("answer id = %q", entries[1].ID)
	}
}

func TestSendQueryFailureKeepsOptimisticEntry(t *testing.T) {
	fake := &fakeSearcher{sendErr: errors.New("boom")}
	sink := &captureSink{}
	ctrl := newTestController(fake, sink)

	if _, err := ctrl.SendQuery(context.Background(), "lost question?"); err == nil {
		t.Fatal("expected send failure")
	}

	snap := ctrl.Snapshot()
	if len(snap.Transcript) != 1 {
		t.Fatalf("transcript length = %d, want the optimistic entry kept", len(snap.Transcript))
	}
	if !snap.Transcript[0].Failed {
		t.Fatal("kept entry should be marked failed")
	}
	if snap.Sending {
		t.Fatal("sending flag must be released on the error path")
	}
	if len(sink.byType(EventError)) != 1 {
		t.Fatal("failure must surface a user-visible error event")
	}

	// The controller stays usable: a retry goes through.
	fake.sendErr = nil
	fake.nextSessionID = 3
	if _, err := ctrl.SendQuery(context.Background(), "retry"); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestSendQueryClearsWorkingSetAndCompilesPayload(t *testing.T) {
	fake := &fakeSearcher{nextSessionID: 9}
	ctrl := newTestController(fake, nil)

	ctrl.ToggleDocument("p-1", "Paper one")
	ctrl.ToggleDocument("p-2", "Paper two")
	year := 2020
	start := 2015
	ctrl.UpdateFilters(chat.ActiveFilters{
		Year:      &year,
		YearRange: chat.YearRange{Start: &start},
	})

	if _, err := ctrl.SendQuery(context.Background(), "q"); err != nil {
		t.Fatalf("send: %v", err)
	}

	payload := fake.sentPayloads[0]
	if len(payload.SelectedPaperIDs) != 2 || payload.SelectedPaperIDs[0] != "p-1" {
		t.Fatalf("working set not compiled: %+v", payload.SelectedPaperIDs)
	}
	if payload.Year != 0 || payload.YearRange == nil || payload.YearRange.Start != 2015 {
		t.Fatalf("year range must win over year: %+v", payload)
	}
	if got := ctrl.Snapshot().WorkingSet; len(got) != 0 {
		t.Fatalf("working set must be cleared after a successful send: %+v", got)
	}
}

func TestSendQueryRejectsOverlap(t *testing.T) {
	fake := &fakeSearcher{nextSessionID: 1}
	ctrl := newTestController(fake, nil)

	// Simulate an in-flight send.
	ctrl.mu.Lock()
	ctrl.sending = true
	ctrl.mu.Unlock()

	if _, err := ctrl.SendQuery(context.Background(), "overlap"); !errors.Is(err, ErrBusy) {
		t.Fatalf("overlapping send err = %v, want ErrBusy", err)
	}
	if err := ctrl.StartNewChat(); !errors.Is(err, ErrBusy) {
		t.Fatalf("StartNewChat during send err = %v, want ErrBusy", err)
	}
	if err := ctrl.SelectSession(context.Background(), 7); !errors.Is(err, ErrBusy) {
		t.Fatalf("SelectSession during send err = %v, want ErrBusy", err)
	}
	if fake.sendCalls != 0 {
		t.Fatal("rejected operations must not reach the transport")
	}
}

// blockingSearcher parks SessionDetail until release is closed, so tests
// can interleave other operations at the load's suspension point.
type blockingSearcher struct {
	fakeSearcher
	started chan struct{}
	release chan struct{}
}

func (b *blockingSearcher) SessionDetail(ctx context.Context, id int64) (search.SessionDetail, error) {
	close(b.started)
	<-b.release
	return b.fakeSearcher.SessionDetail(ctx, id)
}

func TestStartNewChatRejectedDuringSessionLoad(t *testing.T) {
	blocker := &blockingSearcher{
		fakeSearcher: fakeSearcher{detail: search.SessionDetail{
			ID: 7,
			Messages: []search.APIMessage{
				{ID: 100, Role: chat.RoleUser, Content: "q1"},
				{ID: 101, Role: chat.RoleAssistant, Content: "a1"},
				{ID: 102, Role: chat.RoleUser, Content: "q2"},
				{ID: 103, Role: chat.RoleAssistant, Content: "a2"},
			},
		}},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	ctrl := newTestController(blocker, nil)

	done := make(chan error, 1)
	go func() { done <- ctrl.SelectSession(context.Background(), 7) }()
	<-blocker.started

	if err := ctrl.StartNewChat(); !errors.Is(err, ErrBusy) {
		t.Fatalf("StartNewChat during session load err = %v, want ErrBusy", err)
	}

	close(blocker.release)
	if err := <-done; err != nil {
		t.Fatalf("select: %v", err)
	}

	// The load completed against the session it was started for; no
	// unbound id paired with a stale transcript.
	snap := ctrl.Snapshot()
	if snap.SessionID == nil || *snap.SessionID != 7 {
		t.Fatalf("session id = %v, want 7", snap.SessionID)
	}
	if len(snap.Transcript) != 4 {
		t.Fatalf("transcript length = %d, want 4", len(snap.Transcript))
	}

	// Once the load is done the reset goes through.
	if err := ctrl.StartNewChat(); err != nil {
		t.Fatalf("StartNewChat after load: %v", err)
	}
	snap = ctrl.Snapshot()
	if snap.SessionID != nil || len(snap.Transcript) != 0 {
		t.Fatalf("state not reset after load: id=%v len=%d", snap.SessionID, len(snap.Transcript))
	}
}

func TestToggleDocumentSetSemantics(t *testing.T) {
	ctrl := newTestController(&fakeSearcher{}, nil)

	ctrl.ToggleDocument("a", "Alpha")
	ctrl.ToggleDocument("b", "Beta")
	ctrl.ToggleDocument("c", "Gamma")

	got := ctrl.Snapshot().WorkingSet
	if len(got) != 3 {
		t.Fatalf("working set size = %d, want 3", len(got))
	}
	if got[1].Title != "Beta" {
		t.Fatalf("title not preserved: %+v", got[1])
	}

	ctrl.ToggleDocument("b", "Beta")
	got = ctrl.Snapshot().WorkingSet
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("re-toggle must restore absence: %+v", got)
	}

	ctrl.RemoveDocument("a")
	ctrl.RemoveDocument("not-there")
	if got = ctrl.Snapshot().WorkingSet; len(got) != 1 || got[0].ID != "c" {
		t.Fatalf("after removals: %+v", got)
	}
}

func TestSelectSessionLoadsTranscript(t *testing.T) {
	fake := &fakeSearcher{detail: search.SessionDetail{
		ID:    7,
		Title: "old chat",
		Messages: []search.APIMessage{
			{ID: 100, Role: chat.RoleUser, Content: "q1"},
			{ID: 101, Role: chat.RoleAssistant, Content: "a1"},
			{ID: 102, Role: chat.RoleUser, Content: "q2"},
			{ID: 103, Role: chat.RoleAssistant, Content: "a2"},
		},
	}}
	sink := &captureSink{}
	ctrl := newTestController(fake, sink)

	if err := ctrl.SelectSession(context.Background(), 7); err != nil {
		t.Fatalf("select: %v", err)
	}
	snap := ctrl.Snapshot()
	if snap.SessionID == nil || *snap.SessionID != 7 {
		t.Fatalf("session id not set: %+v", snap.SessionID)
	}
	if len(snap.Transcript) != 4 || snap.Transcript[0].ID != "100" {
		t.Fatalf("transcript not replaced with coerced ids: %+v", snap.Transcript)
	}

	reveals := sink.byType(EventReveal)
	if len(reveals) != 1 || reveals[0].Reveal.Target != RevealLastUser {
		t.Fatalf("bulk load should reveal the last user entry, got %+v", reveals)
	}
}

func TestSelectSessionFailureRollsBack(t *testing.T) {
	fake := &fakeSearcher{
		detail: search.SessionDetail{ID: 3, Messages: []search.APIMessage{{ID: 1, Role: chat.RoleUser, Content: "q"}}},
	}
	sink := &captureSink{}
	ctrl := newTestController(fake, sink)

	// Establish prior state so the rollback is observable.
	if err := ctrl.SelectSession(context.Background(), 3); err != nil {
		t.Fatalf("seed select: %v", err)
	}

	fake.detailErr = errors.New("500 internal")
	if err := ctrl.SelectSession(context.Background(), 4); err == nil {
		t.Fatal("expected select failure")
	}

	snap := ctrl.Snapshot()
	if snap.SessionID != nil {
		t.Fatalf("session id must roll back to unbound, got %v", *snap.SessionID)
	}
	if len(snap.Transcript) != 0 {
		t.Fatalf("transcript must be cleared, got %d entries", len(snap.Transcript))
	}
	if snap.SessionLoading {
		t.Fatal("loading flag must be released")
	}
	if len(sink.byType(EventError)) != 1 {
		t.Fatal("failure must surface a user-visible error")
	}
}

func TestRefreshSessionsDegradesToEmpty(t *testing.T) {
	fake := &fakeSearcher{listErr: errors.New("unreachable")}
	sink := &captureSink{}
	ctrl := newTestController(fake, sink)

	ctrl.RefreshSessions(context.Background())

	snap := ctrl.Snapshot()
	if len(snap.Sessions) != 0 {
		t.Fatalf("sessions should be empty, got %+v", snap.Sessions)
	}
	if len(sink.byType(EventError)) != 0 {
		t.Fatal("session list failures must not surface user-visible errors")
	}
	if len(sink.byType(EventSessions)) != 1 {
		t.Fatal("the empty list still replaces the sidebar state")
	}
}

func TestStartNewChatResetsEverything(t *testing.T) {
	fake := &fakeSearcher{nextSessionID: 2}
	ctrl := newTestController(fake, nil)

	if _, err := ctrl.SendQuery(context.Background(), "bind me"); err != nil {
		t.Fatalf("send: %v", err)
	}
	ctrl.ToggleDocument("p", "Paper")
	faculty := "Science"
	ctrl.UpdateFilters(chat.ActiveFilters{Faculty: &faculty})

	if err := ctrl.StartNewChat(); err != nil {
		t.Fatalf("StartNewChat: %v", err)
	}
	snap := ctrl.Snapshot()
	if snap.SessionID != nil || len(snap.Transcript) != 0 || len(snap.WorkingSet) != 0 {
		t.Fatalf("state not reset: %+v", snap)
	}
	if snap.Filters.Faculty != nil {
		t.Fatal("filters must reset to the empty configuration")
	}
	// Idempotent.
	if err := ctrl.StartNewChat(); err != nil {
		t.Fatalf("second StartNewChat: %v", err)
	}
}

func TestRevealCitationEmitsHighlight(t *testing.T) {
	fake := &fakeSearcher{nextSessionID: 8, references: []chat.Reference{
		{Rank: 1, PaperID: "p-a", Title: "A"},
		{Rank: 2, PaperID: "p-b", Title: "B"},
	}}
	sink := &captureSink{}
	ctrl := newTestController(fake, sink)

	answer, err := ctrl.SendQuery(context.Background(), "cite please")
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	ref, ok := ctrl.RevealCitation(answer.ID, 2)
	if !ok || ref.Title != "B" {
		t.Fatalf("reveal [2] = %+v ok=%v", ref, ok)
	}
	highlights := sink.byType(EventHighlight)
	if len(highlights) != 1 || highlights[0].Highlight.PaperID != "p-b" {
		t.Fatalf("highlight event: %+v", highlights)
	}

	if _, ok := ctrl.RevealCitation(answer.ID, 99); ok {
		t.Fatal("out-of-range marker must no-op")
	}
	if _, ok := ctrl.RevealCitation("missing-entry", 1); ok {
		t.Fatal("unknown entry must no-op")
	}
}

func TestHighlightClearsAfterInterval(t *testing.T) {
	fake := &fakeSearcher{nextSessionID: 8, references: []chat.Reference{{Rank: 1, PaperID: "p-a", Title: "A"}}}
	sink := &captureSink{}
	ctrl := newTestController(fake, sink)
	ctrl.highlightTTL = 20 * time.Millisecond

	answer, err := ctrl.SendQuery(context.Background(), "cite please")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, ok := ctrl.RevealCitation(answer.ID, 1); !ok {
		t.Fatal("reveal should resolve")
	}

	waitFor(t, func() bool { return len(sink.byType(EventHighlightClear)) == 1 })
	clears := sink.byType(EventHighlightClear)
	if clears[0].Highlight.PaperID != "p-a" {
		t.Fatalf("clear should name the revealed anchor: %+v", clears[0].Highlight)
	}
}

func TestSupersededHighlightDoesNotClear(t *testing.T) {
	fake := &fakeSearcher{nextSessionID: 8, references: []chat.Reference{{Rank: 1, PaperID: "p-a", Title: "A"}}}
	sink := &captureSink{}
	ctrl := newTestController(fake, sink)
	ctrl.highlightTTL = 20 * time.Millisecond

	answer, err := ctrl.SendQuery(context.Background(), "cite please")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, ok := ctrl.RevealCitation(answer.ID, 1); !ok {
		t.Fatal("reveal should resolve")
	}

	// A newer reveal can land after the timer fired but before its
	// callback got the lock; the callback must then skip the clear.
	ctrl.mu.Lock()
	ctrl.highlightGen++
	ctrl.mu.Unlock()

	time.Sleep(80 * time.Millisecond)
	if clears := sink.byType(EventHighlightClear); len(clears) != 0 {
		t.Fatalf("superseded reveal must not clear the newer highlight: %+v", clears)
	}
}

func TestSendRevealDirective(t *testing.T) {
	fake := &fakeSearcher{nextSessionID: 2}
	sink := &captureSink{}
	ctrl := newTestController(fake, sink)

	if _, err := ctrl.SendQuery(context.Background(), "scroll me"); err != nil {
		t.Fatalf("send: %v", err)
	}
	reveals := sink.byType(EventReveal)
	if len(reveals) != 1 || reveals[0].Reveal.Target != RevealLastAssistant {
		t.Fatalf("answer arrival should reveal the last assistant entry, got %+v", reveals)
	}
}
