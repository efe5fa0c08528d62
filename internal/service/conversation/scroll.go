package conversation

import "github.com/scholarchat/gateway/internal/model/chat"

// RevealTarget names the transcript entry a view should bring into view.
type RevealTarget string

const (
	RevealLastUser      RevealTarget = "last-user"
	RevealLastAssistant RevealTarget = "last-assistant"
)

// Directive asks the view to reveal one transcript entry, aligned to the
// top of the viewport. It is advisory: the view scrolls best-effort and
// never blocks or retries.
type Directive struct {
	Target RevealTarget `json:"target"`
	Align  string       `json:"align"`
}

// scrollTarget decides which entry to reveal after a transcript length
// change. A jump of more than two entries is a session load completing,
// where the useful target is the boundary between old and new content:
// the last question asked. A jump of one or two entries is a single round
// trip, where the useful target is the start of the answer. Nothing moves
// while a session load is still in progress.
func scrollTarget(prevLen, newLen int, lastRole chat.Role, loading bool) (Directive, bool) {
	if loading {
		return Directive{}, false
	}
	diff := newLen - prevLen
	switch {
	case diff > 2:
		return Directive{Target: RevealLastUser, Align: "start"}, true
	case diff >= 1 && lastRole == chat.RoleAssistant:
		return Directive{Target: RevealLastAssistant, Align: "start"}, true
	}
	return Directive{}, false
}
