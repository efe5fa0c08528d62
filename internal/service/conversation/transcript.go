package conversation

import "github.com/scholarchat/gateway/internal/model/chat"

// transcript is the ordered entry log for the active session. The only
// permitted bulk operations are wholesale replacement (session load, new
// chat) and single-entry append (optimistic send, answer arrival), so
// reconciliation after a send is always an append and never a rewrite of
// the optimistic entry. markFailed flips a status bit on one entry and is
// the single exception; content and order never change.
type transcript struct {
	entries []chat.Message
}

func (t *transcript) len() int {
	return len(t.entries)
}

func (t *transcript) append(entry chat.Message) {
	t.entries = append(t.entries, entry)
}

func (t *transcript) replace(entries []chat.Message) {
	t.entries = append([]chat.Message(nil), entries...)
}

func (t *transcript) reset() {
	t.entries = nil
}

func (t *transcript) copy() []chat.Message {
	return append([]chat.Message(nil), t.entries...)
}

func (t *transcript) last() (chat.Message, bool) {
	if len(t.entries) == 0 {
		return chat.Message{}, false
	}
	return t.entries[len(t.entries)-1], true
}

func (t *transcript) find(id string) (chat.Message, bool) {
	for _, entry := range t.entries {
		if entry.ID == id {
			return entry, true
		}
	}
	return chat.Message{}, false
}

func (t *transcript) markFailed(id string) {
	for i := range t.entries {
		if t.entries[i].ID == id {
			t.entries[i].Failed = true
			return
		}
	}
}
