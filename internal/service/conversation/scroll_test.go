package conversation

import (
	"testing"

	"github.com/scholarchat/gateway/internal/model/chat"
)

func TestScrollTargetDecisionTable(t *testing.T) {
	cases := []struct {
		name     string
		prevLen  int
		newLen   int
		lastRole chat.Role
		loading  bool
		want     RevealTarget
		wantOK   bool
	}{
		{name: "bulk session load reveals last user", prevLen: 2, newLen: 7, lastRole: chat.RoleAssistant, want: RevealLastUser, wantOK: true},
		{name: "single answer reveals last assistant", prevLen: 2, newLen: 3, lastRole: chat.RoleAssistant, want: RevealLastAssistant, wantOK: true},
		{name: "round trip observed at once", prevLen: 2, newLen: 4, lastRole: chat.RoleAssistant, want: RevealLastAssistant, wantOK: true},
		{name: "optimistic user append stays put", prevLen: 2, newLen: 3, lastRole: chat.RoleUser, wantOK: false},
		{name: "no action while loading", prevLen: 2, newLen: 7, lastRole: chat.RoleAssistant, loading: true, wantOK: false},
		{name: "shrinking transcript stays put", prevLen: 5, newLen: 2, lastRole: chat.RoleAssistant, wantOK: false},
		{name: "unchanged transcript stays put", prevLen: 3, newLen: 3, lastRole: chat.RoleAssistant, wantOK: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			directive, ok := scrollTarget(tc.prevLen, tc.newLen, tc.lastRole, tc.loading)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if directive.Target != tc.want {
				t.Fatalf("target = %s, want %s", directive.Target, tc.want)
			}
			if directive.Align != "start" {
				t.Fatalf("align = %q, want start", directive.Align)
			}
		})
	}
}
