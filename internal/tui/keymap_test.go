package tui

import (
	"testing"

	"charm.land/bubbles/v2/key"
)

// TestKeyMapDefaults verifies the bindings the dashboard relies on.
func TestKeyMapDefaults(t *testing.T) {
	k := newKeyMap()
	cases := []struct {
		name    string
		binding key.Binding
		want    []string
	}{
		{"quit", k.quit, []string{"q", "ctrl+c"}},
		{"advance status", k.advanceStatus, []string{"s"}},
		{"health filter", k.cycleHealth, []string{"f"}},
		{"copy", k.copyTask, []string{"y"}},
		{"next project", k.nextProject, []string{"l", "right"}},
		{"comments", k.comments, []string{"c"}},
		{"delete comment", k.deleteComment, []string{"ctrl+d"}},
	}
	for _, tt := range cases {
		got := tt.binding.Keys()
		if len(got) != len(tt.want) {
			t.Fatalf("%s keys = %#v, want %#v", tt.name, got, tt.want)
		}
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Fatalf("%s keys = %#v, want %#v", tt.name, got, tt.want)
			}
		}
	}
}

// TestKeyMapHelpGroups verifies every binding appears in full help exactly once.
func TestKeyMapHelpGroups(t *testing.T) {
	k := newKeyMap()
	seen := map[string]int{}
	for _, group := range k.FullHelp() {
		for _, binding := range group {
			seen[binding.Help().Desc]++
		}
	}
	for desc, count := range seen {
		if count != 1 {
			t.Fatalf("help %q listed %d times", desc, count)
		}
	}
	if len(seen) != 18 {
		t.Fatalf("full help lists %d bindings, want 18", len(seen))
	}
	if len(k.ShortHelp()) == 0 {
		t.Fatal("expected short help bindings")
	}
}
