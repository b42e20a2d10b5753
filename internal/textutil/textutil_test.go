package textutil

import "testing"

func TestSanitizeSlug(t *testing.T) {
	cases := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"Prompt Rejected", 0, "prompt-rejected"},
		{"beat_012.final", 0, "beat-012-final"},
		{"  --Mixed  CASE--  ", 0, "mixed-case"},
		{"abcdef123456", 6, "abcdef"},
		{"!!!", 0, ""},
	}
	for _, tc := range cases {
		if got := SanitizeSlug(tc.input, tc.maxLen); got != tc.want {
			t.Fatalf("SanitizeSlug(%q, %d) = %q, want %q", tc.input, tc.maxLen, got, tc.want)
		}
	}
}

func TestTitleSegment(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"the lost city", "The_Lost_City"},
		{"shadows & echoes", "Shadows_Echoes"},
		{"  already_titled  ", "Already_Titled"},
		{"episode 7: the return", "Episode_7_The_Return"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := TitleSegment(tc.input); got != tc.want {
			t.Fatalf("TitleSegment(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestTernary(t *testing.T) {
	if got := Ternary(true, "a", "b"); got != "a" {
		t.Fatalf("expected a, got %s", got)
	}
	if got := Ternary(false, 1, 2); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}
