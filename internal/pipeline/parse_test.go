package pipeline

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseSubQueries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "numbered with dots",
			text: "1. What records must be retained?\n2. How long is the retention period?\n3. Who enforces retention rules?",
			want: []string{
				"1. What records must be retained?",
				"2. How long is the retention period?",
				"3. Who enforces retention rules?",
			},
		},
		{
			name: "numbered with parentheses and leading space",
			text: " 1) First question\n 2) Second question",
			want: []string{"1) First question", "2) Second question"},
		},
		{
			name: "preamble and blank lines skipped",
			text: "Here are the sub-questions:\n\n1. Only this line counts\n\nLet me know if you need more.",
			want: []string{"1. Only this line counts"},
		},
		{
			name: "digit beyond third character ignored",
			text: "Item 1 is not numbered early enough",
			want: nil,
		},
		{
			name: "no numbered lines",
			text: "The question cannot be decomposed.",
			want: nil,
		},
		{
			name: "empty output",
			text: "",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := parseSubQueries(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseSubQueries() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSnippet(t *testing.T) {
	t.Parallel()

	long := make([]byte, 250)
	for i := range long {
		long[i] = 'a'
	}

	if got := snippet(string(long)); len(got) != snippetLength+3 {
		t.Errorf("snippet length = %d, want %d", len(got), snippetLength+3)
	}
	if got := snippet("short"); got != "short..." {
		t.Errorf("snippet(short) = %q, want %q", got, "short...")
	}
}

// Truncation counts characters, not bytes: a multibyte rune straddling the
// limit must be kept or dropped whole, never split.
func TestSnippetMultibyte(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("a", snippetLength-1) + "§ and further text"

	got := snippet(content)
	if !utf8.ValidString(got) {
		t.Fatalf("snippet produced invalid UTF-8: %q", got)
	}
	if want := strings.Repeat("a", snippetLength-1) + "§..."; got != want {
		t.Errorf("snippet = %q, want %q", got, want)
	}

	sections := strings.Repeat("§", snippetLength+10)
	got = snippet(sections)
	if n := utf8.RuneCountInString(got); n != snippetLength+3 {
		t.Errorf("snippet rune count = %d, want %d", n, snippetLength+3)
	}
	if !utf8.ValidString(got) {
		t.Errorf("snippet produced invalid UTF-8: %q", got)
	}
}
