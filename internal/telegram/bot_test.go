package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestAllowedUsers(t *testing.T) {
	t.Parallel()

	open := &Bot{cfg: Config{}}
	if !open.allowed(42) {
		t.Fatal("empty allow-list should admit everyone")
	}

	closed := &Bot{cfg: Config{AllowedUsers: []int64{1, 2, 3}}}
	if !closed.allowed(2) {
		t.Fatal("listed user rejected")
	}
	if closed.allowed(42) {
		t.Fatal("unlisted user admitted")
	}
}

func TestShortTask(t *testing.T) {
	t.Parallel()

	if got := shortTask("water the plants"); got != "water the plants" {
		t.Fatalf("short message mangled: %q", got)
	}

	long := strings.Repeat("x", 80)
	got := shortTask(long)
	if len(got) != 50 {
		t.Fatalf("truncated task is %d chars, want 50", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("truncated task missing ellipsis: %q", got)
	}
}

func TestParseJobID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in string
		id int64
		ok bool
	}{
		{"7", 7, true},
		{"  42 ", 42, true},
		{"", 0, false},
		{"abc", 0, false},
		{"7 extra", 0, false},
	}
	for _, tc := range tests {
		id, ok := parseJobID(tc.in)
		if ok != tc.ok || id != tc.id {
			t.Errorf("parseJobID(%q) = (%d, %v), want (%d, %v)", tc.in, id, ok, tc.id, tc.ok)
		}
	}
}

func TestChunkText(t *testing.T) {
	t.Parallel()

	if got := chunkText("", 10); got != nil {
		t.Fatalf("empty text yielded %q", got)
	}
	if got := chunkText("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text yielded %q", got)
	}

	got := chunkText(strings.Repeat("a", 25), 10)
	if len(got) != 3 || got[0] != strings.Repeat("a", 10) || got[2] != strings.Repeat("a", 5) {
		t.Fatalf("ascii split = %v", got)
	}
}

func TestChunkTextKeepsRunesWhole(t *testing.T) {
	t.Parallel()

	// 9 ascii bytes, then a 3-byte rune straddling the 10-byte cut.
	text := strings.Repeat("a", 9) + "⏰" + strings.Repeat("b", 10)
	chunks := chunkText(text, 10)

	var rebuilt strings.Builder
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Fatalf("chunk %d is not valid UTF-8: %q", i, c)
		}
		if len(c) > 10 {
			t.Fatalf("chunk %d is %d bytes", i, len(c))
		}
		rebuilt.WriteString(c)
	}
	if rebuilt.String() != text {
		t.Fatalf("chunks do not rebuild the input: %q", chunks)
	}
	if chunks[0] != strings.Repeat("a", 9) {
		t.Fatalf("cut not backed off to the rune boundary: %q", chunks[0])
	}
}

func TestPreview(t *testing.T) {
	t.Parallel()

	if got := preview("hi", 10); got != "hi" {
		t.Fatalf("preview(hi) = %q", got)
	}
	if got := preview("hello world", 5); got != "hello..." {
		t.Fatalf("preview = %q", got)
	}
}

func TestFormatKB(t *testing.T) {
	t.Parallel()

	if got := formatKB(2048); got != "2.0 KB" {
		t.Fatalf("formatKB(2048) = %q", got)
	}
	if got := formatKB(1536); got != "1.5 KB" {
		t.Fatalf("formatKB(1536) = %q", got)
	}
}
