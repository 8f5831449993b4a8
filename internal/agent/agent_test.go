package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"clawbot/internal/facts"
	"clawbot/internal/store"
	"clawbot/pkg/logx"
)

func newTestFacts(t *testing.T) *facts.Store {
	t.Helper()
	return facts.New(filepath.Join(t.TempDir(), "memory.md"), "base prompt", logx.Nop())
}

func TestChatSendsSystemMessageFirst(t *testing.T) {
	t.Parallel()

	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Role: "assistant", Content: "hello there"}})
	}))
	defer srv.Close()

	a := New(Config{Host: srv.URL, Model: "tinyllama", ContextLength: 4096}, newTestFacts(t), logx.Nop())
	reply := a.Chat(context.Background(), []store.Message{{Role: "user", Content: "hi"}})

	if reply != "hello there" {
		t.Fatalf("reply = %q", reply)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("sent %d messages, want 2", len(got.Messages))
	}
	if got.Messages[0].Role != "system" || got.Messages[0].Content != "base prompt" {
		t.Fatalf("leading message = %+v, want synthesized system prompt", got.Messages[0])
	}
	if got.Stream {
		t.Fatal("stream should be false")
	}
	if got.Model != "tinyllama" {
		t.Fatalf("model = %q", got.Model)
	}
}

func TestChatAbsorbsBackendFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model melted", http.StatusInternalServerError)
	}))
	defer srv.Close()

	a := New(Config{Host: srv.URL, Model: "m"}, newTestFacts(t), logx.Nop())
	reply := a.Chat(context.Background(), []store.Message{{Role: "user", Content: "hi"}})
	if !strings.HasPrefix(reply, "Sorry, I had trouble thinking about that.") {
		t.Fatalf("reply = %q, want apology", reply)
	}
}

func TestChatAbsorbsUnreachableHost(t *testing.T) {
	t.Parallel()
	a := New(Config{Host: "http://127.0.0.1:1", Model: "m"}, newTestFacts(t), logx.Nop())
	reply := a.Chat(context.Background(), nil)
	if !strings.Contains(reply, "Sorry") {
		t.Fatalf("reply = %q, want apology", reply)
	}
}
