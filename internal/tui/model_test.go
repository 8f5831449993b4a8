package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"clawbot/internal/chat"
	"clawbot/pkg/logx"
)

func lastLine(m model) string {
	if len(m.lines) == 0 {
		return ""
	}
	return m.lines[len(m.lines)-1]
}

func TestSlashCommands(t *testing.T) {
	t.Parallel()

	cleared := false
	forgot := false
	deps := Deps{
		Status:       Status{Model: "tinyllama", Host: "http://localhost:11434", ContextLength: 4096},
		CurrentFacts: func() string { return "- likes tea" },
		ClearFacts: func() error {
			forgot = true
			return nil
		},
		ClearHistory: func(ctx context.Context) error {
			cleared = true
			return nil
		},
	}
	m := newModel(deps, logx.Nop())

	next, _ := m.runCommand("/memory")
	if got := lastLine(next.(model)); !strings.Contains(got, "likes tea") {
		t.Fatalf("memory output %q does not show the fact", got)
	}

	next, _ = m.runCommand("/forget")
	if !forgot {
		t.Fatal("forget did not call ClearFacts")
	}
	if got := lastLine(next.(model)); !strings.Contains(got, "Memory wiped") {
		t.Fatalf("forget output = %q", got)
	}

	next, _ = m.runCommand("/clear")
	if !cleared {
		t.Fatal("clear did not call ClearHistory")
	}
	mc := next.(model)
	if len(mc.lines) != 1 || !strings.Contains(mc.lines[0], "History cleared") {
		t.Fatalf("clear left lines %v", mc.lines)
	}

	next, _ = m.runCommand("/status")
	if got := lastLine(next.(model)); !strings.Contains(got, "tinyllama") {
		t.Fatalf("status output %q lacks model name", got)
	}

	next, _ = m.runCommand("/bogus")
	if got := lastLine(next.(model)); !strings.Contains(got, "Unknown command") {
		t.Fatalf("unknown command output = %q", got)
	}
}

func TestSlashCommandErrorsShown(t *testing.T) {
	t.Parallel()

	deps := Deps{
		ClearFacts: func() error { return errors.New("disk gone") },
	}
	m := newModel(deps, logx.Nop())

	next, _ := m.runCommand("/forget")
	if got := lastLine(next.(model)); !strings.Contains(got, "disk gone") {
		t.Fatalf("forget error not surfaced: %q", got)
	}
}

func TestQuitCommands(t *testing.T) {
	t.Parallel()

	m := newModel(Deps{}, logx.Nop())
	for _, cmd := range []string{"/quit", "/exit"} {
		_, c := m.runCommand(cmd)
		if c == nil {
			t.Fatalf("%s returned no command", cmd)
		}
		if msg := c(); msg == nil {
			t.Fatalf("%s command produced nil msg", cmd)
		}
	}
}

func TestReplyRemovesThinkingPlaceholder(t *testing.T) {
	t.Parallel()

	m := newModel(Deps{}, logx.Nop())
	m.push(userStyle.Render("you: ") + "hello")
	m.push(thinkingLine)
	m.waiting = true

	next, _ := m.Update(replyMsg{res: chat.Result{Notes: []string{"🧠 Remembered: tea"}, Reply: "done"}})
	nm := next.(model)

	if nm.waiting {
		t.Fatal("still waiting after reply")
	}
	for _, line := range nm.lines {
		if line == thinkingLine {
			t.Fatal("placeholder left in transcript")
		}
	}
	if got := lastLine(nm); !strings.Contains(got, "done") {
		t.Fatalf("reply not appended: %q", got)
	}
}

func TestProgramNilBeforeRun(t *testing.T) {
	t.Parallel()

	u := New(Deps{}, logx.Nop())
	if u.program() != nil {
		t.Fatal("program set before Run")
	}
}

func TestCronLineInjected(t *testing.T) {
	t.Parallel()

	m := newModel(Deps{}, logx.Nop())
	next, _ := m.Update(cronLineMsg("⏰ stand up"))
	if got := lastLine(next.(model)); !strings.Contains(got, "stand up") {
		t.Fatalf("cron line not appended: %q", got)
	}
}

func TestEscQuits(t *testing.T) {
	t.Parallel()

	m := newModel(Deps{}, logx.Nop())
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("esc did not quit")
	}
}
