package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"clawbot/internal/chat"
	"clawbot/pkg/logx"
)

var (
	userStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	noteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	faintStyle = lipgloss.NewStyle().Faint(true)
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
)

// replyMsg carries a finished pipeline turn back into the update loop.
type replyMsg struct {
	res chat.Result
}

// cronLineMsg is a line injected from outside the session by a fired job.
type cronLineMsg string

type model struct {
	deps Deps
	log  logx.Logger

	vp      viewport.Model
	input   textinput.Model
	lines   []string
	ready   bool
	waiting bool
	width   int
}

func newModel(deps Deps, log logx.Logger) model {
	in := textinput.New()
	in.Placeholder = "Type a message, or /help"
	in.Prompt = "> "
	in.CharLimit = 0
	in.Focus()

	m := model{deps: deps, log: log, input: in}
	m.push(titleStyle.Render("clawbot") + faintStyle.Render("  model: "+deps.Status.Model))
	m.push(faintStyle.Render("Type /help for commands, /quit to exit."))
	return m
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

var thinkingLine = faintStyle.Render("thinking...")

// dropThinking removes the trailing placeholder pushed by submit, if present.
func (m *model) dropThinking() {
	if n := len(m.lines); n > 0 && m.lines[n-1] == thinkingLine {
		m.lines = m.lines[:n-1]
		if m.ready {
			m.vp.SetContent(strings.Join(m.lines, "\n"))
			m.vp.GotoBottom()
		}
	}
}

func (m *model) push(line string) {
	m.lines = append(m.lines, line)
	if m.ready {
		m.vp.SetContent(strings.Join(m.lines, "\n"))
		m.vp.GotoBottom()
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		inputHeight := 2
		if !m.ready {
			m.vp = viewport.New(msg.Width, msg.Height-inputHeight)
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = msg.Height - inputHeight
		}
		m.input.Width = msg.Width - 4
		m.vp.SetContent(strings.Join(m.lines, "\n"))
		m.vp.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}

	case replyMsg:
		m.waiting = false
		m.dropThinking()
		for _, n := range msg.res.Notes {
			m.push(noteStyle.Render(n))
		}
		if msg.res.Reply != "" {
			m.push(botStyle.Render("bot: ") + msg.res.Reply)
		}
		return m, nil

	case cronLineMsg:
		m.push(noteStyle.Render(string(msg)))
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.vp, cmd = m.vp.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.waiting {
		return m, nil
	}
	m.input.Reset()

	if strings.HasPrefix(text, "/") {
		return m.runCommand(text)
	}

	m.push(userStyle.Render("you: ") + text)
	m.push(thinkingLine)
	m.waiting = true

	pipe := m.deps.Pipeline
	return m, func() tea.Msg {
		return replyMsg{res: pipe.Process(context.Background(), text)}
	}
}

func (m model) runCommand(text string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(text)
	cmd := fields[0]

	switch cmd {
	case "/quit", "/exit":
		return m, tea.Quit

	case "/help":
		m.push(noteStyle.Render(tuiHelp))

	case "/clear":
		if m.deps.ClearHistory != nil {
			if err := m.deps.ClearHistory(context.Background()); err != nil {
				m.push(noteStyle.Render("❌ " + err.Error()))
				return m, nil
			}
		}
		m.lines = nil
		m.push(faintStyle.Render("History cleared."))
		if m.ready {
			m.vp.SetContent(strings.Join(m.lines, "\n"))
			m.vp.GotoTop()
		}

	case "/status":
		m.push(noteStyle.Render(m.statusText()))

	case "/jobs":
		m.push(noteStyle.Render(m.jobsText()))

	case "/workspace":
		m.push(noteStyle.Render(m.workspaceText()))

	case "/memory":
		facts := ""
		if m.deps.CurrentFacts != nil {
			facts = strings.TrimSpace(m.deps.CurrentFacts())
		}
		if facts == "" {
			m.push(noteStyle.Render("Nothing remembered yet."))
		} else {
			m.push(noteStyle.Render("🧠 Remembered facts:\n" + facts))
		}

	case "/forget":
		if m.deps.ClearFacts == nil {
			m.push(noteStyle.Render("Memory is not configured."))
			return m, nil
		}
		if err := m.deps.ClearFacts(); err != nil {
			m.push(noteStyle.Render("❌ " + err.Error()))
			return m, nil
		}
		m.push(noteStyle.Render("🧠 Memory wiped."))

	default:
		m.push(noteStyle.Render("Unknown command " + cmd + ". Try /help."))
	}
	return m, nil
}

func (m model) statusText() string {
	var sb strings.Builder
	sb.WriteString("🤖 Status\n")
	fmt.Fprintf(&sb, "Model: %s\n", m.deps.Status.Model)
	fmt.Fprintf(&sb, "Host: %s\n", m.deps.Status.Host)
	fmt.Fprintf(&sb, "Context: %d tokens", m.deps.Status.ContextLength)
	if m.deps.Scheduler != nil {
		if jobs, err := m.deps.Scheduler.List(context.Background()); err == nil {
			fmt.Fprintf(&sb, "\nActive jobs: %d", len(jobs))
		}
	}
	return sb.String()
}

func (m model) jobsText() string {
	if m.deps.Scheduler == nil {
		return "Scheduler is not configured."
	}
	jobs, err := m.deps.Scheduler.List(context.Background())
	if err != nil {
		return "❌ Could not read jobs: " + err.Error()
	}
	if len(jobs) == 0 {
		return "No scheduled jobs."
	}
	var sb strings.Builder
	sb.WriteString("📅 Scheduled jobs:")
	for _, j := range jobs {
		fmt.Fprintf(&sb, "\n#%d [%s] %s", j.ID, j.Schedule, j.Task)
	}
	return sb.String()
}

func (m model) workspaceText() string {
	if m.deps.Workspace == nil {
		return "Workspace is not configured."
	}
	files := m.deps.Workspace.List()
	if len(files) == 0 {
		return "Workspace is empty."
	}
	var sb strings.Builder
	sb.WriteString("📁 Workspace files:")
	for _, f := range files {
		fmt.Fprintf(&sb, "\n%s (%d bytes)", f.Name, f.Size)
	}
	return sb.String()
}

const tuiHelp = `Commands:
/status    Show model and job status
/jobs      List scheduled jobs
/workspace List workspace files
/memory    Show remembered facts
/forget    Erase remembered facts
/clear     Clear conversation history
/quit      Exit

Anything else is sent to the model.`

func (m model) View() string {
	if !m.ready {
		return "starting..."
	}
	return m.vp.View() + "\n" + m.input.View()
}
