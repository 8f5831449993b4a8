// Package tui is the terminal frontend: a bubbletea chat loop over the same
// pipeline the Telegram bot drives, so both frontends enact identical
// behavior for cron, save and memory blocks.
package tui

import (
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"clawbot/internal/chat"
	"clawbot/internal/scheduler"
	"clawbot/internal/workspace"
	"clawbot/pkg/logx"
)

// Status is the subset of app state the /status command reports.
type Status struct {
	Model         string
	Host          string
	ContextLength int
}

// Deps carries the collaborators the command surface needs beyond the pipeline.
type Deps struct {
	Pipeline  *chat.Pipeline
	Scheduler *scheduler.Scheduler
	Workspace *workspace.Workspace
	Status    Status

	ClearFacts   func() error
	CurrentFacts func() string
	ClearHistory func(ctx context.Context) error
}

// UI owns the bubbletea program so cron messages can be injected into a
// running session.
type UI struct {
	deps Deps
	log  logx.Logger

	// progMu guards prog, which Run writes while scheduler callbacks read.
	progMu sync.Mutex
	prog   *tea.Program
}

func New(deps Deps, log logx.Logger) *UI {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &UI{deps: deps, log: log}
}

// Run blocks until the user quits or ctx is cancelled.
func (u *UI) Run(ctx context.Context) error {
	m := newModel(u.deps, u.log)
	prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	u.progMu.Lock()
	u.prog = prog
	u.progMu.Unlock()

	_, err := prog.Run()
	return err
}

func (u *UI) program() *tea.Program {
	u.progMu.Lock()
	defer u.progMu.Unlock()
	return u.prog
}

// CronCallback returns the scheduler consumer for this frontend: the fired
// payload runs through the model and the reply is pushed into the running
// chat view. A fire before Run is logged and dropped.
func (u *UI) CronCallback() scheduler.Callback {
	return func(ctx context.Context, message string) {
		res := u.deps.Pipeline.ProcessCron(ctx, message)
		prog := u.program()
		if prog == nil {
			u.log.Warn("cron fired before the terminal session started; reply dropped")
			return
		}
		for _, n := range res.Notes {
			prog.Send(cronLineMsg(n))
		}
		if res.Reply != "" {
			prog.Send(cronLineMsg("⏰ " + res.Reply))
		}
	}
}
