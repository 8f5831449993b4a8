// Package chat runs one conversation turn end to end: persist the user text,
// call the model with history, enact every directive block in the response,
// and hand back the cleaned reply plus status notes for the frontend to show.
//
// Both frontends (Telegram, terminal UI) drive this same pipeline so a cron
// job scheduled from one surface is visible from the other.
package chat

import (
	"context"
	"fmt"
	"path/filepath"

	"clawbot/internal/action"
	"clawbot/internal/agent"
	"clawbot/internal/facts"
	"clawbot/internal/scheduler"
	"clawbot/internal/store"
	"clawbot/internal/workspace"
	"clawbot/pkg/logx"
)

// Result is one processed turn. Reply is the cleaned model text (may be
// empty when the response was all directives); Notes are status lines for
// each enacted or failed directive, in processing order.
type Result struct {
	Reply string
	Notes []string
}

type Pipeline struct {
	agent *agent.Agent
	store *store.Store
	sched *scheduler.Scheduler
	ws    *workspace.Workspace
	facts *facts.Store
	log   logx.Logger

	maxHistory   int
	schedEnabled bool
}

func NewPipeline(a *agent.Agent, st *store.Store, sched *scheduler.Scheduler, ws *workspace.Workspace, fs *facts.Store, maxHistory int, schedEnabled bool, log logx.Logger) *Pipeline {
	if log.IsZero() {
		log = logx.Nop()
	}
	if maxHistory <= 0 {
		maxHistory = 50
	}
	return &Pipeline{
		agent:        a,
		store:        st,
		sched:        sched,
		ws:           ws,
		facts:        fs,
		log:          log,
		maxHistory:   maxHistory,
		schedEnabled: schedEnabled,
	}
}

// Process runs one turn for userText. Store write failures on the history
// are logged, not fatal: losing a history row is better than losing the turn.
func (p *Pipeline) Process(ctx context.Context, userText string) Result {
	if err := p.store.AppendMessage(ctx, "user", userText); err != nil {
		p.log.Warn("failed to persist user message", logx.Err(err))
	}

	history, err := p.store.History(ctx, p.maxHistory)
	if err != nil {
		p.log.Warn("failed to load history", logx.Err(err))
	}

	response := p.agent.Chat(ctx, history)
	res := p.Apply(ctx, response)

	// The raw response goes into history so the model can read back its own
	// directives next turn; only the user ever sees the cleaned version.
	if err := p.store.AppendMessage(ctx, "assistant", response); err != nil {
		p.log.Warn("failed to persist assistant message", logx.Err(err))
	}
	return res
}

// Apply enacts every directive block in response and returns the cleaned
// reply plus one note per directive. Malformed blocks turn into notes, never
// abort the rest of the response.
func (p *Pipeline) Apply(ctx context.Context, response string) Result {
	var notes []string

	jobs, parseErrs := action.ParseScheduleBlocks(response)
	for _, e := range parseErrs {
		notes = append(notes, "⚠️ Cron error: "+e)
	}
	for _, job := range jobs {
		if !p.schedEnabled {
			notes = append(notes, "⚠️ Scheduler is disabled; ignoring cron block")
			continue
		}
		id, err := p.sched.Add(ctx, job.Schedule, job.Task, job.Message)
		if err != nil {
			notes = append(notes, fmt.Sprintf("❌ Error scheduling: %v", err))
			continue
		}
		notes = append(notes, fmt.Sprintf("✅ Scheduled job #%d: %s\nSchedule: %s", id, job.Task, job.Schedule))
	}

	for _, blk := range action.ParseSaveBlocks(response) {
		path, err := p.ws.Save(ctx, blk.Filename, blk.Content)
		if err != nil {
			notes = append(notes, fmt.Sprintf("❌ Error saving file: %v", err))
			continue
		}
		notes = append(notes, fmt.Sprintf("💾 Saved %s to workspace", filepath.Base(path)))
	}

	for _, fact := range action.ParseMemoryBlocks(response) {
		saved, err := p.facts.Save(fact)
		if err != nil {
			notes = append(notes, fmt.Sprintf("❌ Error saving memory: %v", err))
			continue
		}
		if saved {
			notes = append(notes, "🧠 Remembered: "+fact)
		}
	}

	return Result{Reply: action.CleanResponse(response), Notes: notes}
}

// LastCodeBlock walks recent assistant turns newest-first and returns the
// first code block found, for explicit /save requests.
func (p *Pipeline) LastCodeBlock(ctx context.Context) (action.CodeBlock, bool) {
	history, err := p.store.History(ctx, 10)
	if err != nil {
		return action.CodeBlock{}, false
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != "assistant" {
			continue
		}
		if blocks := action.ExtractCodeBlocks(history[i].Content); len(blocks) > 0 {
			return blocks[0], true
		}
	}
	return action.CodeBlock{}, false
}

// ProcessCron handles a fired cron payload: run it through the model like a
// user turn and return the cleaned reply for delivery.
func (p *Pipeline) ProcessCron(ctx context.Context, message string) Result {
	p.log.Info("processing cron message", logx.String("message", message))
	return p.Process(ctx, message)
}

// History exposes recent turns for frontends that render a backlog.
func (p *Pipeline) History(ctx context.Context, limit int) ([]store.Message, error) {
	return p.store.History(ctx, limit)
}
