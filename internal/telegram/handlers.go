package telegram

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"clawbot/pkg/logx"
)

var botCommands = []tele.Command{
	{Text: "start", Description: "Introduce the assistant"},
	{Text: "status", Description: "Show model and job status"},
	{Text: "jobs", Description: "List scheduled jobs"},
	{Text: "schedule", Description: "Schedule a job: /schedule <cron> <message>"},
	{Text: "cancel", Description: "Cancel a job: /cancel <id>"},
	{Text: "workspace", Description: "List workspace files"},
	{Text: "save", Description: "Save the last code block: /save <filename>"},
	{Text: "memory", Description: "Show remembered facts"},
	{Text: "forget", Description: "Erase remembered facts"},
	{Text: "clear", Description: "Clear conversation history"},
	{Text: "help", Description: "Show help"},
}

const helpText = `Available commands:
/start - Introduce the assistant
/status - Show model and job status
/jobs - List scheduled jobs
/schedule <min> <hour> <day> <month> <weekday> <message> - Schedule a job
/cancel <id> - Cancel a scheduled job
/workspace - List workspace files
/save <filename> - Save the last code block to the workspace
/memory - Show remembered facts
/forget - Erase remembered facts
/clear - Clear conversation history
/help - Show this help

Anything else is sent to the model. Replies may carry cron, save and
memory blocks, which are acted on automatically.`

func (b *Bot) registerHandlers() {
	b.bot.Use(b.restrict)

	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/status", b.handleStatus)
	b.bot.Handle("/jobs", b.handleJobs)
	b.bot.Handle("/schedule", b.handleSchedule)
	b.bot.Handle("/cancel", b.handleCancel)
	b.bot.Handle("/workspace", b.handleWorkspace)
	b.bot.Handle("/save", b.handleSave)
	b.bot.Handle("/memory", b.handleMemory)
	b.bot.Handle("/forget", b.handleForget)
	b.bot.Handle("/clear", b.handleClear)
	b.bot.Handle("/help", b.handleHelp)
	b.bot.Handle(tele.OnText, b.handleText)
}

func (b *Bot) handleStart(c tele.Context) error {
	b.rememberChat(c)
	return b.reply(c, fmt.Sprintf(
		"Hello! I'm your assistant, running %s. Send me a message, or /help for commands.",
		b.status.Model))
}

func (b *Bot) handleStatus(c tele.Context) error {
	b.rememberChat(c)

	jobs, err := b.sched.List(context.Background())
	jobCount := len(jobs)
	if err != nil {
		b.log.Warn("failed to list jobs for status", logx.Err(err))
	}

	var sb strings.Builder
	sb.WriteString("🤖 Status\n")
	fmt.Fprintf(&sb, "Model: %s\n", b.status.Model)
	fmt.Fprintf(&sb, "Host: %s\n", b.status.Host)
	fmt.Fprintf(&sb, "Context: %d tokens\n", b.status.ContextLength)
	fmt.Fprintf(&sb, "Active jobs: %d\n", jobCount)
	if b.factsSize != nil {
		if full, lines := b.factsSize(); full {
			fmt.Fprintf(&sb, "Memory: %d facts (full)", lines)
		} else {
			fmt.Fprintf(&sb, "Memory: %d facts", lines)
		}
	}
	return b.reply(c, sb.String())
}

func (b *Bot) handleJobs(c tele.Context) error {
	b.rememberChat(c)

	jobs, err := b.sched.List(context.Background())
	if err != nil {
		return b.reply(c, "❌ Could not read jobs: "+err.Error())
	}
	if len(jobs) == 0 {
		return b.reply(c, "No scheduled jobs.")
	}

	var sb strings.Builder
	sb.WriteString("📅 Scheduled jobs:\n")
	for _, j := range jobs {
		fmt.Fprintf(&sb, "#%d [%s] %s\n", j.ID, j.Schedule, j.Task)
	}
	return b.reply(c, sb.String())
}

// handleSchedule takes five cron fields followed by the message the job
// should deliver: /schedule 0 9 * * 1 Weekly standup reminder.
func (b *Bot) handleSchedule(c tele.Context) error {
	b.rememberChat(c)

	args := strings.Fields(c.Message().Payload)
	if len(args) < 6 {
		return b.reply(c, "Usage: /schedule <min> <hour> <day> <month> <weekday> <message>")
	}

	schedule := strings.Join(args[:5], " ")
	message := strings.Join(args[5:], " ")

	id, err := b.sched.Add(context.Background(), schedule, shortTask(message), message)
	if err != nil {
		return b.reply(c, "❌ "+err.Error())
	}
	return b.reply(c, fmt.Sprintf("✅ Scheduled job #%d\nSchedule: %s", id, schedule))
}

func (b *Bot) handleCancel(c tele.Context) error {
	b.rememberChat(c)

	id, ok := parseJobID(c.Message().Payload)
	if !ok {
		return b.reply(c, "Usage: /cancel <id>")
	}

	cancelled, err := b.sched.Cancel(context.Background(), id)
	if err != nil {
		return b.reply(c, "❌ "+err.Error())
	}
	if !cancelled {
		return b.reply(c, fmt.Sprintf("No active job #%d.", id))
	}
	return b.reply(c, fmt.Sprintf("✅ Cancelled job #%d.", id))
}

func (b *Bot) handleWorkspace(c tele.Context) error {
	b.rememberChat(c)

	files := b.ws.List()
	if len(files) == 0 {
		return b.reply(c, "Workspace is empty.")
	}

	var sb strings.Builder
	sb.WriteString("📁 Workspace files:\n")
	for _, f := range files {
		fmt.Fprintf(&sb, "%s (%s)\n", f.Name, formatKB(f.Size))
	}
	return b.reply(c, sb.String())
}

// handleSave stores the most recent assistant code block under the given name.
func (b *Bot) handleSave(c tele.Context) error {
	b.rememberChat(c)

	filename := strings.TrimSpace(c.Message().Payload)
	if filename == "" {
		return b.reply(c, "Usage: /save <filename>")
	}

	block, ok := b.pipe.LastCodeBlock(context.Background())
	if !ok {
		return b.reply(c, "No recent code block to save.")
	}

	path, err := b.ws.Save(context.Background(), filename, block.Content)
	if err != nil {
		return b.reply(c, "❌ "+err.Error())
	}
	return b.reply(c, fmt.Sprintf("💾 Saved %s code to %s", block.Lang, path))
}

func (b *Bot) handleMemory(c tele.Context) error {
	b.rememberChat(c)

	if b.currentFacts == nil {
		return b.reply(c, "Memory is not configured.")
	}
	facts := strings.TrimSpace(b.currentFacts())
	if facts == "" {
		return b.reply(c, "Nothing remembered yet.")
	}
	return b.reply(c, "🧠 Remembered facts:\n"+facts)
}

func (b *Bot) handleForget(c tele.Context) error {
	b.rememberChat(c)

	if b.clearFacts == nil {
		return b.reply(c, "Memory is not configured.")
	}
	if err := b.clearFacts(); err != nil {
		return b.reply(c, "❌ "+err.Error())
	}
	return b.reply(c, "🧠 Memory wiped.")
}

func (b *Bot) handleClear(c tele.Context) error {
	b.rememberChat(c)

	if b.clearHistory == nil {
		return b.reply(c, "History is not configured.")
	}
	if err := b.clearHistory(context.Background()); err != nil {
		return b.reply(c, "❌ "+err.Error())
	}
	return b.reply(c, "🗑 Conversation history cleared.")
}

func (b *Bot) handleHelp(c tele.Context) error {
	b.rememberChat(c)
	return b.reply(c, helpText)
}
