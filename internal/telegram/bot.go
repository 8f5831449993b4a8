// Package telegram is the Telegram frontend: long-polls for updates, drives
// the chat pipeline, and delivers fired cron messages back to the last
// active chat.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"clawbot/internal/chat"
	"clawbot/internal/scheduler"
	"clawbot/internal/workspace"
	"clawbot/pkg/logx"
)

// Telegram rejects messages above 4096 chars; chunk a bit below that.
const chunkSize = 4000

type Config struct {
	Token        string
	AllowedUsers []int64
	PollTimeout  time.Duration
	// RatePerSec caps outgoing sends so a chatty cron job cannot trip
	// Telegram's flood limits. Zero means a sane default.
	RatePerSec int
}

// Status is the subset of app state the /status command reports.
type Status struct {
	Model         string
	Host          string
	ContextLength int
}

type Bot struct {
	cfg     Config
	pipe    *chat.Pipeline
	sched   *scheduler.Scheduler
	ws      *workspace.Workspace
	status  Status
	log     logx.Logger
	bot     *tele.Bot
	limiter *rate.Limiter

	clearFacts   func() error
	currentFacts func() string
	factsSize    func() (bool, int)
	clearHistory func(ctx context.Context) error

	chatMu   sync.Mutex
	lastChat *tele.Chat

	runMu   sync.Mutex
	running bool
	runWG   sync.WaitGroup
}

// Deps carries the collaborators the command surface needs beyond the pipeline.
type Deps struct {
	Pipeline  *chat.Pipeline
	Scheduler *scheduler.Scheduler
	Workspace *workspace.Workspace
	Status    Status

	ClearFacts   func() error
	CurrentFacts func() string
	FactsSize    func() (bool, int)
	ClearHistory func(ctx context.Context) error
}

func New(cfg Config, deps Deps, log logx.Logger) (*Bot, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}

	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}

	bot := &Bot{
		cfg:          cfg,
		pipe:         deps.Pipeline,
		sched:        deps.Scheduler,
		ws:           deps.Workspace,
		status:       deps.Status,
		log:          log,
		bot:          b,
		limiter:      rate.NewLimiter(rate.Limit(rps), rps),
		clearFacts:   deps.ClearFacts,
		currentFacts: deps.CurrentFacts,
		factsSize:    deps.FactsSize,
		clearHistory: deps.ClearHistory,
	}
	bot.registerHandlers()
	return bot, nil
}

// Start begins long-polling. It returns once polling is running; the poll
// loop itself stops when ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	b.runMu.Lock()
	if b.running {
		b.runMu.Unlock()
		return nil
	}
	b.running = true
	b.runMu.Unlock()

	if err := b.bot.SetCommands(botCommands); err != nil {
		b.log.Warn("failed to register bot commands", logx.Err(err))
	}

	b.runWG.Add(1)
	go func() {
		defer b.runWG.Done()
		go func() {
			<-ctx.Done()
			b.bot.Stop()
		}()
		b.log.Info("telegram polling started")
		b.bot.Start() // blocks until Stop()
	}()
	return nil
}

// Stop halts polling, waiting briefly for the long-poll to let go.
func (b *Bot) Stop(ctx context.Context) error {
	b.runMu.Lock()
	wasRunning := b.running
	b.running = false
	b.runMu.Unlock()
	if !wasRunning {
		return nil
	}

	go b.bot.Stop()

	done := make(chan struct{})
	go func() {
		b.runWG.Wait()
		close(done)
	}()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-done:
		b.log.Info("telegram polling stopped")
	case <-t.C:
		b.log.Warn("telegram stop timed out; abandoning poll loop")
	}
	return nil
}

// CronCallback returns the scheduler consumer for this frontend: the fired
// payload runs through the model like a user turn and the reply lands in the
// last active chat. Before any chat has been seen there is nowhere to
// deliver, which is logged and dropped.
func (b *Bot) CronCallback() scheduler.Callback {
	return func(ctx context.Context, message string) {
		res := b.pipe.ProcessCron(ctx, message)

		b.chatMu.Lock()
		to := b.lastChat
		b.chatMu.Unlock()
		if to == nil {
			b.log.Warn("cron fired before any telegram chat; reply dropped")
			return
		}
		for _, n := range res.Notes {
			b.send(ctx, to, n)
		}
		if res.Reply != "" {
			b.send(ctx, to, "⏰ "+res.Reply)
		}
	}
}

func (b *Bot) allowed(userID int64) bool {
	if len(b.cfg.AllowedUsers) == 0 {
		return true
	}
	for _, id := range b.cfg.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// restrict drops updates from users outside the allow-list.
func (b *Bot) restrict(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if s := c.Sender(); s != nil && !b.allowed(s.ID) {
			b.log.Warn("rejected message from unauthorized user", logx.Int64("user", s.ID))
			return nil
		}
		return next(c)
	}
}

func (b *Bot) rememberChat(c tele.Context) {
	if ch := c.Chat(); ch != nil {
		b.chatMu.Lock()
		b.lastChat = ch
		b.chatMu.Unlock()
	}
}

// send splits text into Telegram-sized chunks behind the rate limiter.
func (b *Bot) send(ctx context.Context, to tele.Recipient, text string) {
	for _, chunk := range chunkText(text, chunkSize) {
		if err := b.limiter.Wait(ctx); err != nil {
			return
		}
		if _, err := b.bot.Send(to, chunk); err != nil {
			b.log.Error("failed to send telegram message", logx.Err(err))
			return
		}
	}
}

// chunkText splits text into pieces of at most size bytes, backing each cut
// off to a rune boundary so no chunk carries a torn multibyte character,
// which Telegram rejects as invalid UTF-8.
func chunkText(text string, size int) []string {
	if text == "" {
		return nil
	}
	var chunks []string
	for len(text) > size {
		n := size
		for n > 0 && !utf8.RuneStart(text[n]) {
			n--
		}
		if n == 0 {
			n = size
		}
		chunks = append(chunks, text[:n])
		text = text[n:]
	}
	return append(chunks, text)
}

func (b *Bot) reply(c tele.Context, text string) error {
	b.send(context.Background(), c.Chat(), text)
	return nil
}

func (b *Bot) handleText(c tele.Context) error {
	m := c.Message()
	if m == nil || strings.TrimSpace(m.Text) == "" {
		return nil
	}
	b.rememberChat(c)

	text := m.Text
	b.log.Info("message received", logx.String("preview", preview(text, 80)))

	_ = c.Notify(tele.Typing)

	res := b.pipe.Process(context.Background(), text)
	for _, n := range res.Notes {
		b.send(context.Background(), c.Chat(), n)
	}
	if res.Reply != "" {
		b.send(context.Background(), c.Chat(), res.Reply)
	}
	return nil
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func shortTask(message string) string {
	if len(message) > 50 {
		return message[:47] + "..."
	}
	return message
}

func formatKB(size int64) string {
	return fmt.Sprintf("%.1f KB", float64(size)/1024.0)
}

func parseJobID(arg string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	return id, err == nil
}
