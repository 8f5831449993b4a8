// Package core wires the assistant together: config, logging, store, memory,
// agent, scheduler and the chosen frontends.
package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"clawbot/internal/agent"
	"clawbot/internal/chat"
	"clawbot/internal/config"
	"clawbot/internal/facts"
	"clawbot/internal/scheduler"
	"clawbot/internal/store"
	"clawbot/internal/telegram"
	"clawbot/internal/tui"
	"clawbot/internal/workspace"
	"clawbot/pkg/logx"
)

// Mode selects which frontends run.
type Mode string

const (
	ModeTelegram Mode = "telegram"
	ModeTUI      Mode = "tui"
	ModeBoth     Mode = "both"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeTelegram:
		return ModeTelegram, nil
	case ModeTUI:
		return ModeTUI, nil
	case ModeBoth, "":
		return ModeBoth, nil
	}
	return "", fmt.Errorf("unknown mode %q (want telegram, tui or both)", s)
}

func (m Mode) telegram() bool { return m == ModeTelegram || m == ModeBoth }
func (m Mode) tui() bool      { return m == ModeTUI || m == ModeBoth }

type App struct {
	cfgPath string
	mode    Mode

	cfgm *config.Manager
	cfg  *config.Config

	logs *logx.Service
	log  logx.Logger

	st    *store.Store
	facts *facts.Store
	agent *agent.Agent
	ws    *workspace.Workspace
	sched *scheduler.Scheduler
	pipe  *chat.Pipeline

	bot *telegram.Bot
	ui  *tui.UI
}

func NewApp(cfgPath string, mode Mode) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.ConsoleEnabled() && !mode.tui(),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled || mode.tui(),
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	st, err := store.Open(store.Config{Path: cfg.Memory.Database}, log.With(logx.String("comp", "store")))
	if err != nil {
		logs.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	fs := facts.New(cfg.Memory.FactsFile, systemPrompt(cfg.SystemPrompt), log.With(logx.String("comp", "facts")))

	ag := agent.New(agent.Config{
		Host:          cfg.Ollama.Host,
		Model:         cfg.Ollama.Model,
		ContextLength: cfg.Ollama.ContextLength,
		Temperature:   cfg.Ollama.Temperature,
	}, fs, log.With(logx.String("comp", "agent")))

	ws, err := workspace.New(cfg.Workspace.Path, st, log.With(logx.String("comp", "workspace")))
	if err != nil {
		st.Close()
		logs.Close()
		return nil, fmt.Errorf("open workspace: %w", err)
	}

	sched := scheduler.New(st, log.With(logx.String("comp", "scheduler")))

	pipe := chat.NewPipeline(ag, st, sched, ws, fs,
		cfg.Memory.MaxHistory, cfg.Scheduler.IsEnabled(),
		log.With(logx.String("comp", "chat")))

	app := &App{
		cfgPath: cfgPath,
		mode:    mode,
		cfgm:    cfgm,
		cfg:     cfg,
		logs:    logs,
		log:     log,
		st:      st,
		facts:   fs,
		agent:   ag,
		ws:      ws,
		sched:   sched,
		pipe:    pipe,
	}

	status := tui.Status{
		Model:         ag.Model(),
		Host:          ag.Host(),
		ContextLength: ag.ContextLength(),
	}

	if mode.telegram() {
		pollTimeout, err := durationOrDefault(cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			app.closeEarly()
			return nil, fmt.Errorf("telegram.poll_timeout: %w", err)
		}
		bot, err := telegram.New(telegram.Config{
			Token:        cfg.Telegram.Token,
			AllowedUsers: cfg.Telegram.AllowedUsers,
			PollTimeout:  pollTimeout,
		}, telegram.Deps{
			Pipeline:     pipe,
			Scheduler:    sched,
			Workspace:    ws,
			Status:       telegram.Status(status),
			ClearFacts:   fs.Clear,
			CurrentFacts: fs.Facts,
			FactsSize:    fs.CheckSize,
			ClearHistory: st.ClearHistory,
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			app.closeEarly()
			return nil, fmt.Errorf("telegram: %w", err)
		}
		app.bot = bot
		sched.AddCallback(bot.CronCallback())
	}

	if mode.tui() {
		ui := tui.New(tui.Deps{
			Pipeline:     pipe,
			Scheduler:    sched,
			Workspace:    ws,
			Status:       status,
			ClearFacts:   fs.Clear,
			CurrentFacts: fs.Facts,
			ClearHistory: st.ClearHistory,
		}, log.With(logx.String("comp", "tui")))
		app.ui = ui
		sched.AddCallback(ui.CronCallback())
	}

	return app, nil
}

// Start brings up background pieces and returns. The TUI, when enabled, is
// run separately via RunTUI so it can own the terminal.
func (a *App) Start(ctx context.Context) error {
	if a.cfg.Scheduler.IsEnabled() {
		if err := a.sched.Load(ctx); err != nil {
			return fmt.Errorf("load jobs: %w", err)
		}
	} else {
		a.log.Info("scheduler disabled by config")
	}

	a.agent.WarmUp(ctx)

	if a.bot != nil {
		if err := a.bot.Start(ctx); err != nil {
			return fmt.Errorf("telegram start: %w", err)
		}
	}

	go a.watchConfig(ctx)

	// Best effort: no-op outside a systemd unit.
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify skipped", logx.Err(err))
	}

	a.log.Info("started",
		logx.String("mode", string(a.mode)),
		logx.String("model", a.agent.Model()),
		logx.Bool("scheduler", a.cfg.Scheduler.IsEnabled()))
	return nil
}

// RunTUI blocks in the terminal UI until the user quits. No-op when the mode
// has no terminal frontend.
func (a *App) RunTUI(ctx context.Context) error {
	if a.ui == nil {
		<-ctx.Done()
		return nil
	}
	return a.ui.Run(ctx)
}

// watchConfig hot-reloads the file; only logging settings apply live.
func (a *App) watchConfig(ctx context.Context) {
	sub := a.cfgm.Subscribe()
	defer a.cfgm.Unsubscribe(sub)

	go func() {
		if err := a.cfgm.Watch(ctx); err != nil && ctx.Err() == nil {
			a.log.Warn("config watcher stopped", logx.Err(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			a.logs.Apply(logx.Config{
				Level:   newCfg.Logging.Level,
				Console: newCfg.Logging.ConsoleEnabled() && !a.mode.tui(),
				File: logx.FileConfig{
					Enabled: newCfg.Logging.File.Enabled || a.mode.tui(),
					Path:    newCfg.Logging.File.Path,
				},
			})
			a.log.Info("config reloaded", logx.String("level", newCfg.Logging.Level))
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.bot != nil {
		_ = a.bot.Stop(ctx)
	}
	a.sched.Stop()

	if err := a.st.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
	}
	a.log.Info("stopped")
	return a.logs.Close()
}

// closeEarly releases what NewApp built before a later step failed.
func (a *App) closeEarly() {
	if a.st != nil {
		_ = a.st.Close()
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

func durationOrDefault(s string, def time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
