package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clawbot/internal/core"
)

func main() {
	var (
		cfgPath string
		modeArg string
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml")
	flag.StringVar(&modeArg, "mode", "both", "frontends to run: telegram, tui or both")
	flag.Parse()

	mode, err := core.ParseMode(modeArg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := core.NewApp(cfgPath, mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if err := app.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = app.Stop(context.Background())
		os.Exit(1)
	}

	// Blocks in the terminal UI when one is configured, otherwise until a
	// signal arrives.
	if err := app.RunTUI(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "tui:", err)
	}
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	_ = app.Stop(stopCtx)
}
