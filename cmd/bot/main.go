package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pdfbot/internal/app"
	"pdfbot/internal/config"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath string
		once    bool
	)
	flag.StringVar(&cfgPath, "config", os.Getenv("CONFIG_FILE"), "optional config file (.json, .yaml)")
	flag.BoolVar(&once, "once", false, "run a single check and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		fatal(err)
	}
	st, err := cfg.Resolve()
	if err != nil {
		fatal(err)
	}

	a, err := app.New(cfgm, st)
	if err != nil {
		fatal(err)
	}

	if once {
		res := a.RunOnce(ctx)
		_ = a.Stop(context.Background(), "once")
		if res.ListErr != nil || res.SaveErr != nil || res.Failed > 0 {
			os.Exit(1)
		}
		return
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = a.Stop(context.Background(), "start failed")
		os.Exit(1)
	}

	reason := "signal"
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = "fatal error"
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func fatal(err error) {
	if config.IsConfigError(err) {
		fmt.Fprintln(os.Stderr, "invalid configuration:")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	fmt.Fprintln(os.Stderr, "fatal:", err)
	os.Exit(1)
}
