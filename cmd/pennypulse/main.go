package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pennypulse/pennypulse/internal/config"
	"github.com/pennypulse/pennypulse/internal/dedup"
)

// Exit codes per the operational contract.
const (
	exitOK        = 0
	exitConfig    = 2
	exitStorage   = 3
	exitInterrupt = 130
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := Execute(ctx); err != nil {
		os.Exit(exitCodeFor(ctx, err))
	}
}

func exitCodeFor(ctx context.Context, err error) int {
	fmt.Fprintln(os.Stderr, "pennypulse:", err)

	var cfgErr *config.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		return exitConfig
	case errors.Is(err, dedup.ErrCorrupt):
		return exitStorage
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return exitInterrupt
	default:
		return 1
	}
}
