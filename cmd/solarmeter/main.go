package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/solarmeter/solarmeter/pkg/daynight"
	"github.com/solarmeter/solarmeter/pkg/log"
	"github.com/solarmeter/solarmeter/pkg/metrics"
	"github.com/solarmeter/solarmeter/pkg/poller"
	"github.com/solarmeter/solarmeter/pkg/pv"
	"github.com/solarmeter/solarmeter/pkg/server"
	"github.com/solarmeter/solarmeter/pkg/store"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

func main() {
	// init packages
	st := store.Configured()
	vendors := pv.Configured(st)
	dn := daynight.Configured()
	mx := metrics.Configured()
	p := poller.Configured(st, vendors, dn, mx)

	// init server
	srv := server.Configured(st, p, mx)

	// parse flags
	lflag.Configure()

	var level slog.Level
	// lflag automatically sets llog's level, but we need to set the slog level
	switch llog.GetLevel() {
	case llog.DebugLevel:
		level = slog.LevelDebug
	case llog.InfoLevel:
		level = slog.LevelInfo
	case llog.WarnLevel:
		level = slog.LevelWarn
	case llog.ErrorLevel:
		level = slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := st.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()

	// the poll loop and the status server run until either fails or the
	// context is canceled; one exiting takes the other down
	errChan := make(chan error, 2)
	go func() {
		errChan <- srv.Run(ctx)
	}()
	go func() {
		errChan <- p.Run(ctx)
	}()

	err := <-errChan
	cancel()
	<-errChan

	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "exited with error", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "exited cleanly")
}
