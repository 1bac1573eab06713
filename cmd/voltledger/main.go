package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
	"github.com/voltledger/voltledger/pkg/log"
	"github.com/voltledger/voltledger/pkg/report"
	"github.com/voltledger/voltledger/pkg/server"
	"github.com/voltledger/voltledger/pkg/storage"
	"github.com/voltledger/voltledger/pkg/weather"
)

func main() {
	// init packages
	s := storage.Configured()
	provider, weatherTimeout := weather.Configured()
	cache := weather.NewCache(provider, s)
	svc := report.Configured(s, cache)

	// init server
	srv := server.Configured(svc)

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
	log.SetDefaultLogLevel(level)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := provider.Validate(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid weather configuration", slog.Any("error", err))
		os.Exit(1)
	}
	cache.WithFetchTimeout(*weatherTimeout)
	log.Ctx(ctx).InfoContext(ctx, "reporting configured", slog.String("timezone", svc.Location().String()))

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", "error", err)
		}
	}()

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
