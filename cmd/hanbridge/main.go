package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"

	"github.com/raterudder/hanbridge/pkg/device"
	"github.com/raterudder/hanbridge/pkg/log"
	"github.com/raterudder/hanbridge/pkg/poller"
	"github.com/raterudder/hanbridge/pkg/sensor"
	"github.com/raterudder/hanbridge/pkg/server"
	"github.com/raterudder/hanbridge/pkg/store"
)

func main() {
	// init packages
	dev := device.Configured()
	st := store.New()
	p := poller.Configured(dev, st)
	srv := server.Configured(p, st, dev, p.Collectors()...)

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
	log.SetDefaultLogLevel(level)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = log.With(ctx, logger.With(slog.String("host", dev.Host())))

	if err := dev.Validate(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid device configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if err := p.Validate(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "invalid poller configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// the first poll has to succeed before anything is reported as ready
	if err := p.Init(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to initialize", slog.Any("error", err))
		os.Exit(1)
	}
	srv.Register(sensor.Defaults(dev.Host(), st.Identity()))

	if err := p.Start(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to start polling", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		select {
		case <-p.Stop().Done():
		case <-time.After(10 * time.Second):
			log.Ctx(ctx).WarnContext(ctx, "timed out waiting for poll cycle to finish")
		}
	}()

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", "error", err)
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}
