package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"tickcast/internal/infrastructure/config"
	"tickcast/internal/infrastructure/logger"
	"tickcast/internal/infrastructure/svc"
	"tickcast/internal/interfaces/httpapi"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	logger.Setup("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.Setup(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service initialization failed")
	}

	server := httpapi.NewServer(cfg.App.HTTPAddr, sc.Handler)

	log.Info().
		Str("config", *configPath).
		Str("addr", cfg.App.HTTPAddr).
		Int("symbols", sc.Catalog.Len()).
		Dur("interval", cfg.TickInterval()).
		Str("storage", cfg.Storage.Driver).
		Bool("redis", cfg.Redis.Enabled).
		Bool("kafka", cfg.Kafka.Enabled).
		Msg("tickcast started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		err := sc.Broadcast.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("tickcast exited with error")
	}

	if sc.Console != nil {
		_ = sc.Console.WriteSnapshot(time.Now(), sc.Book.Snapshot())
	}
	if err := sc.Close(); err != nil {
		log.Error().Err(err).Msg("cleanup failed")
	}
	log.Info().Msg("shutdown complete")
}
