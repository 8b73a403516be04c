// cmd/discord/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/keshon/lavalink-client/internal/config"
	"github.com/keshon/lavalink-client/internal/discord"
	"github.com/keshon/lavalink-client/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := logging.New(cfg.LogLevel, cfg.LogPretty)
	logger.Info().Msg("Starting music bot")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bot := discord.NewBot(cfg, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := bot.Run(ctx); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("Received signal, shutting down")
		cancel()
		<-errCh
	case err, ok := <-errCh:
		if ok && err != nil {
			logger.Error().Err(err).Msg("Discord bot error")
			cancel()
			os.Exit(1)
		}
	}

	logger.Info().Msg("Discord bot exited cleanly")
}
