// Command costlens serves the billing-export analysis API: CSV upload and
// normalization, anomaly detection, savings recommendations, read-only SQL
// passthrough, and natural-language questions over the persisted data.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/rshade/costlens/internal/nlquery"
	"github.com/rshade/costlens/internal/server"
	"github.com/rshade/costlens/internal/store"
)

func main() {
	config, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		stderrLogger := zerolog.New(os.Stderr)
		stderrLogger.Fatal().Err(err).Msg("Invalid configuration")
	}

	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	st, err := store.Open(config.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("path", config.DBPath).Msg("Opening database failed")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error().Err(err).Msg("Closing database failed")
		}
	}()

	var asker server.Asker
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		asker = nlquery.New(openai.NewClient(apiKey), config.OpenAIModel, st, logger)
	} else {
		logger.Warn().Msg("OPENAI_API_KEY not set; /ask endpoint disabled")
	}

	srv := server.New(st, asker, logger, server.WithMaxUploadBytes(config.MaxUploadBytes))
	httpServer := &http.Server{
		Addr:    config.ListenAddr,
		Handler: srv.Handler(),
	}

	shutdownDone := make(chan struct{})
	go func() {
		signalChan := make(chan os.Signal, 1)
		signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
		<-signalChan

		ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("Shutdown failed")
		}
		close(shutdownDone)
	}()

	logger.Info().Str("addr", config.ListenAddr).Msg("Starting cost analyzer server")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("Server failed")
	}
	<-shutdownDone
}
