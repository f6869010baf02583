package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"repopal/pkg/agent"
	"repopal/pkg/config"
	"repopal/pkg/github"
	"repopal/pkg/llm"
	"repopal/pkg/log"
	"repopal/pkg/server"
	"repopal/pkg/store"
)

func handleServe() error {
	env, err := config.Validate()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := log.New(env.Debug)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	shuttingDown := make(chan struct{}, 1)

	go func() {
		for sig := range sigCh {
			select {
			case <-shuttingDown:
				// Second signal, force exit
				logger.Error("Force stopping...")
				os.Exit(1)
			default:
				// First signal, graceful shutdown
				logger.Info("Received signal: %v", sig)
				logger.Info("Press Ctrl+C again to force stop")
				shuttingDown <- struct{}{}
				cancel()
			}
		}
	}()

	db, err := store.Open(env.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	ghClient := github.New(logger)
	if ghClient == nil {
		return fmt.Errorf("failed to create GitHub client")
	}

	primary := llm.NewClient("openai", "", env.OpenAIKey, "")
	var fallback llm.Provider
	if env.FallbackKey != "" {
		fallback = llm.NewClient("fallback", env.FallbackURL, env.FallbackKey, env.FallbackModel)
	}
	adapter := llm.NewAdapter(logger, primary, fallback)

	pipeline, err := agent.New(logger, adapter, ghClient)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	undoer := agent.NewUndoer(logger, ghClient)

	srv, err := server.New(logger, pipeline, undoer, db, env.Port)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
