package main

import (
	"net/http"
	"os"

	"github.com/rcollard/chatd/internal/api"
	"github.com/rcollard/chatd/internal/config"
	"github.com/rcollard/chatd/internal/db"
	"github.com/rcollard/chatd/internal/llm"
	"github.com/rcollard/chatd/internal/shell"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := config.Load()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize database",
			zap.Error(err),
			zap.String("dbPath", cfg.DBPath))
	}

	var provider llm.Streamer
	switch cfg.Provider {
	case "openai":
		provider, err = llm.NewOpenAIClient(
			cfg.OllamaURL+"/v1/",
			os.Getenv("OPENAI_API_KEY"),
			cfg.Model,
			cfg.Temperature,
			cfg.MaxTokens,
		)
		if err != nil {
			logger.Fatal("failed to initialize openai provider", zap.Error(err))
		}
	default:
		provider = llm.NewOllamaClient(cfg.OllamaURL, cfg.Model, cfg.Temperature, cfg.MaxTokens, logger)
	}

	var policy llm.ContextPolicy
	switch cfg.ContextPolicy {
	case "window":
		policy, err = llm.NewWindowPolicy(cfg.SystemPrompt, cfg.ContextBudget)
		if err != nil {
			logger.Fatal("failed to initialize context policy", zap.Error(err))
		}
	default:
		policy = llm.ReplayAllPolicy{SystemPrompt: cfg.SystemPrompt}
	}

	llmService := llm.NewService(provider, database, policy, logger)
	runner := shell.NewRunner(cfg.AllowedCommands, logger)
	handler := api.NewHandler(database, llmService, runner, logger)

	mux := http.NewServeMux()
	handler.Register(mux)

	// Serve the browser client
	mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))

	logger.Info("starting server",
		zap.String("addr", cfg.Addr),
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model))

	err = http.ListenAndServe(cfg.Addr, mux)
	logger.Error("server stopped", zap.Error(multierr.Append(err, database.Close())))
	os.Exit(1)
}
