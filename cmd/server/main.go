package main

import (
	"mailmind/internal/cache"
	"mailmind/internal/classifier"
	"mailmind/internal/config"
	"mailmind/internal/handlers"
	"mailmind/internal/llm"
	"mailmind/internal/orchestrator"
	"mailmind/internal/provider"
	"mailmind/internal/server"
	"mailmind/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger
	logger := cfg.SetupLogger()

	// Initialize database connection
	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Warn().Err(err).Msg("Database connection failed")
		logger.Info().Msg("Starting server without database connection")
	} else {
		logger.Info().Msg("Database connection established successfully")
	}

	// The assistant needs the account store, so it only comes up with a
	// database. Without one the server still serves health endpoints.
	var assistant handlers.Assistant
	if db != nil {
		accounts, err := store.NewAccountStore(db)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize account store")
		}
		drafts, err := store.NewDraftStore(db)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize draft store")
		}
		conversations, err := store.NewConversationStore(db)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize conversation store")
		}

		descriptors := llm.DefaultDescriptors()
		if cfg.Models != "" {
			descriptors, err = llm.ParseDescriptors(cfg.Models)
			if err != nil {
				logger.Fatal().Err(err).Msg("Invalid MODELS configuration")
			}
		}
		registry, err := llm.NewRegistry(descriptors)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to build model registry")
		}

		client := llm.NewClient(cfg, registry, logger)
		factory := provider.NewFactory(cfg, accounts, logger)
		ranker := classifier.NewRanker(cfg, client, cache.New(), logger)

		assistant = orchestrator.New(orchestrator.Options{
			LLM:            client,
			Accounts:       accounts,
			Drafts:         drafts,
			Conversations:  conversations,
			Mailboxes:      factory,
			Ranker:         ranker,
			HistoryLimit:   cfg.HistoryLimit,
			DraftListLimit: cfg.DraftSelectLimit,
			Logger:         logger,
		})
	}

	// Create and initialize server
	srv := server.New(cfg, db, assistant, logger)
	srv.Initialize()

	// Start server
	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Server failed to start")
	}
}
