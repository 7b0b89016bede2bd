package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gwi.com/polyglot-chat/internal/api"
	"gwi.com/polyglot-chat/internal/auth"
	"gwi.com/polyglot-chat/internal/cache"
	"gwi.com/polyglot-chat/internal/config"
	"gwi.com/polyglot-chat/internal/core"
	"gwi.com/polyglot-chat/internal/logger"
	"gwi.com/polyglot-chat/internal/realtime"
	"gwi.com/polyglot-chat/internal/store"
)

func main() {
	// Command line flag for seeding accounts
	importUsersFile := flag.String("import-users", "", "Import users from a Markdown table (| username | language |). "+
		"With STORE_DRIVER=sqlite the process exits afterwards; with the memory store it keeps serving the seeded users")
	flag.Parse()

	// Load configuration
	dotenvFound, err := config.LoadConfig()
	if err != nil {
		_ = logger.Init("info", "console")
		logger.Fatal("Failed to load configuration", err)
	}

	// Setup logging
	if err := logger.Init(config.AppConfig.LogLevel, config.AppConfig.LogFormat); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	if !dotenvFound {
		logger.Info("No .env file found, using environment variables")
	}
	logger.Debugf("Service starting with store driver %q", config.AppConfig.StoreDriver)

	// Initialize store
	chatStore, err := openStore(config.AppConfig)
	if err != nil {
		logger.Fatal("Failed to initialize store", err)
	}
	defer chatStore.Close()

	if *importUsersFile != "" {
		keepServing, err := importUsers(context.Background(), config.AppConfig.StoreDriver, chatStore, *importUsersFile)
		if err != nil {
			logger.Fatal("User import failed", err)
		}
		if !keepServing {
			return
		}
	}

	if err := config.AppConfig.RequireServerSecrets(); err != nil {
		logger.Fatal("Missing server configuration", err)
	}

	// Initialize translation
	gemini, err := core.NewGeminiTranslator(context.Background(), core.GeminiOptions{
		APIKey:         config.AppConfig.GeminiAPIKey,
		Model:          config.AppConfig.GeminiModel,
		Temperature:    config.AppConfig.TranslationTemp,
		Attempts:       config.AppConfig.TranslationAttempts,
		AttemptTimeout: config.AppConfig.TranslationTimeout,
	})
	if err != nil {
		logger.Fatal("Failed to initialize translator", err)
	}
	defer gemini.Close()

	var translator core.TranslationProvider = gemini
	if config.AppConfig.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(config.AppConfig.RedisURL, "polyglot:")
		if err != nil {
			logger.Fatal("Failed to connect to Redis", err)
		}
		defer redisCache.Close()
		translator = core.NewCachingTranslator(gemini, redisCache, config.AppConfig.TranslationCacheTTL)
		logger.Infof("Translation cache enabled (ttl %s)", config.AppConfig.TranslationCacheTTL)
	}

	// Initialize services
	hub := realtime.NewHub()
	chatService := core.NewChatService(chatStore, translator, hub)
	tokens := auth.NewTokenIssuer(config.AppConfig.JWTSecret, config.AppConfig.TokenTTL)

	apiHandler := api.NewAPIHandler(chatService, tokens, hub)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second, // a send waits for every translation attempt
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Infof("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Could not listen on %s: %v", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// Hijacked WebSocket connections are not tracked by srv.Shutdown.
	hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", err)
		return
	}

	logger.Info("Server exiting gracefully")
}

func openStore(cfg config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "sqlite":
		logger.Infof("Using SQLite store at %s", cfg.DatabaseURL)
		sqliteStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return sqliteStore, nil
	default:
		logger.Info("Using in-memory store; data is lost on restart")
		return store.NewMemoryStore(), nil
	}
}

// importUsers seeds chatStore from path. A durable store is seeded offline and
// the process should exit; the memory store only lives as long as this
// process, so it is seeded at startup and the server keeps running.
func importUsers(ctx context.Context, driver string, chatStore store.UserDirectory, path string) (bool, error) {
	logger.Infof("Importing users from %s...", path)
	n, err := store.ImportUsersFromFile(ctx, chatStore, path)
	if err != nil {
		return false, err
	}

	if driver == "sqlite" {
		logger.Infof("User import complete. Imported %d users. Exiting.", n)
		return false, nil
	}
	logger.Infof("Seeded %d users into the in-memory store; they last until the server stops.", n)
	return true, nil
}
