// Package main is the entry point for the anonymous chat server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"anon-chat-server/internal/bot"
	"anon-chat-server/internal/config"
	"anon-chat-server/internal/game"
	"anon-chat-server/internal/matchmaker"
	"anon-chat-server/internal/pkg/db"
	"anon-chat-server/internal/repository"
	"anon-chat-server/internal/router"
	"anon-chat-server/internal/service"
	"anon-chat-server/internal/session"
	"anon-chat-server/internal/ws"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations
	if err := runMigrations(ctx, dbPool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	chatRepo := repository.NewChatRepository(dbPool.Pool)
	messageRepo := repository.NewMessageRepository(dbPool.Pool)
	txRepo := repository.NewTransactionRepository(dbPool.Pool)
	statusRepo := repository.NewStatusRepository(dbPool.Pool)

	// Matchmaking queue: redis when configured, in-memory otherwise.
	var queueRepo matchmaker.Repo
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer rdb.Close()
		queueRepo = matchmaker.NewRedisRepo(rdb, cfg.Matchmaking.QueueTTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Matchmaking queue backed by redis")
	} else {
		queueRepo = matchmaker.NewMemoryRepo()
		log.Info().Msg("Matchmaking queue running in memory")
	}

	// Initialize hub, services and the router
	hub := ws.NewHub(log.Logger)
	defer hub.Close()

	sessionService := session.NewService(chatRepo, log.Logger)
	matchService := matchmaker.NewService(queueRepo, userRepo, sessionService, cfg.Matchmaking, log.Logger)
	escrowService := service.NewEscrowService(userRepo, txRepo, cfg.Games.MaxStake, log.Logger)
	gameService := service.NewGameService(game.NewManager(), escrowService, sessionService, hub, log.Logger)
	chatService := service.NewChatService(messageRepo, sessionService, hub, log.Logger)
	presenceService := service.NewPresenceService(statusRepo, sessionService, hub, log.Logger)

	router.New(hub, userRepo, matchService, sessionService, chatService, gameService, presenceService, log.Logger)

	// Run the matchmaking scanner
	go matchService.Run(ctx)

	// Optional Telegram entry bot
	if cfg.Bot.Token != "" {
		entryBot, err := bot.New(cfg.Bot.Token, cfg.Server.WebAppURL, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create bot")
		}
		go entryBot.Start()
		defer entryBot.Stop()
	}

	// HTTP surface: websocket endpoint plus a health probe.
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.Server.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	engine.Use(cors.New(corsConfig))

	engine.GET("/ws", ws.ServeWS(hub, log.Logger))
	engine.GET("/health", func(c *gin.Context) {
		if err := dbPool.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: engine,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Server is starting...")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Server stopped gracefully")
}

// runMigrations executes database migrations.
func runMigrations(ctx context.Context, pool *db.Pool) error {
	log.Info().Msg("Running database migrations...")

	// Migration 1: Create users table
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			age INT NOT NULL DEFAULT 0,
			interests TEXT[] NOT NULL DEFAULT '{}',
			coins BIGINT NOT NULL DEFAULT 0,
			rating_average DOUBLE PRECISION DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 1: users table created")

	// Migration 2: Create chats table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS chats (
			id VARCHAR(64) PRIMARY KEY,
			user1_id VARCHAR(64) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			user2_id VARCHAR(64) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			is_completed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_chats_user1_open ON chats(user1_id) WHERE is_completed = FALSE;
		CREATE INDEX IF NOT EXISTS idx_chats_user2_open ON chats(user2_id) WHERE is_completed = FALSE;
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 2: chats table created")

	// Migration 3: Create messages table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id VARCHAR(64) PRIMARY KEY,
			chat_id VARCHAR(64) NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
			user_id VARCHAR(64) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			text TEXT NOT NULL,
			reply_to VARCHAR(64),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_messages_chat_time ON messages(chat_id, created_at);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 3: messages table created")

	// Migration 4: Create transactions table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			amount BIGINT NOT NULL,
			type VARCHAR(50) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, created_at DESC);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 4: transactions table created")

	// Migration 5: Create user_statuses table
	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS user_statuses (
			user_id VARCHAR(64) PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			status VARCHAR(16) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}
	log.Info().Msg("Migration 5: user_statuses table created")

	return nil
}
