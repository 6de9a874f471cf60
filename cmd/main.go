package main

import (
	"claimchat/backend/internal/api/handler"
	"claimchat/backend/internal/auth"
	"claimchat/backend/internal/chathub"
	"claimchat/backend/internal/claims"
	"claimchat/backend/internal/config"
	"claimchat/backend/internal/localization"
	"claimchat/backend/internal/logger"
	"claimchat/backend/internal/realtime"
	"claimchat/backend/internal/retry"
	"claimchat/backend/internal/storage"
	"claimchat/backend/internal/telegram"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func setupBus(ctx context.Context, cfg config.Config) (realtime.Bus, func()) {
	if cfg.RedisAddr == "" {
		slog.Warn("REDIS_ADDR is empty, room events stay inside this process")
		return realtime.NewLocalBus(), func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("failed to connect Redis", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}
	return realtime.NewRedisBus(rdb), func() { _ = rdb.Close() }
}

func main() {
	cfg := config.Load()
	logger.Setup(cfg)
	slog.Info("starting claimchat backend", "env", cfg.Env, "db_driver", cfg.DatabaseDriver)

	if missing := cfg.Validate(); len(missing) > 0 {
		slog.Error("missing required configuration", "keys", missing)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	if err := storage.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	store := storage.NewStorageService(db)

	bus, closeBus := setupBus(ctx, cfg)
	defer closeBus()

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		slog.Error("invalid NODE_ID", "node_id", cfg.NodeID, "error", err)
		os.Exit(1)
	}

	texts := localization.Default()
	tokens := auth.NewIssuer(cfg.JWTSecret)
	messages := claims.NewMessageService(store, bus, node)
	rooms := claims.NewRoomService(store, messages, bus, retry.New(cfg.RoomRetryMax, cfg.RoomRetryBaseDelay))
	rooms.Texts = texts
	rooms.Lang = cfg.Locale

	var (
		notifier *telegram.Notifier
		bot      *telegram.BotService
	)
	if cfg.TelegramBotToken != "" {
		api, err := telegram.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			slog.Error("telegram disabled", "error", err)
		} else {
			notifier = telegram.NewNotifier(api, store, texts, cfg.Locale)
			rooms.Notifier = notifier
			bot = telegram.NewBotService(api, store, tokens, texts, cfg.Locale)
		}
	} else {
		slog.Info("TELEGRAM_BOT_TOKEN not set, notifications disabled")
	}

	hub := chathub.NewManagerService(
		claims.NewResolver(auth.ContextProvider{}, store),
		chathub.SessionDeps{Rooms: rooms, Messages: messages, Bus: bus, Texts: texts, Lang: cfg.Locale},
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	handler.NewHandler(hub, rooms, messages, store, tokens).Register(r)

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		slog.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if bot != nil {
		g.Go(func() error { return bot.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		slog.Error("server stopped with error", "error", err)
	}
	if notifier != nil {
		notifier.Wait()
	}
	slog.Info("claimchat backend stopped")
}
