package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/reflexapp/reflex-backend/internal/app"
	"github.com/reflexapp/reflex-backend/internal/auth"
	"github.com/reflexapp/reflex-backend/internal/cache"
	"github.com/reflexapp/reflex-backend/internal/config"
	"github.com/reflexapp/reflex-backend/internal/db"
	"github.com/reflexapp/reflex-backend/internal/logger"
	"github.com/reflexapp/reflex-backend/internal/notify"
	"github.com/reflexapp/reflex-backend/internal/nsfw"
	"github.com/reflexapp/reflex-backend/internal/ranking"
	"github.com/reflexapp/reflex-backend/internal/repository"
	"github.com/reflexapp/reflex-backend/internal/server"
	"github.com/reflexapp/reflex-backend/internal/service/decision"
	"github.com/reflexapp/reflex-backend/internal/service/match"
	"github.com/reflexapp/reflex-backend/internal/service/photo"
	"github.com/reflexapp/reflex-backend/internal/service/recommend"
	"github.com/reflexapp/reflex-backend/internal/trust"
	"github.com/reflexapp/reflex-backend/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg := config.New()
	logger.InitFromConfig(cfg)

	database, err := db.NewDB(cfg)
	if err != nil {
		logger.Error("database init failed", "err", err)
		os.Exit(1)
	}

	redisCache := cache.NewRedisCache(cfg)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisCache.Ping(pingCtx); err != nil {
		logger.Warn("redis unavailable, like counters disabled", "addr", cfg.Redis.Addr, "err", err)
		redisCache = nil
	}
	cancel()

	var notifier notify.Notifier
	if cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegram(cfg.Telegram.BotToken)
		if err != nil {
			logger.Warn("telegram init failed, notifications disabled", "err", err)
		} else {
			notifier = tg
		}
	}

	appCtx := app.New(database, redisCache, logger.L(), notifier)

	var oracle ranking.Ranker
	if cfg.Oracle.Command != "" {
		oracle = ranking.NewProcessRanker(cfg.Oracle.Command, cfg.Oracle.Args)
	}

	var classifier nsfw.Classifier
	if cfg.NSFW.Command != "" {
		classifier = nsfw.NewProcessClassifier(cfg.NSFW.Command, cfg.NSFW.Args)
	}

	if cfg.App.ENV == "development" && os.Getenv("SEED_ON_START") != "" {
		if err := db.SeedTestData(database); err != nil {
			logger.Error("seeding failed", "err", err)
			os.Exit(1)
		}
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	recommender := recommend.NewService(appCtx, oracle)
	matcher := match.NewService(appCtx)
	decisions := decision.NewService(appCtx, matcher)
	trustSvc := trust.NewService(repository.NewUserRepository(database))
	photos := photo.NewService(appCtx, classifier, trustSvc)

	registry := ws.NewRegistry()
	swipeEngine := ws.NewSwipeEngine(appCtx, recommender, decisions)
	chatEngine := ws.NewChatEngine(appCtx, registry)

	srv := server.New(cfg,
		ws.NewRegistrar(tokens, swipeEngine, chatEngine),
		photo.NewRegistrar(tokens, photos),
	)

	go func() {
		if err := srv.Run(); err != nil {
			logger.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "err", err)
	}
}
