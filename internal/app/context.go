package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/reflexapp/reflex-backend/internal/cache"
	"github.com/reflexapp/reflex-backend/internal/notify"
)

// AppContext holds shared dependencies (DB, Redis, Logger, Notifier).
type AppContext struct {
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Notifier   notify.Notifier
}

// New creates a new AppContext.
func New(db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger, notifier notify.Notifier) *AppContext {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &AppContext{
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Notifier:   notifier,
	}
}
