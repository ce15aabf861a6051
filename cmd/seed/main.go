package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/reflexapp/reflex-backend/internal/auth"
	"github.com/reflexapp/reflex-backend/internal/config"
	"github.com/reflexapp/reflex-backend/internal/db"
	"github.com/reflexapp/reflex-backend/internal/logger"
)

// Resets the database, loads the demo dataset and prints a signed socket
// token per user for manual testing.
func main() {
	_ = godotenv.Load()

	cfg := config.New()
	logger.InitFromConfig(cfg)

	database, err := db.NewDB(cfg)
	if err != nil {
		logger.Error("database init failed", "err", err)
		os.Exit(1)
	}

	if err := db.SeedTestData(database); err != nil {
		logger.Error("seeding failed", "err", err)
		os.Exit(1)
	}

	var users []db.User
	if err := database.Order("username").Find(&users).Error; err != nil {
		logger.Error("listing users failed", "err", err)
		os.Exit(1)
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	for _, u := range users {
		token, err := tokens.Sign(u.ID)
		if err != nil {
			logger.Error("token signing failed", "user_id", u.ID, "err", err)
			os.Exit(1)
		}
		fmt.Printf("%s\t%s\t%s\n", u.Username, u.ID, token)
	}
}
