package main

import (
	"fmt"
	"os"

	"github.com/ayothedoc3/labyrinthos-contracts/internal/auth"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/config"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/db"
	httphandler "github.com/ayothedoc3/labyrinthos-contracts/internal/http"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/http/middleware"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/logger"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/notify"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/repository"
	"github.com/ayothedoc3/labyrinthos-contracts/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)

	database, err := db.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	store := repository.NewContractStore(database, cfg.Lifecycle.LockTimeout)
	notifier := notify.NewLogNotifier(log)

	contractService := service.NewContractService(store, notifier, log)
	bidService := service.NewBidService(store, notifier, log)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)
	handler := httphandler.NewHandler(contractService, bidService, log)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	log.Info().Str("addr", addr).Msg("starting contracts service")

	if err := router.Run(addr); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
