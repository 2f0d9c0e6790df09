package main

import (
	"flag"
	"log"
	"os"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/di"
	"github.com/algorithmical-ai/automated-day-trading-sub001/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s backend=%s timeframe=%s", cfg.Environment, cfg.Backend.Type, cfg.Alpaca.Timeframe)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
