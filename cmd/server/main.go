package main

// Package main is the entry point for the claudeway gateway server.
//
// Responsibilities:
//   - Load and validate configuration from YAML file and environment variables
//   - Build the structured logger
//   - Start the HTTP server exposing /v1/messages, /health, and /metrics
//   - Watch the configuration file and hot-swap the model table
//   - Implement graceful shutdown on SIGINT/SIGTERM
//
// Architecture Flow:
//   1. Anthropic-style request (POST /v1/messages) → Normalizer → canonical form
//   2. Canonical form → OpenAI request builder + model-family adapter
//   3. Upstream chat-completions SSE stream → translator → Anthropic SSE stream
//   4. Non-streaming clients get the same stream assembled into one JSON body

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/claudeway/claudeway/internal/config"
	"github.com/claudeway/claudeway/internal/logging"
	"github.com/claudeway/claudeway/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	// Load configuration from file, environment, and defaults
	manager := config.NewManager(*configPath)
	cfg, err := manager.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateStrict(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  100,
		MaxBackups: 5,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	srv, err := server.NewServer(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create server: %v\n", err)
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start server: %v\n", err)
		os.Exit(1)
	}

	// Model table follows the config file without a restart
	manager.Watch(srv.ApplyConfig)

	// Wait for shutdown signal (Ctrl+C or SIGTERM)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	fmt.Println("\nReceived shutdown signal...")

	if err := srv.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error stopping server: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Shutdown complete")
}
