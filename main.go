package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/podscribe/backend/internal/api"
	"github.com/podscribe/backend/internal/config"
	"github.com/podscribe/backend/internal/fetch"
	"github.com/podscribe/backend/internal/store"
	"github.com/podscribe/backend/internal/transcription"
)

func main() {
	cfg := config.Load()

	// Ensure data directory exists
	os.MkdirAll(cfg.DataPath, 0755)

	// Initialize transcript store
	st, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize transcript store: %v", err)
	}
	defer st.Close()

	// Build the transcription pipeline with the configured providers
	service := transcription.NewService(fetch.New(), st)
	if cfg.AssemblyAIKey != "" {
		service.RegisterProvider(transcription.NewAssemblyAIClient(cfg.AssemblyAIKey))
	}
	if cfg.DeepgramKey != "" {
		service.RegisterProvider(transcription.NewDeepgramClient(cfg.DeepgramKey))
	}

	// Create router
	router := api.NewRouter(service, st, cfg)

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("Starting server on %s", addr)
	log.Printf("Transcript store: %s", cfg.DBPath)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		st.Close()
		os.Exit(0)
	}()

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
