// Command todo-mcp-server exposes the todo and calendar tools over MCP on
// stdin/stdout, for desktop MCP clients.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"todo-assistant/internal/calendar"
	"todo-assistant/internal/config"
	"todo-assistant/internal/mcpserver"
	"todo-assistant/internal/storage"
	"todo-assistant/internal/tools"
)

func main() {
	// stdout carries the protocol
	log.SetOutput(os.Stderr)

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.DatabasePath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	cal := calendar.New(calendar.Options{
		ClientID:        cfg.GoogleClientID,
		ClientSecret:    cfg.GoogleClientSecret,
		RedirectURI:     cfg.GoogleRedirectURI,
		CredentialsPath: cfg.GoogleCredentialsPath,
		TokenPath:       cfg.GoogleTokenPath,
		TimeZone:        cfg.GoogleTimeZone,
	})
	if err := cal.Init(ctx); err != nil {
		log.Printf("⚠️ Google Calendar init failed: %v", err)
	}

	registry, err := tools.NewDefaultRegistry(store, cal)
	if err != nil {
		log.Fatalf("failed to build tool registry: %v", err)
	}

	srv, err := mcpserver.New("todo-mcp-server", "1.0.0", registry)
	if err != nil {
		log.Fatalf("failed to build MCP server: %v", err)
	}

	log.Printf("🚀 Todo MCP server listening on stdio with %d tools", len(registry.Definitions()))
	if err := mcpserver.RunStdio(ctx, srv); err != nil && ctx.Err() == nil {
		log.Fatalf("MCP server stopped: %v", err)
	}
}
