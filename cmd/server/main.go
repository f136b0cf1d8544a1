package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"todo-assistant/internal/analytics"
	"todo-assistant/internal/approval"
	"todo-assistant/internal/assistant"
	"todo-assistant/internal/auth"
	"todo-assistant/internal/bridge"
	"todo-assistant/internal/calendar"
	"todo-assistant/internal/config"
	"todo-assistant/internal/mcpserver"
	"todo-assistant/internal/metrics"
	"todo-assistant/internal/poller"
	"todo-assistant/internal/protocol"
	"todo-assistant/internal/scheduler"
	"todo-assistant/internal/server"
	"todo-assistant/internal/state"
	"todo-assistant/internal/storage"
	"todo-assistant/internal/tools"
)

const serverVersion = "1.0.0"

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.DatabasePath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()
	log.Printf("💾 Database ready at %s", cfg.DatabasePath)

	var rec storage.Recorder
	if cfg.InteractionLogPath != "" {
		fr, err := storage.NewFileRecorder(cfg.InteractionLogPath)
		if err != nil {
			log.Printf("failed to init file recorder: %v", err)
		} else {
			defer fr.Close()
			rec = fr
		}
	}

	var allowRepo auth.Repository
	if cfg.AllowlistFilePath != "" {
		repo, err := auth.NewFileRepository(cfg.AllowlistFilePath)
		if err != nil {
			log.Printf("failed to init allowlist repo: %v", err)
		} else {
			allowRepo = repo
		}
	}
	authSvc, err := auth.NewWithRepo(allowRepo, cfg.AllowedUsers)
	if err != nil {
		log.Fatalf("failed to init auth: %v", err)
	}

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

	m := metrics.New()
	registry.SetObserver(m)

	profile, err := assistant.LoadProfile(cfg.AssistantProfilePath)
	if err != nil {
		log.Fatalf("failed to load assistant profile: %v", err)
	}
	profile = profile.Override(cfg.AssistantName, cfg.AssistantModel)

	provider := assistant.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	assistantID, err := provider.EnsureAssistant(ctx, profile, registry.Definitions())
	if err != nil {
		log.Fatalf("failed to initialize assistant: %v", err)
	}
	log.Printf("🤖 Assistant %s ready (%s, model %s)", profile.Name, assistantID, profile.Model)

	wait := poller.New(provider, cfg.PollInterval, cfg.PollTimeout)
	wait.SetObserver(m)

	gate := approval.New(state.NewMemory[string, approval.Pending](), provider, registry, wait, cfg.ApprovalTTL)
	gate.SetObserver(m)

	chat := bridge.New(bridge.Options{
		Provider:      provider,
		Waiter:        wait,
		Gate:          gate,
		Dispatcher:    registry,
		Recorder:      rec,
		MaxToolRounds: cfg.MCPMaxToolRounds,
	})

	translator := protocol.NewTranslator(nil, registry)
	translator.SetObserver(m)
	translator.Connect(chat)

	mcpSrv, err := mcpserver.New("todo-assistant", serverVersion, registry)
	if err != nil {
		log.Fatalf("failed to build MCP server: %v", err)
	}

	sched := scheduler.New(cal.Location())
	if err := sched.Add("google-token-refresh", cfg.TokenRefreshSchedule, func(ctx context.Context) error {
		if !cal.IsAuthenticated() {
			return nil
		}
		return cal.RefreshToken(ctx)
	}); err != nil {
		log.Fatalf("failed to schedule token refresh: %v", err)
	}
	if rec != nil {
		reporter := &analytics.Reporter{Recorder: rec, Dir: filepath.Join(cfg.DataDir, "reports")}
		if err := sched.Add("daily-report", cfg.DailyReportSchedule, reporter.Run); err != nil {
			log.Fatalf("failed to schedule daily report: %v", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	api := server.New(server.Options{
		Chat:      chat,
		Protocol:  translator,
		Catalogue: registry,
		StaticDir: cfg.StaticDir,
		Metrics:   m.Handler(),
		MCPStream: mcpserver.SSEHandler(mcpSrv),
		Observer:  m,
		Allow:     authSvc,
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("🚀 Server running on port %s", cfg.Port)
		log.Printf("🔌 MCP endpoint available at http://localhost:%s/mcp", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("🛑 Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
