package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	webAdapter "invoice-agent/internal/adapters/web"
	"invoice-agent/internal/ai"
	"invoice-agent/internal/app"
	"invoice-agent/internal/config"
	"invoice-agent/internal/core"
	"invoice-agent/internal/db"
	"invoice-agent/internal/logs"
	"invoice-agent/internal/metrics"
	"invoice-agent/internal/quickbooks"
	"invoice-agent/internal/tokencrypt"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logs.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	cipher, err := tokencrypt.NewCipher(cfg.QuickBooks.EncryptionKey)
	if err != nil {
		logger.Fatal("token encryption", zap.Error(err))
	}

	reg := metrics.NewRegistry()
	tokens := core.NewQuickBooksTokenStore(pool, cipher)

	qbCfg := quickbooks.Config{
		ClientID:     cfg.QuickBooks.ClientID,
		ClientSecret: cfg.QuickBooks.ClientSecret,
		RedirectURI:  cfg.QuickBooks.RedirectURI,
		Environment:  cfg.QuickBooks.Environment,
	}
	oauth, err := quickbooks.NewOAuth(qbCfg)
	if err != nil {
		logger.Fatal("quickbooks oauth", zap.Error(err))
	}
	sessions := quickbooks.NewSessionManager(tokens, oauth, quickbooks.NewClient(qbCfg), logger, reg)

	var states quickbooks.StateStore
	if cfg.Redis.Addr != "" {
		client := quickbooks.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer client.Close()
		states = quickbooks.NewRedisStateStore(client, "invoice-agent")
		logger.Info("oauth state store: redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		mem := quickbooks.NewMemoryStateStore()
		mem.StartPurge(ctx, time.Minute)
		states = mem
		logger.Info("oauth state store: memory")
	}

	var agent *ai.Agent
	if cfg.OpenAI.APIKey != "" {
		agent = ai.NewAgent(cfg.OpenAI.APIKey, cfg.OpenAI.Model, logger)
	} else {
		logger.Warn("OPENAI_API_KEY is not set; /api/chat is disabled")
	}

	svc := app.NewAppService(app.Deps{
		Teams:      core.NewTeamService(pool),
		Invoices:   core.NewInvoiceService(core.NewPgInvoiceStore(pool)),
		QuickBooks: sessions,
		States:     states,
		Tokens:     tokens,
		AIBackend:  cfg.AI.InvoiceBackend,
		Agent:      agent,
		Metrics:    reg,
		Log:        logger,
		AppURL:     cfg.AppURL,
	})

	if cfg.Token.SweepInterval > 0 {
		go sweep(ctx, svc, cfg.Token.SweepInterval, logger)
	}

	handler := webAdapter.NewHandler(svc, webAdapter.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		JWTSecret:      cfg.Supabase.JWTSecret,
		AppURL:         cfg.AppURL,
		Log:            logger,
		Metrics:        reg,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}

// sweep periodically deletes expired tokens and invitations until ctx ends.
func sweep(ctx context.Context, svc app.ApplicationService, every time.Duration, logger *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := svc.Cleanup(ctx); err != nil {
				logger.Warn("cleanup failed", zap.Error(err))
			}
		}
	}
}
