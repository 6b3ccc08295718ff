package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"invoice-agent/internal/adapters/cli"
	"invoice-agent/internal/adapters/repl"
	"invoice-agent/internal/ai"
	"invoice-agent/internal/app"
	"invoice-agent/internal/config"
	"invoice-agent/internal/core"
	"invoice-agent/internal/db"
	"invoice-agent/internal/logs"
	"invoice-agent/internal/metrics"
	"invoice-agent/internal/quickbooks"
	"invoice-agent/internal/tokencrypt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logs.New(cfg.Log.Level, "console")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	deps := app.Deps{
		AIBackend: app.AIBackendMemory,
		Metrics:   metrics.NewRegistry(),
		Log:       logger,
		AppURL:    cfg.AppURL,
	}
	if cfg.OpenAI.APIKey != "" {
		deps.Agent = ai.NewAgent(cfg.OpenAI.APIKey, cfg.OpenAI.Model, logger)
	} else {
		logger.Warn("OPENAI_API_KEY is not set; the assistant is disabled")
	}

	// The database is optional: calc, invoices, stats and chat work without it.
	if cfg.Database.URL != "" {
		pool, err := db.NewPool(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := wireDatabase(&deps, pool, cfg, logger); err != nil {
			logger.Fatal("setup", zap.Error(err))
		}
	}

	svc := app.NewAppService(deps)

	if len(os.Args) > 1 {
		if err := cli.Run(ctx, svc, os.Args[1:], os.Stdout); err != nil {
			if errors.Is(err, cli.ErrUsage) {
				fmt.Fprintln(os.Stderr, err)
				fmt.Fprintln(os.Stderr, cli.Usage)
				os.Exit(2)
			}
			log.Fatalf("%s: %v", os.Args[1], err)
		}
		return
	}
	repl.Run(ctx, svc, repl.Session{UserID: cli.LocalUserID}, os.Stdin, os.Stdout)
}

// wireDatabase adds the team, token and QuickBooks collaborators.
func wireDatabase(deps *app.Deps, pool *pgxpool.Pool, cfg *config.Config, logger *zap.Logger) error {
	deps.Teams = core.NewTeamService(pool)
	deps.Invoices = core.NewInvoiceService(core.NewPgInvoiceStore(pool))

	if cfg.QuickBooks.EncryptionKey == "" {
		return nil
	}
	cipher, err := tokencrypt.NewCipher(cfg.QuickBooks.EncryptionKey)
	if err != nil {
		return err
	}
	tokens := core.NewQuickBooksTokenStore(pool, cipher)
	deps.Tokens = tokens

	qbCfg := quickbooks.Config{
		ClientID:     cfg.QuickBooks.ClientID,
		ClientSecret: cfg.QuickBooks.ClientSecret,
		RedirectURI:  cfg.QuickBooks.RedirectURI,
		Environment:  cfg.QuickBooks.Environment,
	}
	oauth, err := quickbooks.NewOAuth(qbCfg)
	if errors.Is(err, quickbooks.ErrMissingCredentials) {
		logger.Warn("QuickBooks client credentials are not set; status is unavailable")
		return nil
	}
	if err != nil {
		return err
	}
	deps.QuickBooks = quickbooks.NewSessionManager(tokens, oauth, quickbooks.NewClient(qbCfg), logger, deps.Metrics)
	return nil
}
