package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/smtp"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/walletgate/walletgate/internal/auth/ens"
	httpapi "github.com/walletgate/walletgate/internal/auth/http"
	"github.com/walletgate/walletgate/internal/auth/mail"
	"github.com/walletgate/walletgate/internal/auth/service"
	"github.com/walletgate/walletgate/internal/auth/store"
	"github.com/walletgate/walletgate/internal/auth/store/drivers/sqlite"
	"github.com/walletgate/walletgate/pkg/cryptox"
	"github.com/walletgate/walletgate/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the wallet sign-in service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger
	secret string

	// Core dependencies
	db         store.Store
	nonceCache *ttlcache.Cache[string, time.Time]
	resolver   *ens.Resolver
	mailer     mail.Mailer

	// Services
	nonceService        *service.NonceService
	validator           *service.MessageValidator
	reconcileService    *service.ReconcileService
	emailService        *service.EmailVerificationService
	sessionService      *service.SessionService
	authService         *service.AuthService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "walletgate",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initSecret(); err != nil {
		return nil, err
	}
	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initResolver(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initMailer()
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	go app.nonceCache.Start()
	app.emailService.Start()
	app.housekeepingService.Start()

	app.logger.Info("walletgate starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down walletgate...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()
	app.emailService.Stop()
	app.nonceCache.Stop()

	if app.resolver != nil {
		app.resolver.Close()
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("walletgate stopped")
	return nil
}

// initSecret loads the server secret used for session signing and link
// hashes. Without a configured file an ephemeral secret is generated, which
// invalidates sessions and outstanding links on restart.
func (app *Application) initSecret() error {
	if app.cfg.SecretFile != "" {
		raw, err := os.ReadFile(app.cfg.SecretFile)
		if err != nil {
			return fmt.Errorf("failed to read secret file: %w", err)
		}
		secret := strings.TrimSpace(string(raw))
		if secret == "" {
			return fmt.Errorf("secret file %s is empty", app.cfg.SecretFile)
		}
		app.secret = secret
		return nil
	}

	secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return fmt.Errorf("failed to generate ephemeral secret: %w", err)
	}
	app.secret = secret
	app.logger.Warn("no SIWE_PRIVATE_KEY_FILE configured, using ephemeral secret; " +
		"sessions and verification links will not survive a restart")
	return nil
}

// initDatabase initializes the database and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initResolver connects to the Ethereum RPC endpoint when name validation is
// enabled. Without an endpoint the feature degrades to ignoring name claims.
func (app *Application) initResolver() error {
	if !app.cfg.EnableENSValidation {
		return nil
	}
	if app.cfg.EthereumRPC == "" {
		app.logger.Warn("ENS validation enabled but SIWE_ETH_PROVIDER_URL is not set; name claims will be ignored")
		return nil
	}

	resolver, err := ens.Dial(app.cfg.EthereumRPC, ens.DefaultTimeout, app.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to ethereum rpc: %w", err)
	}
	app.resolver = resolver
	app.logger.Info("name resolution enabled", "rpc", app.cfg.EthereumRPC)
	return nil
}

func (app *Application) initMailer() {
	if app.cfg.SMTPAddr == "" {
		app.logger.Warn("no SMTP_ADDR configured, verification mail will be logged instead of delivered")
		app.mailer = &mail.LogMailer{Logger: app.logger}
		return
	}
	app.mailer = &mail.SMTPMailer{
		Addr: app.cfg.SMTPAddr,
		From: app.cfg.SMTPFrom,
		Auth: smtpAuthFromEnv(app.cfg.SMTPAddr),
	}
}

// smtpAuthFromEnv builds PLAIN auth from SMTP_USERNAME/SMTP_PASSWORD when set.
func smtpAuthFromEnv(addr string) smtp.Auth {
	username := os.Getenv("SMTP_USERNAME")
	if username == "" {
		return nil
	}
	host := addr
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		host = addr[:i]
	}
	return smtp.PlainAuth("", username, os.Getenv("SMTP_PASSWORD"), host)
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	policy := service.Policy{
		AllowRegistration:        app.cfg.AllowRegistration,
		RequireEmailVerification: app.cfg.RequireEmailVerification,
		RequireENSOrUsername:     app.cfg.RequireUsername,
		EnableENSValidation:      app.cfg.EnableENSValidation && app.resolver != nil,
	}

	app.nonceCache = ttlcache.New(ttlcache.WithTTL[string, time.Time](app.cfg.NonceTTL))
	app.nonceService = service.NewNonceService(app.nonceCache, app.cfg.NonceTTL)
	app.validator = service.NewMessageValidator(app.nonceService, app.cfg.MessageTTL)

	var resolver service.NameResolver
	if app.resolver != nil {
		resolver = app.resolver
	}
	app.reconcileService = service.NewReconcileService(app.db, resolver, nil, policy)

	app.emailService = service.NewEmailVerificationService(
		app.db,
		app.reconcileService,
		app.mailer,
		app.secret,
		app.cfg.BaseURL,
		app.cfg.PendingTTL,
		app.cfg.LinkTTL,
	)
	app.emailService.RequireUsername = app.cfg.RequireUsername
	app.reconcileService.Pending = app.emailService

	app.sessionService = service.NewSessionService([]byte(app.secret), app.cfg.Issuer, app.cfg.SessionTTL)
	app.authService = service.NewAuthService(
		app.nonceService,
		app.validator,
		app.reconcileService,
		app.sessionService,
		app.cfg.ExpectedDomain,
	)

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.cfg.HousekeepingInterval,
		app.cfg.AbandonedRetention,
		app.logger,
	)
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)
	router.AuthService = app.authService
	router.EmailService = app.emailService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
