// main.go
// SERO-EST API - survey report tracking for the SERO-EST site teams
// Serves the HTTP API by default; other arguments run the console client.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"seroest/app"
	"seroest/auth"
	"seroest/cli"
	"seroest/config"
	"seroest/db"
	"seroest/handlers"
	"seroest/lifecycle"
	"seroest/logging"
	"seroest/middleware"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.Logging)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("❌ Invalid configuration")
	}

	ctx := context.Background()
	gw, err := openGateway(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("❌ Failed to open storage")
	}
	defer gw.Close()

	authn := auth.NewAuthenticator(gw, log)
	lc := lifecycle.New(gw.Authority(), lifecycle.Policy(cfg.Reports.StatusPolicy))

	args := os.Args[1:]
	if len(args) > 0 && args[0] != "serve" {
		code := runCLI(ctx, gw, authn, lc, log, args)
		gw.Close()
		os.Exit(code)
	}

	serve(cfg, gw, authn, lc, log)
}

// openGateway opens the local store and, when configured, the remote backend.
// A remote backend that cannot be reached leaves the service on local storage.
func openGateway(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*db.Gateway, error) {
	local, err := db.OpenLocal(cfg.Backend.LocalPath, log)
	if err != nil {
		return nil, err
	}

	var remote db.Backend
	if cfg.RemoteConfigured() {
		store, err := db.OpenRemote(ctx, cfg.Backend, log)
		if err != nil {
			log.WithError(err).WithField("driver", cfg.Backend.Driver).Warn("⚠️  Remote backend unavailable, using local storage")
		} else {
			remote = store
		}
	} else {
		log.Info("💾 No remote backend configured, using local storage")
	}

	return db.NewGateway(remote, local, log), nil
}

func runCLI(ctx context.Context, gw *db.Gateway, authn *auth.Authenticator, lc *lifecycle.Lifecycle, log *logrus.Logger, args []string) int {
	// Keep console output clean; only warnings reach stderr.
	log.SetLevel(logrus.WarnLevel)

	session := auth.NewSession(gw.Local())
	orch := app.New(gw, authn, lc, session, log)
	if err := cli.New(orch, session, os.Stdout).Run(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, "erreur:", err)
		if errors.Is(err, cli.ErrUsage) {
			return 2
		}
		return 1
	}
	return 0
}

func serve(cfg *config.Config, gw *db.Gateway, authn *auth.Authenticator, lc *lifecycle.Lifecycle, log *logrus.Logger) {
	log.Info("🚀 Starting SERO-EST API Server")
	log.WithFields(logrus.Fields{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"backend":     gw.Backend().Name(),
		"policy":      lc.Policy(),
	}).Info("🔧 Configuration loaded")

	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.RefreshTokenExpiration)
	log.WithField("expiration", cfg.JWT.Expiration).Info("🔐 JWT Manager initialized")

	stop := make(chan struct{})
	defer close(stop)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	rateLimiter.CleanupOldLimiters(stop)
	log.WithFields(logrus.Fields{"requests": cfg.RateLimit.Requests, "window": cfg.RateLimit.Window}).Info("🛡️  Rate limiter initialized")

	// Each HTTP request runs with a session built from its token.
	orch := app.New(gw, authn, lc, auth.NewSession(nil), log)

	router := handlers.Router{
		Orchestrator: orch,
		JWT:          jwtManager,
		Users:        gw.Authority(),
		RateLimiter:  rateLimiter,
		CORS:         cfg.CORS,
		Log:          log,
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("✅ Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("❌ Server failed to start")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("❌ Server forced to shutdown")
	}

	log.Info("✅ Server stopped gracefully")
}
