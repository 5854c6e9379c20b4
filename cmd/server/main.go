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

	"github.com/redis/go-redis/v9"

	"siteguard/backend/internal/audit"
	auditrepo "siteguard/backend/internal/audit/repository"
	"siteguard/backend/internal/config"
	"siteguard/backend/internal/csrf"
	"siteguard/backend/internal/db"
	healthhandler "siteguard/backend/internal/health/handler"
	identityhandler "siteguard/backend/internal/identity/handler"
	identityservice "siteguard/backend/internal/identity/service"
	"siteguard/backend/internal/idp"
	"siteguard/backend/internal/security"
	"siteguard/backend/internal/server"
	"siteguard/backend/internal/server/middleware"
	userhandler "siteguard/backend/internal/user/handler"
	userrepo "siteguard/backend/internal/user/repository"
	userservice "siteguard/backend/internal/user/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("config: DATABASE_URL must be set")
	}
	if cfg.SessionSigningSecret == "" {
		log.Fatal("config: SESSION_SIGNING_SECRET must be set")
	}

	pool := db.NewPool(db.PgxDialer(cfg.DatabaseURL), db.Options{
		PoolSize:       cfg.DBPoolSize,
		MaxOverflow:    cfg.DBMaxOverflow,
		AcquireTimeout: cfg.AcquireTimeout(),
		RecycleAfter:   cfg.RecycleAfter(),
	})
	defer pool.Close()

	tokens, err := security.NewTokenProvider(
		[]byte(cfg.SessionSigningSecret),
		cfg.SessionSigningAlg,
		cfg.SessionIssuer,
		cfg.SessionTTL(),
	)
	if err != nil {
		log.Fatalf("security: %v", err)
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Fail fast: if provider discovery is down we want a crashed process, not
	// a server that rejects every login.
	provider, err := idp.NewMicrosoftProvider(
		startupCtx,
		cfg.OAuthTenantID,
		cfg.OAuthClientID,
		cfg.OAuthClientSecret,
		cfg.OAuthRedirectURL,
	)
	if err != nil {
		log.Fatalf("idp: %v", err)
	}

	states, stopStates := newStateStore(cfg)
	defer stopStates()

	auditor := audit.NewLogger(auditrepo.NewPostgresRepository(pool), middleware.GetClientIP)
	directory := userservice.NewDirectory(userrepo.NewPostgresRepository(pool))
	loginSvc := identityservice.NewLoginService(states, provider, directory, tokens, auditor)

	router := server.NewRouter(server.Deps{
		Auth:       identityhandler.NewHTTP(loginSvc),
		Users:      userhandler.NewHTTP(directory, auditor),
		Health:     healthhandler.NewHTTP(pool),
		Tokens:     tokens,
		UserLoader: directory,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		log.Printf("http server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down http server...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("http server stopped")
}

// newStateStore selects the login-state store: Redis when REDIS_ADDR is set
// (shared across replicas), in-process memory otherwise.
func newStateStore(cfg *config.Config) (csrf.StateStore, func()) {
	ttl := cfg.CSRFStateTTL()
	if cfg.RedisAddr == "" {
		store := csrf.NewMemoryStore(ttl)
		return store, store.Stop
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return csrf.NewRedisStore(client, ttl), func() { _ = client.Close() }
}
