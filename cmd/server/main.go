package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/synccore/authcore/internal/api"
	"github.com/synccore/authcore/internal/cache"
	"github.com/synccore/authcore/internal/config"
	"github.com/synccore/authcore/internal/instructions"
	"github.com/synccore/authcore/internal/model"
	"github.com/synccore/authcore/internal/security"
	"github.com/synccore/authcore/internal/session"
	"github.com/synccore/authcore/internal/storage/postgres"
	"github.com/synccore/authcore/pkg/logger"
)

func main() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// No logger yet — this is a startup-time misconfiguration, not a
		// request the fault sink should see.
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.Setup(cfg.Env)
	log.Info("application startup", "env", cfg.Env)

	flushSentry, err := logger.InitSentry(cfg.SentryDSN, cfg.Env)
	if err != nil {
		log.Error("sentry init failed", "error", err)
	} else {
		defer flushSentry()
	}

	ctx := context.Background()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Error("database url parse failed", "error", err)
		os.Exit(1)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Error("database pool create failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	log.Info("database connected")

	store := postgres.New(pool)

	// The Instruction Dispatcher's catalogue of set types is an
	// application concern the security and session packages deliberately
	// leave undefined (spec §4.5). The dispatcher starts with an empty
	// expected-set-type list, and RegisterTarget/RegisterSource reject any
	// set type outside that list, so with this wiring no target can
	// register and no instruction set is authorizable.
	dispatcher := instructions.New([]model.InstructionSetType{})

	securityCfg := security.Config{
		ThreadPoolSize: cfg.ThreadPoolSize,
		Cache: cache.Config{
			MaxUserEntries:   cfg.Cache.MaxUserEntries,
			MaxDeviceEntries: cfg.Cache.MaxDeviceEntries,
			UserEviction:     evictionPolicy(cfg.Cache.UserEviction),
			DeviceEviction:   evictionPolicy(cfg.Cache.DeviceEviction),
		},
		AuthTokenSignatureSize:  cfg.Tokens.AuthSignatureSize,
		AuthzTokenSignatureSize: cfg.Tokens.AuthzSignatureSize,
		AuthTokenValidity:       cfg.Tokens.AuthValidity,
		UserLockout:             lockoutParameters(cfg.UserLockout),
		DeviceLockout:           lockoutParameters(cfg.DeviceLockout),
		UserHashing: security.PasswordHashing{
			Current:  cfg.PasswordHashing.UserCurrent,
			Previous: cfg.PasswordHashing.UserPrevious,
		},
		DeviceHashing: security.PasswordHashing{
			Current:  cfg.PasswordHashing.DeviceCurrent,
			Previous: cfg.PasswordHashing.DevicePrevious,
		},
	}.WithKeyGenerator(cfg.KeyGenerator.Derived, cfg.KeyGenerator.Symmetric)

	core, err := security.New(securityCfg, log, store.Users(), store.Devices(), dispatcher)
	if err != nil {
		log.Error("security core init failed", "error", err)
		os.Exit(1)
	}
	core.RegisterSecureSource(api.SourceKindHTTP)

	sessions := session.New(session.Config{
		ThreadPoolSize:       cfg.ThreadPoolSize,
		MaxSessionsPerUser:   uint32(cfg.Session.MaxSessionsPerUser),
		MaxSessionsPerDevice: uint32(cfg.Session.MaxSessionsPerDevice),
		CommitPolicy:         commitPolicy(cfg.Session.CommitPolicy),
		InactivityTimeout:    cfg.Session.InactivityTimeout,
		UnauthGrace:          cfg.Session.UnauthGrace,
		SourceKind:           api.SourceKindHTTP,
	}, log, core, store.Sessions())

	sessions.OnSessionExpired(func(id model.InternalSessionID) {
		log.Info("session expired", "session_id", id)
	})
	sessions.OnReauthenticationRequired(func(id model.InternalSessionID) {
		log.Info("session requires reauthentication", "session_id", id)
	})

	server := api.NewServer(pool, log, sessions, core)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      server.Router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("server startup failed", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
			if err := srv.Close(); err != nil {
				log.Error("server force close failed", "error", err)
			}
		}

		log.Info("server shutdown complete")
	}
}

func evictionPolicy(e config.Eviction) cache.Policy {
	if e == config.EvictionMRU {
		return cache.MRU
	}
	return cache.LRU
}

func lockoutParameters(c config.LockoutConfig) security.LockoutParameters {
	var escalation security.Escalation
	switch c.Escalation {
	case config.EscalationConstant:
		escalation = security.EscalationConstant
	case config.EscalationQuadratic:
		escalation = security.EscalationQuadratic
	default:
		escalation = security.EscalationLinear
	}

	return security.LockoutParameters{
		Base:            c.Base,
		Escalation:      escalation,
		MaxAttempts:     c.MaxAttempts,
		IgnoredAttempts: c.IgnoredAttempts,
	}
}

func commitPolicy(c config.CommitPolicy) session.CommitPolicy {
	switch c {
	case config.CommitOnReauth:
		return session.CommitOnReauth
	case config.CommitOnUpdate:
		return session.CommitOnUpdate
	case config.CommitNever:
		return session.CommitNever
	default:
		return session.CommitOnClose
	}
}
