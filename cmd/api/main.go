package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"gatekeeper.org/internal/auth"
	"gatekeeper.org/internal/config"
	"gatekeeper.org/internal/httpapi"
	"gatekeeper.org/internal/mailer"
	"gatekeeper.org/internal/obs"
	"gatekeeper.org/internal/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.AuthSecret == "" {
		log.Fatal("GATEKEEPER_AUTH_SECRET is required")
	}

	obs.Init(cfg.Version)

	var db *sql.DB
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	var store auth.Store
	if db != nil {
		store = auth.NewPGStore(db)
	} else {
		log.Println("no GATEKEEPER_PG_DSN set, using in-memory store")
		store = auth.NewMemStore()
	}

	var sender auth.Mailer
	if cfg.SMTPAddr != "" {
		sender = mailer.NewSMTPSender(cfg.SMTPAddr, cfg.SMTPFrom, nil)
	} else {
		sender = mailer.LogSender{}
	}

	svc, err := auth.NewService(store,
		auth.WithSecret([]byte(cfg.AuthSecret)),
		auth.WithIssuer(cfg.Issuer),
		auth.WithTokenTTL(cfg.TokenTTL),
		auth.WithResetTTL(cfg.ResetTTL),
		auth.WithResetBaseURL(cfg.ResetBaseURL),
		auth.WithMailer(sender),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	limiter := ratelimit.New(cfg.RateLimitCapacity, cfg.RateLimitWindow, cfg.RateLimitMaxClients)

	api := httpapi.New(httpapi.Options{
		Auth:           svc,
		Limiter:        limiter,
		ReadyProbe:     httpapi.ReadyProbe{DB: db},
		Version:        cfg.Version,
		TrustedProxies: cfg.TrustedProxies,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Expired reset tokens are only deleted lazily when touched; this sweep
	// keeps storage from accumulating tokens nobody consumes.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				if n, err := svc.SweepExpiredResetTokens(sweepCtx); err == nil && n > 0 {
					log.Printf("swept %d expired reset tokens", n)
				}
			}
		}
	}()

	log.Printf("Starting gatekeeper-api %s on %s", cfg.Version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
