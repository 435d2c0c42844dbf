package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"membership-crm/core/internal/audit"
	"membership-crm/core/internal/audit/producer"
	auditrepo "membership-crm/core/internal/audit/repository"
	"membership-crm/core/internal/config"
	"membership-crm/core/internal/db"
	"membership-crm/core/internal/ratelimit"
	rfidrepo "membership-crm/core/internal/rfid/repository"
	rfidservice "membership-crm/core/internal/rfid/service"
	"membership-crm/core/internal/security"
	"membership-crm/core/internal/server"
	"membership-crm/core/internal/telemetry/otel"
	threatengine "membership-crm/core/internal/threat/engine"
	threatrepo "membership-crm/core/internal/threat/repository"
	tokenrepo "membership-crm/core/internal/token/repository"
	tokenservice "membership-crm/core/internal/token/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetry, err := otel.NewProvider(ctx, cfg.OTLPEndpoint, "crm-security-core")
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	telemetry.SetGlobal()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	pool, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	audits := auditrepo.NewPostgresRepository(pool)
	sessions := tokenrepo.NewPostgresSessionRepository(pool)
	blacklist := tokenrepo.NewPostgresBlacklistRepository(pool)
	cards := rfidrepo.NewPostgresRepository(pool)
	threats := threatrepo.NewPostgresThreatRepository(pool)
	baselines := threatrepo.NewPostgresBaselineRepository(pool)

	engine := threatengine.New(audits, threats, baselines)

	kafkaProducer := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.AuditKafkaTopic)
	defer kafkaProducer.Close()

	// With Kafka configured, analysis runs in cmd/worker; otherwise the
	// trigger analyzes in-process.
	var publisher audit.Publisher
	if kafkaProducer != nil {
		publisher = kafkaProducer
	}
	trigger := audit.NewQueueTrigger(engine, publisher, cfg.AnalysisQueueSize)
	trigger.Start(ctx)
	defer trigger.Close()

	pipeline := audit.NewPipeline(audits, trigger)

	signer := security.NewTokenSigner([]byte(cfg.TokenSigningKey), cfg.TokenIssuer, cfg.AccessTTL(), cfg.RefreshTTL())
	tokens := tokenservice.NewService(sessions, blacklist, signer, pipeline, nil, cfg.MaxSessionsPerUser)

	cardSigner := security.NewCardSigner([]byte(cfg.RFIDSigningKey))
	gate := rfidservice.NewService(cards, cardSigner, pipeline)

	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.RateLimitBurst
	if burst <= 0 {
		burst = 20
	}
	limiter, err := ratelimit.NewMemoryStore(4096, ratelimit.Limit{Rate: rate.Limit(rps), Burst: burst})
	if err != nil {
		log.Fatalf("ratelimit: %v", err)
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server.New(tokens, gate, engine, limiter, cfg.CORSOrigins()).Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("http server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down http server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	cancel()
	log.Println("http server stopped")
}
