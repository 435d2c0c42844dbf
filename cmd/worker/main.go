// Worker runs the out-of-process side of the security core: it consumes
// analysis requests from Kafka (when configured) and owns the scheduled
// maintenance jobs — baseline recalculation, blacklist and session pruning,
// and audit retention.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"membership-crm/core/internal/audit"
	auditrepo "membership-crm/core/internal/audit/repository"
	"membership-crm/core/internal/config"
	"membership-crm/core/internal/db"
	threatengine "membership-crm/core/internal/threat/engine"
	threatrepo "membership-crm/core/internal/threat/repository"
	tokenrepo "membership-crm/core/internal/token/repository"
)

// auditRetention matches the append-only audit trail's retention policy.
const auditRetention = 180 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	pool, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	audits := auditrepo.NewPostgresRepository(pool)
	sessions := tokenrepo.NewPostgresSessionRepository(pool)
	blacklist := tokenrepo.NewPostgresBlacklistRepository(pool)
	threats := threatrepo.NewPostgresThreatRepository(pool)
	baselines := threatrepo.NewPostgresBaselineRepository(pool)
	engine := threatengine.New(audits, threats, baselines)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("worker: shutting down...")
		cancel()
	}()

	go runSchedule(ctx, engine, audits, sessions, blacklist)

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Println("worker: KAFKA_BROKERS not set, running scheduled jobs only")
		<-ctx.Done()
		return
	}

	topic := cfg.AuditKafkaTopic
	if topic == "" {
		topic = "crm-security-events"
	}
	groupID := cfg.KafkaGroupID
	if groupID == "" {
		groupID = "crm-threat-worker"
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	log.Printf("worker: consuming from %s (group %s)", topic, groupID)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("worker: stopped")
				return
			}
			log.Printf("worker: kafka read error: %v", err)
			continue
		}

		var req audit.AnalysisRequest
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			log.Printf("worker: bad analysis request: %v", err)
			continue
		}
		analyzeCtx, analyzeCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := engine.Analyze(analyzeCtx, req.IP, req.Actor); err != nil {
			log.Printf("worker: analysis for %s failed: %v", req.IP, err)
		}
		analyzeCancel()
	}
}

// runSchedule owns the periodic maintenance: hourly baseline refresh and
// token pruning, daily audit retention.
func runSchedule(ctx context.Context, engine *threatengine.Engine, audits auditrepo.Repository, sessions tokenrepo.SessionRepository, blacklist tokenrepo.BlacklistRepository) {
	hourly := time.NewTicker(time.Hour)
	daily := time.NewTicker(24 * time.Hour)
	defer hourly.Stop()
	defer daily.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-hourly.C:
			jobCtx, jobCancel := context.WithTimeout(ctx, 5*time.Minute)
			if err := engine.RecalculateBaseline(jobCtx); err != nil {
				log.Printf("worker: baseline recalculation failed: %v", err)
			}
			now := time.Now().UTC()
			if n, err := blacklist.DeleteExpired(jobCtx, now); err != nil {
				log.Printf("worker: blacklist prune failed: %v", err)
			} else if n > 0 {
				log.Printf("worker: pruned %d expired blacklist entries", n)
			}
			if n, err := sessions.DeleteExpired(jobCtx, now); err != nil {
				log.Printf("worker: session prune failed: %v", err)
			} else if n > 0 {
				log.Printf("worker: pruned %d expired sessions", n)
			}
			jobCancel()
		case <-daily.C:
			jobCtx, jobCancel := context.WithTimeout(ctx, 15*time.Minute)
			cutoff := time.Now().UTC().Add(-auditRetention)
			if n, err := audits.DeleteOlderThan(jobCtx, cutoff); err != nil {
				log.Printf("worker: audit retention prune failed: %v", err)
			} else if n > 0 {
				log.Printf("worker: pruned %d audit events past retention", n)
			}
			jobCancel()
		}
	}
}
