// seed inserts development sample data for local testing. Idempotent: skips
// inserts when the dev card is already registered.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"membership-crm/core/internal/config"
	"membership-crm/core/internal/db"
	rfiddomain "membership-crm/core/internal/rfid/domain"
	rfidrepo "membership-crm/core/internal/rfid/repository"
	"membership-crm/core/internal/security"
	threatdomain "membership-crm/core/internal/threat/domain"
	threatrepo "membership-crm/core/internal/threat/repository"
)

const (
	devCardUID = "DEV-CARD-0001"
	devUserID  = "dev-user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Env == "production" {
		log.Fatal("seed: refusing to run in production")
	}

	pool, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	ctx := context.Background()
	cards := rfidrepo.NewPostgresRepository(pool)

	existing, err := cards.GetByCardUID(ctx, devCardUID)
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	if existing != nil {
		log.Printf("seed: dev card %s already registered, nothing to do", devCardUID)
		return
	}

	apiKey, err := security.NewTokenID()
	if err != nil {
		log.Fatalf("seed: api key: %v", err)
	}
	err = cards.Create(ctx, &rfiddomain.Credential{
		CardUID:   devCardUID,
		APIKey:    apiKey,
		UserID:    devUserID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Fatalf("seed: create card: %v", err)
	}

	baselines := threatrepo.NewPostgresBaselineRepository(pool)
	err = baselines.Upsert(ctx, &threatdomain.SecurityBaseline{
		Category:         threatdomain.CategoryGlobal,
		AnomalyThreshold: 3.0,
		LastUpdated:      time.Now().UTC(),
	})
	if err != nil {
		log.Fatalf("seed: baseline: %v", err)
	}

	cardSigner := security.NewCardSigner([]byte(cfg.RFIDSigningKey))
	token, err := cardSigner.SignCard(apiKey)
	if err != nil {
		log.Fatalf("seed: card token: %v", err)
	}

	log.Printf("seed: registered dev card %s for %s", devCardUID, devUserID)
	fmt.Printf("card token: %s\n", token)
}
