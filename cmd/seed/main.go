// Seed applies the schema and inserts a sample signed pending payment so the
// verify flow can be exercised end to end against a sandbox gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"rental-payments/internal/config"
	"rental-payments/internal/domain/model"
	pg "rental-payments/internal/infra/db/postgres"
	"rental-payments/internal/infra/security"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	schemaPath := flag.String("schema", "migrations/001_init.sql", "schema file to apply")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	schema, err := os.ReadFile(*schemaPath)
	if err != nil {
		log.Fatalf("read schema: %v", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	fmt.Println("schema applied")

	signer, err := security.NewMetadataSigner(cfg.Payments.SigningSecret)
	if err != nil {
		log.Fatalf("signer: %v", err)
	}

	md := model.PaymentMetadata{
		Type:      model.PaymentTypeCreditPurchase,
		SubjectID: uuid.NewString(),
		Credits:   50,
		Amount:    500,
		Email:     "payer@example.com",
	}
	p := &model.PendingPayment{
		OrderID:           "RC-" + uuid.NewString()[:8],
		Metadata:          md,
		Signature:         signer.Sign(md),
		Status:            model.PaymentStatusPending,
		FulfillmentStatus: model.FulfillmentStatusUnfulfilled,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}

	payRepo := pg.NewPendingPaymentRepo(pool)
	if err := payRepo.Save(ctx, nil, p); err != nil {
		log.Fatalf("save sample payment: %v", err)
	}
	fmt.Printf("seeded pending payment order_id=%s subject=%s\n", p.OrderID, md.SubjectID)
}
