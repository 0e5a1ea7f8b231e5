package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-pricing/internal/app"
)

// demoCart is the cart id the seeded line items belong to.
const demoCart = "0b6f4c5e-8f0d-4c61-9d2e-3f1b7a9c2d40"

type seedDiscount struct {
	Name         string
	Kind         string
	PercentBps   *int32
	Amount       int64
	MinSubtotal  int64
	GroupIDs     []int64
	PartnerTiers []string
	RequiresCode bool
	Combinable   bool
	Priority     int
}

type seedCode struct {
	Discount  string
	Code      string
	ExpiresAt *time.Time
	MaxUses   *int32
	Usage     int32
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("tool", "seeder").Logger()
	if err := godotenv.Load(); err != nil {
		logger.Info().Msg("no .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}
	if err := app.RunMigrations(dbURL, logger); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		ids, err := seedDiscounts(ctx, tx)
		if err != nil {
			return err
		}
		if err := seedCodes(ctx, tx, ids); err != nil {
			return err
		}
		if err := seedSegments(ctx, tx); err != nil {
			return err
		}
		return seedCart(ctx, tx)
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seed")
	}
	logger.Info().Str("cart_id", demoCart).Msg("seeding completed")
}

func ptr[T any](v T) *T { return &v }

func seedDiscounts(ctx context.Context, tx pgx.Tx) (map[string]int64, error) {
	discounts := []seedDiscount{
		{Name: "Ten percent coupon", Kind: "percent", PercentBps: ptr(int32(1000)), RequiresCode: true, Priority: 100},
		{Name: "Five off over fifty", Kind: "fixed", Amount: 500, MinSubtotal: 5000, Combinable: true, Priority: 50},
		{Name: "Wholesale group", Kind: "percent", PercentBps: ptr(int32(1500)), GroupIDs: []int64{10}, Priority: 80},
		{Name: "Gold partners ship free", Kind: "free_shipping", PartnerTiers: []string{"gold"}, Combinable: true, Priority: 10},
	}
	ids := make(map[string]int64, len(discounts))
	for _, d := range discounts {
		var id int64
		if _, err := tx.Exec(ctx, `DELETE FROM discounts WHERE name = $1`, d.Name); err != nil {
			return nil, fmt.Errorf("reset discount %s: %w", d.Name, err)
		}
		groups := d.GroupIDs
		if groups == nil {
			groups = []int64{}
		}
		tiers := d.PartnerTiers
		if tiers == nil {
			tiers = []string{}
		}
		err := tx.QueryRow(ctx, `INSERT INTO discounts
    (name, kind, percent_bps, amount, min_subtotal, group_ids, partner_tiers, requires_code, combinable, priority)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`,
			d.Name, d.Kind, d.PercentBps, d.Amount, d.MinSubtotal, groups, tiers, d.RequiresCode, d.Combinable, d.Priority,
		).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("insert discount %s: %w", d.Name, err)
		}
		ids[d.Name] = id
	}
	return ids, nil
}

func seedCodes(ctx context.Context, tx pgx.Tx, ids map[string]int64) error {
	expired := time.Now().AddDate(0, -1, 0)
	codes := []seedCode{
		{Discount: "Ten percent coupon", Code: "SAVE10"},
		{Discount: "Ten percent coupon", Code: "SPRING23", ExpiresAt: &expired},
		{Discount: "Ten percent coupon", Code: "FIRST100", MaxUses: ptr(int32(100)), Usage: 100},
	}
	for _, c := range codes {
		_, err := tx.Exec(ctx, `INSERT INTO discount_codes (discount_id, code, expires_at, max_uses, usage_count)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (upper(code)) DO UPDATE
SET discount_id = EXCLUDED.discount_id, expires_at = EXCLUDED.expires_at,
    max_uses = EXCLUDED.max_uses, usage_count = EXCLUDED.usage_count`,
			ids[c.Discount], c.Code, c.ExpiresAt, c.MaxUses, c.Usage)
		if err != nil {
			return fmt.Errorf("upsert code %s: %w", c.Code, err)
		}
	}
	return nil
}

func seedSegments(ctx context.Context, tx pgx.Tx) error {
	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO partner_tiers (name) VALUES ('gold'), ('silver') ON CONFLICT (name) DO NOTHING`)
	batch.Queue(`INSERT INTO customer_group_members (user_id, group_id) VALUES ('wholesale-user', 10) ON CONFLICT DO NOTHING`)
	batch.Queue(`INSERT INTO customer_partner_tiers (user_id, tier_id)
SELECT 'gold-user', id FROM partner_tiers WHERE name = 'gold'
ON CONFLICT (user_id) DO UPDATE SET tier_id = EXCLUDED.tier_id`)
	return tx.SendBatch(ctx, batch).Close()
}

func seedCart(ctx context.Context, tx pgx.Tx) error {
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM cart_items WHERE cart_id = $1::uuid`, demoCart)
	items := []struct {
		Product string
		Variant *string
		Qty     int
		Price   int64
	}{
		{"tee-basic", ptr("tee-basic-m"), 2, 1250},
		{"mug-logo", nil, 1, 1500},
	}
	for _, it := range items {
		batch.Queue(`INSERT INTO cart_items (cart_id, product_id, variant_id, qty, unit_price) VALUES ($1::uuid, $2, $3, $4, $5)`,
			demoCart, it.Product, it.Variant, it.Qty, it.Price)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("seed demo cart: %w", err)
	}
	return nil
}
