package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Merilairon/colruyt-scraper/internal/models"
)

// 1000 rows at 7 parameters per row.
const priceChangeBatchSize = 1000

type PriceChangeRepository struct {
	db *sql.DB
}

func NewPriceChangeRepository(db *sql.DB) *PriceChangeRepository {
	return &PriceChangeRepository{db: db}
}

// UpsertBatch writes change records keyed by (product, tier). New and
// updated records go through the same idempotent upsert.
func (r *PriceChangeRepository) UpsertBatch(ctx context.Context, q Querier, changes []models.PriceChange) error {
	for start := 0; start < len(changes); start += priceChangeBatchSize {
		end := start + priceChangeBatchSize
		if end > len(changes) {
			end = len(changes)
		}
		if err := r.upsertChunk(ctx, q, changes[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *PriceChangeRepository) upsertChunk(ctx context.Context, q Querier, changes []models.PriceChange) error {
	if len(changes) == 0 {
		return nil
	}

	valueStrings := make([]string, 0, len(changes))
	args := make([]interface{}, 0, len(changes)*7)
	for i, c := range changes {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, NOW())",
			i*7+1, i*7+2, i*7+3, i*7+4, i*7+5, i*7+6, i*7+7))
		args = append(args, c.ProductID, string(c.PriceChangeType), c.PriceChange,
			c.PriceChangePercentage, c.InvolvesPromotion, c.OldPrice, c.NewPrice)
	}

	query := fmt.Sprintf(`
		INSERT INTO colruyt.price_changes (product_id, price_change_type, price_change,
			price_change_percentage, involves_promotion, old_price, new_price, updated_at)
		VALUES
			%s
		ON CONFLICT (product_id, price_change_type) DO UPDATE
		SET
			price_change = EXCLUDED.price_change,
			price_change_percentage = EXCLUDED.price_change_percentage,
			involves_promotion = EXCLUDED.involves_promotion,
			old_price = EXCLUDED.old_price,
			new_price = EXCLUDED.new_price,
			updated_at = NOW();
	`, strings.Join(valueStrings, ", "))

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting %d price changes: %w", len(changes), err)
	}
	return nil
}

// All returns every stored change record, without product joins; the
// diff run uses it as its existing-record lookup.
func (r *PriceChangeRepository) All(ctx context.Context, q Querier) ([]models.PriceChange, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, price_change_type, price_change, price_change_percentage,
			involves_promotion, old_price, new_price, updated_at
		FROM colruyt.price_changes`)
	if err != nil {
		return nil, fmt.Errorf("selecting price changes: %w", err)
	}
	defer rows.Close()

	var changes []models.PriceChange
	for rows.Next() {
		var c models.PriceChange
		var changeType string
		if err := rows.Scan(&c.ProductID, &changeType, &c.PriceChange, &c.PriceChangePercentage,
			&c.InvolvesPromotion, &c.OldPrice, &c.NewPrice, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning price change row: %w", err)
		}
		c.PriceChangeType = models.PriceChangeType(changeType)
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// Page returns change records with their product attached, optionally
// filtered by tier. Sort "percentage" surfaces the steepest discounts
// first; anything else orders by recency.
func (r *PriceChangeRepository) Page(ctx context.Context, changeType, sort string, limit, offset int) ([]models.PriceChange, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM colruyt.price_changes WHERE ($1 = '' OR price_change_type = $1)`,
		changeType).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting price changes: %w", err)
	}

	orderBy := "c.updated_at DESC, c.product_id"
	if sort == "percentage" {
		orderBy = "c.price_change_percentage ASC, c.product_id"
	}

	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT c.product_id, c.price_change_type, c.price_change, c.price_change_percentage,
			c.involves_promotion, c.old_price, c.new_price, c.updated_at,
			p.long_name, p.brand
		FROM colruyt.price_changes c
		JOIN colruyt.products p ON p.product_id = c.product_id
		WHERE ($1 = '' OR c.price_change_type = $1)
		ORDER BY %s
		LIMIT $2 OFFSET $3`, orderBy),
		changeType, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("selecting price changes page: %w", err)
	}
	defer rows.Close()

	var changes []models.PriceChange
	for rows.Next() {
		var (
			c               models.PriceChange
			typ             string
			longName, brand sql.NullString
		)
		if err := rows.Scan(&c.ProductID, &typ, &c.PriceChange, &c.PriceChangePercentage,
			&c.InvolvesPromotion, &c.OldPrice, &c.NewPrice, &c.UpdatedAt, &longName, &brand); err != nil {
			return nil, 0, fmt.Errorf("scanning price change row: %w", err)
		}
		c.PriceChangeType = models.PriceChangeType(typ)
		c.Product = &models.Product{
			ProductID: c.ProductID,
			LongName:  longName.String,
			Brand:     brand.String,
		}
		changes = append(changes, c)
	}
	return changes, total, rows.Err()
}
