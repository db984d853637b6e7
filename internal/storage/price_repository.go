package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Merilairon/colruyt-scraper/internal/models"
)

// 1500 rows at 6 parameters per row.
const priceBatchSize = 1500

type PriceRepository struct {
	db *sql.DB
}

func NewPriceRepository(db *sql.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// InsertBatch adds one price row per product for their observation
// day. Rows that already exist for (product, day) are left untouched.
func (r *PriceRepository) InsertBatch(ctx context.Context, q Querier, prices []models.Price) error {
	for start := 0; start < len(prices); start += priceBatchSize {
		end := start + priceBatchSize
		if end > len(prices) {
			end = len(prices)
		}
		if err := r.insertChunk(ctx, q, prices[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *PriceRepository) insertChunk(ctx context.Context, q Querier, prices []models.Price) error {
	if len(prices) == 0 {
		return nil
	}

	valueStrings := make([]string, 0, len(prices))
	args := make([]interface{}, 0, len(prices)*6)
	for i, p := range prices {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)",
			i*6+1, i*6+2, i*6+3, i*6+4, i*6+5, i*6+6))
		args = append(args, p.ProductID, p.Date, p.BasicPrice, p.QuantityPrice, p.QuantityPriceQuantity, p.IsRedPrice)
	}

	query := fmt.Sprintf(`
		INSERT INTO colruyt.prices (product_id, date, basic_price, quantity_price, quantity_price_quantity, is_red_price)
		VALUES
			%s
		ON CONFLICT (product_id, date) DO NOTHING;
	`, strings.Join(valueStrings, ", "))

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting %d prices: %w", len(prices), err)
	}
	return nil
}

// DeleteOlderThan drops price rows strictly before the cutoff day;
// the boundary day itself is retained.
func (r *PriceRepository) DeleteOlderThan(ctx context.Context, q Querier, cutoff time.Time) (int64, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM colruyt.prices WHERE date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting prices before %s: %w", cutoff.Format("2006-01-02"), err)
	}
	return res.RowsAffected()
}

// ByDate returns the full price snapshot of one calendar day.
func (r *PriceRepository) ByDate(ctx context.Context, q Querier, day time.Time) ([]models.Price, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, date, basic_price, quantity_price, quantity_price_quantity, is_red_price
		FROM colruyt.prices
		WHERE date = $1`,
		day)
	if err != nil {
		return nil, fmt.Errorf("selecting prices for %s: %w", day.Format("2006-01-02"), err)
	}
	defer rows.Close()
	return scanPrices(rows)
}

// HistoryByProduct returns the most recent price rows of one product,
// newest first.
func (r *PriceRepository) HistoryByProduct(ctx context.Context, productID string, limit int) ([]models.Price, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, date, basic_price, quantity_price, quantity_price_quantity, is_red_price
		FROM colruyt.prices
		WHERE product_id = $1
		ORDER BY date DESC
		LIMIT $2`,
		productID, limit)
	if err != nil {
		return nil, fmt.Errorf("selecting price history for %s: %w", productID, err)
	}
	defer rows.Close()
	return scanPrices(rows)
}

func scanPrices(rows *sql.Rows) ([]models.Price, error) {
	var prices []models.Price
	for rows.Next() {
		var (
			p                     models.Price
			quantityPrice         sql.NullFloat64
			quantityPriceQuantity sql.NullString
		)
		if err := rows.Scan(&p.ProductID, &p.Date, &p.BasicPrice, &quantityPrice, &quantityPriceQuantity, &p.IsRedPrice); err != nil {
			return nil, fmt.Errorf("scanning price row: %w", err)
		}
		if quantityPrice.Valid {
			v := quantityPrice.Float64
			p.QuantityPrice = &v
		}
		if quantityPriceQuantity.Valid {
			v := quantityPriceQuantity.String
			p.QuantityPriceQuantity = &v
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}
