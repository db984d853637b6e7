package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/Merilairon/colruyt-scraper/internal/models"
)

// 900 rows at 7 parameters per row.
const promotionBatchSize = 900

type PromotionRepository struct {
	db *sql.DB
}

func NewPromotionRepository(db *sql.DB) *PromotionRepository {
	return &PromotionRepository{db: db}
}

// AllIDs returns every stored promotion id.
func (r *PromotionRepository) AllIDs(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT promotion_id FROM colruyt.promotions`)
	if err != nil {
		return nil, fmt.Errorf("selecting promotion ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteByIDs removes the given promotions; benefits, texts and
// product links cascade.
func (r *PromotionRepository) DeleteByIDs(ctx context.Context, q Querier, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := q.ExecContext(ctx, `DELETE FROM colruyt.promotions WHERE promotion_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("deleting stale promotions: %w", err)
	}
	return res.RowsAffected()
}

// UpsertBatch inserts or fully overwrites the given promotions.
func (r *PromotionRepository) UpsertBatch(ctx context.Context, q Querier, promotions []models.Promotion) error {
	for start := 0; start < len(promotions); start += promotionBatchSize {
		end := start + promotionBatchSize
		if end > len(promotions) {
			end = len(promotions)
		}
		if err := r.upsertChunk(ctx, q, promotions[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *PromotionRepository) upsertChunk(ctx context.Context, q Querier, promotions []models.Promotion) error {
	if len(promotions) == 0 {
		return nil
	}

	valueStrings := make([]string, 0, len(promotions))
	args := make([]interface{}, 0, len(promotions)*7)
	for i, p := range promotions {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, NOW())",
			i*7+1, i*7+2, i*7+3, i*7+4, i*7+5, i*7+6, i*7+7))
		args = append(args, p.PromotionID, p.PromotionType, nullDate(p.ActiveStartDate), nullDate(p.ActiveEndDate),
			strings.Join(p.TechnicalArticleNumbers, ","), strings.Join(p.CommercialArticleNumbers, ","),
			pq.Array(p.Brands))
	}

	query := fmt.Sprintf(`
		INSERT INTO colruyt.promotions (promotion_id, promotion_type, active_start_date, active_end_date,
			linked_technical_article_number, linked_commercial_article_number, brands, updated_at)
		VALUES
			%s
		ON CONFLICT (promotion_id) DO UPDATE
		SET
			promotion_type = EXCLUDED.promotion_type,
			active_start_date = EXCLUDED.active_start_date,
			active_end_date = EXCLUDED.active_end_date,
			linked_technical_article_number = EXCLUDED.linked_technical_article_number,
			linked_commercial_article_number = EXCLUDED.linked_commercial_article_number,
			brands = EXCLUDED.brands,
			updated_at = NOW();
	`, strings.Join(valueStrings, ", "))

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting %d promotions: %w", len(promotions), err)
	}
	return nil
}

// DeleteSubRows clears benefits, texts and product links for the
// given promotions ahead of a full replace.
func (r *PromotionRepository) DeleteSubRows(ctx context.Context, q Querier, promotionIDs []string) error {
	if len(promotionIDs) == 0 {
		return nil
	}
	for _, table := range []string{"colruyt.promotion_products", "colruyt.benefits", "colruyt.promotion_texts"} {
		query := fmt.Sprintf(`DELETE FROM %s WHERE promotion_id = ANY($1)`, table)
		if _, err := q.ExecContext(ctx, query, pq.Array(promotionIDs)); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return nil
}

// InsertBenefits bulk-inserts benefit rows, ignoring conflicts.
func (r *PromotionRepository) InsertBenefits(ctx context.Context, q Querier, benefits []models.Benefit) error {
	if len(benefits) == 0 {
		return nil
	}
	valueStrings := make([]string, 0, len(benefits))
	args := make([]interface{}, 0, len(benefits)*5)
	for i, b := range benefits {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)",
			i*5+1, i*5+2, i*5+3, i*5+4, i*5+5))
		args = append(args, b.PromotionID, b.BenefitAmount, b.BenefitPercentage, b.MinLimit, b.MaxLimit)
	}
	query := fmt.Sprintf(`
		INSERT INTO colruyt.benefits (promotion_id, benefit_amount, benefit_percentage, min_limit, max_limit)
		VALUES %s
		ON CONFLICT DO NOTHING;`, strings.Join(valueStrings, ", "))
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting %d benefits: %w", len(benefits), err)
	}
	return nil
}

// InsertTexts bulk-inserts marketing text rows, ignoring conflicts.
func (r *PromotionRepository) InsertTexts(ctx context.Context, q Querier, texts []models.PromotionText) error {
	if len(texts) == 0 {
		return nil
	}
	valueStrings := make([]string, 0, len(texts))
	args := make([]interface{}, 0, len(texts)*3)
	for i, t := range texts {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d)", i*3+1, i*3+2, i*3+3))
		args = append(args, t.PromotionID, t.TextType, t.Text)
	}
	query := fmt.Sprintf(`
		INSERT INTO colruyt.promotion_texts (promotion_id, text_type, text)
		VALUES %s
		ON CONFLICT DO NOTHING;`, strings.Join(valueStrings, ", "))
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting %d promotion texts: %w", len(texts), err)
	}
	return nil
}

// InsertLinks bulk-inserts promotion-product links, ignoring
// duplicate pairs.
func (r *PromotionRepository) InsertLinks(ctx context.Context, q Querier, links []models.PromotionProduct) error {
	if len(links) == 0 {
		return nil
	}
	valueStrings := make([]string, 0, len(links))
	args := make([]interface{}, 0, len(links)*2)
	for i, l := range links {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d)", i*2+1, i*2+2))
		args = append(args, l.PromotionID, l.ProductID)
	}
	query := fmt.Sprintf(`
		INSERT INTO colruyt.promotion_products (promotion_id, product_id)
		VALUES %s
		ON CONFLICT (promotion_id, product_id) DO NOTHING;`, strings.Join(valueStrings, ", "))
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting %d promotion links: %w", len(links), err)
	}
	return nil
}

// Page returns one page of promotions with benefits, texts and linked
// product ids attached. With activeOnly set, only promotions whose
// validity window covers today are returned.
func (r *PromotionRepository) Page(ctx context.Context, activeOnly bool, limit, offset int) ([]models.Promotion, int, error) {
	var total int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM colruyt.promotions
		WHERE ($1 = FALSE OR (active_start_date <= CURRENT_DATE AND active_end_date >= CURRENT_DATE))`,
		activeOnly).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting promotions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT promotion_id, promotion_type, active_start_date, active_end_date,
			linked_technical_article_number, linked_commercial_article_number, brands
		FROM colruyt.promotions
		WHERE ($1 = FALSE OR (active_start_date <= CURRENT_DATE AND active_end_date >= CURRENT_DATE))
		ORDER BY active_end_date DESC NULLS LAST, promotion_id
		LIMIT $2 OFFSET $3`,
		activeOnly, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("selecting promotions page: %w", err)
	}
	defer rows.Close()

	var promotions []models.Promotion
	for rows.Next() {
		promo, err := scanPromotion(rows)
		if err != nil {
			return nil, 0, err
		}
		promotions = append(promotions, promo)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := r.attachSubRows(ctx, promotions); err != nil {
		return nil, 0, err
	}
	return promotions, total, nil
}

// ByID returns one promotion with all sub-rows, or sql.ErrNoRows.
func (r *PromotionRepository) ByID(ctx context.Context, promotionID string) (*models.Promotion, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT promotion_id, promotion_type, active_start_date, active_end_date,
			linked_technical_article_number, linked_commercial_article_number, brands
		FROM colruyt.promotions
		WHERE promotion_id = $1`,
		promotionID)
	if err != nil {
		return nil, fmt.Errorf("selecting promotion %s: %w", promotionID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}
	promo, err := scanPromotion(rows)
	if err != nil {
		return nil, err
	}

	promotions := []models.Promotion{promo}
	if err := r.attachSubRows(ctx, promotions); err != nil {
		return nil, err
	}
	return &promotions[0], nil
}

func (r *PromotionRepository) attachSubRows(ctx context.Context, promotions []models.Promotion) error {
	if len(promotions) == 0 {
		return nil
	}
	ids := make([]string, len(promotions))
	index := make(map[string]*models.Promotion, len(promotions))
	for i := range promotions {
		ids[i] = promotions[i].PromotionID
		index[promotions[i].PromotionID] = &promotions[i]
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT promotion_id, benefit_amount, benefit_percentage, min_limit, max_limit
		FROM colruyt.benefits
		WHERE promotion_id = ANY($1)`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("selecting benefits: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			b              models.Benefit
			amount, pct    sql.NullFloat64
			minLim, maxLim sql.NullInt64
		)
		if err := rows.Scan(&b.PromotionID, &amount, &pct, &minLim, &maxLim); err != nil {
			return fmt.Errorf("scanning benefit row: %w", err)
		}
		if amount.Valid {
			v := amount.Float64
			b.BenefitAmount = &v
		}
		if pct.Valid {
			v := pct.Float64
			b.BenefitPercentage = &v
		}
		b.MinLimit = int(minLim.Int64)
		b.MaxLimit = int(maxLim.Int64)
		if promo, ok := index[b.PromotionID]; ok {
			promo.Benefits = append(promo.Benefits, b)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	textRows, err := r.db.QueryContext(ctx, `
		SELECT promotion_id, text_type, text
		FROM colruyt.promotion_texts
		WHERE promotion_id = ANY($1)`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("selecting promotion texts: %w", err)
	}
	defer textRows.Close()
	for textRows.Next() {
		var t models.PromotionText
		var textType, text sql.NullString
		if err := textRows.Scan(&t.PromotionID, &textType, &text); err != nil {
			return fmt.Errorf("scanning promotion text row: %w", err)
		}
		t.TextType = textType.String
		t.Text = text.String
		if promo, ok := index[t.PromotionID]; ok {
			promo.Texts = append(promo.Texts, t)
		}
	}
	if err := textRows.Err(); err != nil {
		return err
	}

	linkRows, err := r.db.QueryContext(ctx, `
		SELECT promotion_id, product_id
		FROM colruyt.promotion_products
		WHERE promotion_id = ANY($1)`,
		pq.Array(ids))
	if err != nil {
		return fmt.Errorf("selecting promotion links: %w", err)
	}
	defer linkRows.Close()
	for linkRows.Next() {
		var promotionID, productID string
		if err := linkRows.Scan(&promotionID, &productID); err != nil {
			return fmt.Errorf("scanning promotion link row: %w", err)
		}
		if promo, ok := index[promotionID]; ok {
			promo.ProductIDs = append(promo.ProductIDs, productID)
		}
	}
	return linkRows.Err()
}

func scanPromotion(rows *sql.Rows) (models.Promotion, error) {
	var (
		p                    models.Promotion
		promotionType        sql.NullString
		startDate, endDate   sql.NullTime
		techLinks, commLinks sql.NullString
		brands               pq.StringArray
	)
	err := rows.Scan(&p.PromotionID, &promotionType, &startDate, &endDate, &techLinks, &commLinks, &brands)
	if err != nil {
		return models.Promotion{}, fmt.Errorf("scanning promotion row: %w", err)
	}
	p.PromotionType = promotionType.String
	if startDate.Valid {
		p.ActiveStartDate = startDate.Time
	}
	if endDate.Valid {
		p.ActiveEndDate = endDate.Time
	}
	p.TechnicalArticleNumbers = splitList(techLinks.String)
	p.CommercialArticleNumbers = splitList(commLinks.String)
	p.Brands = []string(brands)
	return p, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func nullDate(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
