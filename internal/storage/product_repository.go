package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/Merilairon/colruyt-scraper/internal/models"
	"github.com/Merilairon/colruyt-scraper/pkg/textutil"
)

// 900 rows at 10 parameters per row stays well under the wire limit.
const productBatchSize = 900

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// AllIDs returns every stored product id.
func (r *ProductRepository) AllIDs(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT product_id FROM colruyt.products`)
	if err != nil {
		return nil, fmt.Errorf("selecting product ids: %w", err)
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

// DeleteByIDs removes the given products; prices, price changes and
// promotion links go with them through the cascading foreign keys.
func (r *ProductRepository) DeleteByIDs(ctx context.Context, q Querier, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := q.ExecContext(ctx, `DELETE FROM colruyt.products WHERE product_id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("deleting stale products: %w", err)
	}
	return res.RowsAffected()
}

// UpsertBatch inserts or fully overwrites the given products.
func (r *ProductRepository) UpsertBatch(ctx context.Context, q Querier, products []models.Product) error {
	for start := 0; start < len(products); start += productBatchSize {
		end := start + productBatchSize
		if end > len(products) {
			end = len(products)
		}
		if err := r.upsertChunk(ctx, q, products[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *ProductRepository) upsertChunk(ctx context.Context, q Querier, products []models.Product) error {
	if len(products) == 0 {
		return nil
	}

	valueStrings := make([]string, 0, len(products))
	args := make([]interface{}, 0, len(products)*10)
	for i, p := range products {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, NOW())",
			i*10+1, i*10+2, i*10+3, i*10+4, i*10+5, i*10+6, i*10+7, i*10+8, i*10+9, i*10+10))
		args = append(args,
			p.ProductID, p.LongName, p.ShortName, p.Brand, p.TopCategoryName,
			p.WalkRouteSequenceNumber, p.IsAvailable, p.TechnicalArticleNumber,
			p.CommercialArticleNumber, textutil.Fold(p.LongName+" "+p.Brand))
	}

	query := fmt.Sprintf(`
		INSERT INTO colruyt.products (product_id, long_name, short_name, brand, top_category_name,
			walk_route_sequence_number, is_available, technical_article_number,
			commercial_article_number, search_name, updated_at)
		VALUES
			%s
		ON CONFLICT (product_id) DO UPDATE
		SET
			long_name = EXCLUDED.long_name,
			short_name = EXCLUDED.short_name,
			brand = EXCLUDED.brand,
			top_category_name = EXCLUDED.top_category_name,
			walk_route_sequence_number = EXCLUDED.walk_route_sequence_number,
			is_available = EXCLUDED.is_available,
			technical_article_number = EXCLUDED.technical_article_number,
			commercial_article_number = EXCLUDED.commercial_article_number,
			search_name = EXCLUDED.search_name,
			updated_at = NOW();
	`, strings.Join(valueStrings, ", "))

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting %d products: %w", len(products), err)
	}
	return nil
}

// Page returns one page of products with their latest price attached.
// The search term is folded the same way search_name was stored.
func (r *ProductRepository) Page(ctx context.Context, search string, limit, offset int) ([]models.Product, int, error) {
	folded := ""
	if search != "" {
		folded = "%" + textutil.Fold(search) + "%"
	}

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM colruyt.products WHERE ($1 = '' OR search_name LIKE $1)`,
		folded).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting products: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT p.product_id, p.long_name, p.short_name, p.brand, p.top_category_name,
			p.walk_route_sequence_number, p.is_available, p.technical_article_number,
			p.commercial_article_number,
			pr.date, pr.basic_price, pr.quantity_price, pr.quantity_price_quantity, pr.is_red_price
		FROM colruyt.products p
		LEFT JOIN LATERAL (
			SELECT date, basic_price, quantity_price, quantity_price_quantity, is_red_price
			FROM colruyt.prices
			WHERE product_id = p.product_id
			ORDER BY date DESC
			LIMIT 1
		) pr ON TRUE
		WHERE ($1 = '' OR p.search_name LIKE $1)
		ORDER BY p.product_id
		LIMIT $2 OFFSET $3`,
		folded, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("selecting products page: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		product, err := scanProductWithPrice(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, product)
	}
	return products, total, rows.Err()
}

// ByID returns one product with its latest price, or sql.ErrNoRows.
func (r *ProductRepository) ByID(ctx context.Context, productID string) (*models.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.product_id, p.long_name, p.short_name, p.brand, p.top_category_name,
			p.walk_route_sequence_number, p.is_available, p.technical_article_number,
			p.commercial_article_number,
			pr.date, pr.basic_price, pr.quantity_price, pr.quantity_price_quantity, pr.is_red_price
		FROM colruyt.products p
		LEFT JOIN LATERAL (
			SELECT date, basic_price, quantity_price, quantity_price_quantity, is_red_price
			FROM colruyt.prices
			WHERE product_id = p.product_id
			ORDER BY date DESC
			LIMIT 1
		) pr ON TRUE
		WHERE p.product_id = $1`,
		productID)
	if err != nil {
		return nil, fmt.Errorf("selecting product %s: %w", productID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}
	product, err := scanProductWithPrice(rows)
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// TechnicalArticleIndex maps technical article numbers onto product
// ids for the current batch; promotion links resolve against it.
func TechnicalArticleIndex(products []models.Product) map[string]string {
	index := make(map[string]string, len(products))
	for _, p := range products {
		if p.TechnicalArticleNumber != "" {
			index[p.TechnicalArticleNumber] = p.ProductID
		}
	}
	return index
}

func scanProductWithPrice(rows *sql.Rows) (models.Product, error) {
	var (
		p                         models.Product
		longName, shortName       sql.NullString
		brand, topCategory        sql.NullString
		walkRoute                 sql.NullInt64
		available                 sql.NullBool
		techArticle, commArticle  sql.NullString
		priceDate                 sql.NullTime
		basicPrice, quantityPrice sql.NullFloat64
		quantityPriceQuantity     sql.NullString
		isRedPrice                sql.NullBool
	)

	err := rows.Scan(&p.ProductID, &longName, &shortName, &brand, &topCategory,
		&walkRoute, &available, &techArticle, &commArticle,
		&priceDate, &basicPrice, &quantityPrice, &quantityPriceQuantity, &isRedPrice)
	if err != nil {
		return models.Product{}, fmt.Errorf("scanning product row: %w", err)
	}

	p.LongName = longName.String
	p.ShortName = shortName.String
	p.Brand = brand.String
	p.TopCategoryName = topCategory.String
	p.WalkRouteSequenceNumber = int(walkRoute.Int64)
	p.IsAvailable = available.Bool
	p.TechnicalArticleNumber = techArticle.String
	p.CommercialArticleNumber = commArticle.String

	if priceDate.Valid {
		price := &models.Price{
			ProductID:  p.ProductID,
			Date:       priceDate.Time,
			BasicPrice: basicPrice.Float64,
			IsRedPrice: isRedPrice.Bool,
		}
		if quantityPrice.Valid {
			v := quantityPrice.Float64
			price.QuantityPrice = &v
		}
		if quantityPriceQuantity.Valid {
			v := quantityPriceQuantity.String
			price.QuantityPriceQuantity = &v
		}
		p.Price = price
	}
	return p, nil
}
