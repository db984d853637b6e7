package business

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/Merilairon/colruyt-scraper/internal/models"
	"github.com/Merilairon/colruyt-scraper/internal/storage"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "business").Logger()

// ProductStore is the slice of the product repository ingestion needs.
type ProductStore interface {
	AllIDs(ctx context.Context, q storage.Querier) ([]string, error)
	DeleteByIDs(ctx context.Context, q storage.Querier, ids []string) (int64, error)
	UpsertBatch(ctx context.Context, q storage.Querier, products []models.Product) error
}

type PriceStore interface {
	InsertBatch(ctx context.Context, q storage.Querier, prices []models.Price) error
	DeleteOlderThan(ctx context.Context, q storage.Querier, cutoff time.Time) (int64, error)
	ByDate(ctx context.Context, q storage.Querier, day time.Time) ([]models.Price, error)
}

type PromotionStore interface {
	AllIDs(ctx context.Context, q storage.Querier) ([]string, error)
	DeleteByIDs(ctx context.Context, q storage.Querier, ids []string) (int64, error)
	UpsertBatch(ctx context.Context, q storage.Querier, promotions []models.Promotion) error
	DeleteSubRows(ctx context.Context, q storage.Querier, promotionIDs []string) error
	InsertBenefits(ctx context.Context, q storage.Querier, benefits []models.Benefit) error
	InsertTexts(ctx context.Context, q storage.Querier, texts []models.PromotionText) error
	InsertLinks(ctx context.Context, q storage.Querier, links []models.PromotionProduct) error
}

type PriceChangeStore interface {
	All(ctx context.Context, q storage.Querier) ([]models.PriceChange, error)
	UpsertBatch(ctx context.Context, q storage.Querier, changes []models.PriceChange) error
}

// TxRunner runs a function inside one database transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(storage.Querier) error) error
}

// IngestSummary reports what one catalog ingestion wrote and removed.
type IngestSummary struct {
	ProductsUpserted   int
	ProductsRemoved    int64
	PricesInserted     int
	PricesPruned       int64
	PromotionsUpserted int
	PromotionsRemoved  int64
	LinksResolved      int
}

// Ingestor writes one harvested catalog batch into storage. Every run
// is a single transaction: stale rows out, fresh rows in, old prices
// pruned. A failed run leaves the previous state untouched.
type Ingestor struct {
	tx            TxRunner
	products      ProductStore
	prices        PriceStore
	promotions    PromotionStore
	retentionDays int
	now           func() time.Time
}

func NewIngestor(tx TxRunner, products ProductStore, prices PriceStore, promotions PromotionStore, retentionDays int) *Ingestor {
	return &Ingestor{
		tx:            tx,
		products:      products,
		prices:        prices,
		promotions:    promotions,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

func (i *Ingestor) Ingest(ctx context.Context, products []models.Product, promotions []models.Promotion) (IngestSummary, error) {
	var summary IngestSummary

	fresh := dedupeProducts(products)
	freshPromos := dedupePromotions(promotions)
	cutoff := dayStart(i.now()).AddDate(0, 0, -i.retentionDays)

	err := i.tx.RunInTx(ctx, func(q storage.Querier) error {
		storedProducts, err := i.products.AllIDs(ctx, q)
		if err != nil {
			return err
		}
		removed, err := i.products.DeleteByIDs(ctx, q, staleKeys(storedProducts, productIDs(fresh)))
		if err != nil {
			return err
		}
		summary.ProductsRemoved = removed

		storedPromos, err := i.promotions.AllIDs(ctx, q)
		if err != nil {
			return err
		}
		removedPromos, err := i.promotions.DeleteByIDs(ctx, q, staleKeys(storedPromos, promotionIDs(freshPromos)))
		if err != nil {
			return err
		}
		summary.PromotionsRemoved = removedPromos

		pruned, err := i.prices.DeleteOlderThan(ctx, q, cutoff)
		if err != nil {
			return err
		}
		summary.PricesPruned = pruned

		if err := i.products.UpsertBatch(ctx, q, fresh); err != nil {
			return err
		}
		summary.ProductsUpserted = len(fresh)

		prices := pricesOf(fresh)
		if err := i.prices.InsertBatch(ctx, q, prices); err != nil {
			return err
		}
		summary.PricesInserted = len(prices)

		if err := i.promotions.UpsertBatch(ctx, q, freshPromos); err != nil {
			return err
		}
		summary.PromotionsUpserted = len(freshPromos)

		// Surviving promotions get their sub-rows rebuilt from scratch
		// so vanished benefits, texts and links do not linger.
		if err := i.promotions.DeleteSubRows(ctx, q, promotionIDs(freshPromos)); err != nil {
			return err
		}

		links, benefits, texts := promotionRows(freshPromos, storage.TechnicalArticleIndex(fresh))
		if err := i.promotions.InsertLinks(ctx, q, links); err != nil {
			return err
		}
		if err := i.promotions.InsertBenefits(ctx, q, benefits); err != nil {
			return err
		}
		if err := i.promotions.InsertTexts(ctx, q, texts); err != nil {
			return err
		}
		summary.LinksResolved = len(links)
		return nil
	})
	if err != nil {
		return IngestSummary{}, err
	}

	logger.Info().
		Int("products", summary.ProductsUpserted).
		Int64("productsRemoved", summary.ProductsRemoved).
		Int("prices", summary.PricesInserted).
		Int64("pricesPruned", summary.PricesPruned).
		Int("promotions", summary.PromotionsUpserted).
		Int64("promotionsRemoved", summary.PromotionsRemoved).
		Int("links", summary.LinksResolved).
		Msg("catalog ingested")
	return summary, nil
}

// dedupeProducts keeps the last occurrence of every product id at the
// position of its first occurrence.
func dedupeProducts(products []models.Product) []models.Product {
	seen := make(map[string]int, len(products))
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if at, ok := seen[p.ProductID]; ok {
			out[at] = p
			continue
		}
		seen[p.ProductID] = len(out)
		out = append(out, p)
	}
	return out
}

func dedupePromotions(promotions []models.Promotion) []models.Promotion {
	seen := make(map[string]int, len(promotions))
	out := make([]models.Promotion, 0, len(promotions))
	for _, p := range promotions {
		if at, ok := seen[p.PromotionID]; ok {
			out[at] = p
			continue
		}
		seen[p.PromotionID] = len(out)
		out = append(out, p)
	}
	return out
}

// staleKeys returns the stored keys missing from the fresh batch,
// sorted for stable delete statements.
func staleKeys(stored, fresh []string) []string {
	keep := make(map[string]struct{}, len(fresh))
	for _, id := range fresh {
		keep[id] = struct{}{}
	}
	var stale []string
	for _, id := range stored {
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)
	return stale
}

func productIDs(products []models.Product) []string {
	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ProductID
	}
	return ids
}

func promotionIDs(promotions []models.Promotion) []string {
	ids := make([]string, len(promotions))
	for i, p := range promotions {
		ids[i] = p.PromotionID
	}
	return ids
}

// pricesOf collects the day's price rows from products carrying one.
func pricesOf(products []models.Product) []models.Price {
	prices := make([]models.Price, 0, len(products))
	for _, p := range products {
		if p.Price == nil {
			continue
		}
		price := *p.Price
		price.ProductID = p.ProductID
		prices = append(prices, price)
	}
	return prices
}

// promotionRows flattens promotions into link, benefit and text rows.
// Technical article numbers resolve against the fresh product batch;
// numbers without a match produce no link row.
func promotionRows(promotions []models.Promotion, articleIndex map[string]string) ([]models.PromotionProduct, []models.Benefit, []models.PromotionText) {
	var (
		links    []models.PromotionProduct
		benefits []models.Benefit
		texts    []models.PromotionText
	)
	for _, promo := range promotions {
		linked := make(map[string]struct{}, len(promo.TechnicalArticleNumbers))
		for _, article := range promo.TechnicalArticleNumbers {
			productID, ok := articleIndex[article]
			if !ok {
				continue
			}
			if _, dup := linked[productID]; dup {
				continue
			}
			linked[productID] = struct{}{}
			links = append(links, models.PromotionProduct{PromotionID: promo.PromotionID, ProductID: productID})
		}
		for _, b := range promo.Benefits {
			b.PromotionID = promo.PromotionID
			benefits = append(benefits, b)
		}
		for _, t := range promo.Texts {
			t.PromotionID = promo.PromotionID
			texts = append(texts, t)
		}
	}
	return links, benefits, texts
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
