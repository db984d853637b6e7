package colruyt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/Merilairon/colruyt-scraper/config"
	"github.com/Merilairon/colruyt-scraper/internal/models"
	"github.com/Merilairon/colruyt-scraper/metrics"
)

// ProgressFunc receives coarse page progress while a collection runs.
type ProgressFunc func(done, total int)

// ProductCollection is the possibly partial outcome of one harvest.
// FailedPages lists the 1-based pages whose retry budget ran out.
type ProductCollection struct {
	Products    []models.Product
	TotalFound  int
	PagesTotal  int
	FailedPages []int
}

// PromotionCollection is the promotion counterpart of ProductCollection.
type PromotionCollection struct {
	Promotions  []models.Promotion
	TotalFound  int
	PagesTotal  int
	FailedPages []int
}

// Collector walks the paginated catalog endpoints: one probe request
// to learn the total, then every page in flight concurrently. A page
// that exhausts its retries is dropped from the result, never fatal.
type Collector struct {
	fetcher  Fetcher
	cfg      config.ColruytConfig
	limiter  *rate.Limiter
	progress ProgressFunc
	today    func() time.Time
}

func NewCollector(fetcher Fetcher, cfg config.ColruytConfig, progress ProgressFunc) *Collector {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	return &Collector{
		fetcher:  fetcher,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
		progress: progress,
		today:    time.Now,
	}
}

// CollectProducts harvests the full product catalog. The probe error
// is the only fatal one; page failures surface in FailedPages.
func (c *Collector) CollectProducts(ctx context.Context) (*ProductCollection, error) {
	total, err := c.probeProductCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("probing product count: %w", err)
	}

	pageSize := c.productPageSize()
	pagesTotal := (total + pageSize - 1) / pageSize
	day := truncateToDay(c.today())
	logger.Info().Msgf("Collecting %d products over %d pages", total, pagesTotal)

	pages := make([][]models.Product, pagesTotal)
	failed := c.forEachPage(ctx, pagesTotal, "products", func(ctx context.Context, page int) error {
		body, err := c.fetcher.Fetch(ctx, c.cfg.ProductsURL, c.cfg.CatalogHost, c.productQuery(page, pageSize), false)
		if err != nil {
			return err
		}
		var resp productsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("decoding products page %d: %w", page, err)
		}
		out := make([]models.Product, 0, len(resp.Products))
		for _, dto := range resp.Products {
			out = append(out, dto.toModel(day))
		}
		pages[page-1] = out
		return nil
	})

	collection := &ProductCollection{TotalFound: total, PagesTotal: pagesTotal, FailedPages: failed}
	for _, page := range pages {
		collection.Products = append(collection.Products, page...)
	}
	return collection, nil
}

// CollectPromotions harvests all active promotions.
func (c *Collector) CollectPromotions(ctx context.Context) (*PromotionCollection, error) {
	total, err := c.probePromotionCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("probing promotion count: %w", err)
	}

	pageSize := c.promotionPageSize()
	pagesTotal := (total + pageSize - 1) / pageSize
	logger.Info().Msgf("Collecting %d promotions over %d pages", total, pagesTotal)

	pages := make([][]models.Promotion, pagesTotal)
	failed := c.forEachPage(ctx, pagesTotal, "promotions", func(ctx context.Context, page int) error {
		body, err := c.fetcher.Fetch(ctx, c.cfg.PromotionsURL, c.cfg.CatalogHost, c.promotionQuery(page, pageSize), false)
		if err != nil {
			return err
		}
		var resp promotionsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("decoding promotions page %d: %w", page, err)
		}
		out := make([]models.Promotion, 0, len(resp.Promotions))
		for _, dto := range resp.Promotions {
			out = append(out, dto.toModel())
		}
		pages[page-1] = out
		return nil
	})

	collection := &PromotionCollection{TotalFound: total, PagesTotal: pagesTotal, FailedPages: failed}
	for _, page := range pages {
		collection.Promotions = append(collection.Promotions, page...)
	}
	return collection, nil
}

// forEachPage runs fn for pages 1..pagesTotal concurrently and returns
// the sorted list of pages that failed.
func (c *Collector) forEachPage(ctx context.Context, pagesTotal int, resource string, fn func(ctx context.Context, page int) error) []int {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []int
		done   atomic.Int32
	)

	for page := 1; page <= pagesTotal; page++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			defer func() {
				if c.progress != nil {
					c.progress(int(done.Add(1)), pagesTotal)
				}
			}()

			err := c.limiter.Wait(ctx)
			if err == nil {
				err = fn(ctx, page)
			}
			if err != nil {
				logger.Warn().Err(err).Msgf("Dropping %s page %d of %d", resource, page, pagesTotal)
				metrics.RecordFailedPage(resource)
				mu.Lock()
				failed = append(failed, page)
				mu.Unlock()
				return
			}
			metrics.RecordPageFetched(resource)
		}(page)
	}

	wg.Wait()
	sort.Ints(failed)
	return failed
}

func (c *Collector) probeProductCount(ctx context.Context) (int, error) {
	body, err := c.fetcher.Fetch(ctx, c.cfg.ProductsURL, c.cfg.CatalogHost, c.productQuery(1, 1), false)
	if err != nil {
		return 0, err
	}
	var resp productsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decoding product probe: %w", err)
	}
	return resp.ProductsFound, nil
}

func (c *Collector) probePromotionCount(ctx context.Context) (int, error) {
	body, err := c.fetcher.Fetch(ctx, c.cfg.PromotionsURL, c.cfg.CatalogHost, c.promotionQuery(1, 1), false)
	if err != nil {
		return 0, err
	}
	var resp promotionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decoding promotion probe: %w", err)
	}
	return resp.TotalPromotionFound, nil
}

func (c *Collector) productQuery(page, size int) url.Values {
	return url.Values{
		"clientCode": {c.cfg.ClientCode},
		"placeId":    {c.cfg.PlaceID},
		"sort":       {"new desc"},
		"page":       {strconv.Itoa(page)},
		"size":       {strconv.Itoa(size)},
	}
}

func (c *Collector) promotionQuery(page, size int) url.Values {
	return url.Values{
		"clientCode": {c.cfg.ClientCode},
		"placeId":    {c.cfg.PlaceID},
		"page":       {strconv.Itoa(page)},
		"size":       {strconv.Itoa(size)},
	}
}

func (c *Collector) productPageSize() int {
	if c.cfg.ProductPageSize > 0 {
		return c.cfg.ProductPageSize
	}
	return 250
}

func (c *Collector) promotionPageSize() int {
	if c.cfg.PromotionPageSize > 0 {
		return c.cfg.PromotionPageSize
	}
	return 50
}

// truncateToDay normalizes an observation time to its calendar day.
func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
