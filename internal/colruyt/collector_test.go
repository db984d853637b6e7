package colruyt

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Merilairon/colruyt-scraper/config"
)

// fakeFetcher satisfies Fetcher with canned per-page responses.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   []url.Values
	respond func(rawURL string, query url.Values) ([]byte, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL, host string, query url.Values, skipAuth bool) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, query)
	f.mu.Unlock()
	return f.respond(rawURL, query)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testCollectorConfig() config.ColruytConfig {
	return config.ColruytConfig{
		ProductsURL:       "https://apip.test/products",
		PromotionsURL:     "https://apip.test/promotions",
		CatalogHost:       "apip.test",
		ClientCode:        "clp",
		PlaceID:           "604",
		ProductPageSize:   2,
		PromotionPageSize: 2,
		RequestsPerSecond: 1000,
	}
}

func productPage(total int, ids ...string) []byte {
	body := fmt.Sprintf(`{"productsFound":%d,"products":[`, total)
	for i, id := range ids {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`{"productId":%q,"LongName":"Product %s","price":{"basicPrice":1.5,"isRedPrice":false}}`, id, id)
	}
	return []byte(body + "]}")
}

func TestCollectProductsAcrossPages(t *testing.T) {
	pages := map[string][]byte{
		"1": productPage(5, "p1", "p2"),
		"2": productPage(5, "p3", "p4"),
		"3": productPage(5, "p5"),
	}
	fetcher := &fakeFetcher{respond: func(rawURL string, query url.Values) ([]byte, error) {
		if query.Get("size") == "1" {
			return productPage(5, "p1"), nil
		}
		page, ok := pages[query.Get("page")]
		if !ok {
			return nil, fmt.Errorf("unexpected page %s", query.Get("page"))
		}
		return page, nil
	}}

	collector := NewCollector(fetcher, testCollectorConfig(), nil)
	collector.today = func() time.Time { return time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC) }

	result, err := collector.CollectProducts(context.Background())
	if err != nil {
		t.Fatalf("CollectProducts returned error: %v", err)
	}

	if result.TotalFound != 5 || result.PagesTotal != 3 {
		t.Errorf("unexpected totals: found %d over %d pages", result.TotalFound, result.PagesTotal)
	}
	if len(result.FailedPages) != 0 {
		t.Errorf("expected no failed pages, got %v", result.FailedPages)
	}

	var ids []string
	for _, p := range result.Products {
		ids = append(ids, p.ProductID)
	}
	want := []string{"p1", "p2", "p3", "p4", "p5"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("expected products %v in page order, got %v", want, ids)
	}

	first := result.Products[0]
	if first.Price == nil {
		t.Fatal("expected a price on the first product")
	}
	wantDay := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	if !first.Price.Date.Equal(wantDay) {
		t.Errorf("expected price date %v, got %v", wantDay, first.Price.Date)
	}

	// The probe plus one call per page.
	if got := fetcher.callCount(); got != 4 {
		t.Errorf("expected 4 fetch calls, got %d", got)
	}
	fetcher.mu.Lock()
	probe := fetcher.calls[0]
	fetcher.mu.Unlock()
	if probe.Get("clientCode") != "clp" || probe.Get("placeId") != "604" || probe.Get("sort") == "" {
		t.Errorf("probe missing expected query params: %v", probe)
	}
}

func TestCollectProductsDropsFailedPages(t *testing.T) {
	fetcher := &fakeFetcher{respond: func(rawURL string, query url.Values) ([]byte, error) {
		switch {
		case query.Get("size") == "1":
			return productPage(5, "p1"), nil
		case query.Get("page") == "2":
			return nil, errors.New("attempts exhausted after 10 tries")
		case query.Get("page") == "1":
			return productPage(5, "p1", "p2"), nil
		default:
			return productPage(5, "p5"), nil
		}
	}}

	collector := NewCollector(fetcher, testCollectorConfig(), nil)
	result, err := collector.CollectProducts(context.Background())
	if err != nil {
		t.Fatalf("expected a partial result, got error: %v", err)
	}

	if !reflect.DeepEqual(result.FailedPages, []int{2}) {
		t.Errorf("expected failed pages [2], got %v", result.FailedPages)
	}
	var ids []string
	for _, p := range result.Products {
		ids = append(ids, p.ProductID)
	}
	want := []string{"p1", "p2", "p5"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("expected surviving products %v, got %v", want, ids)
	}
}

func TestCollectProductsEmptyCatalog(t *testing.T) {
	fetcher := &fakeFetcher{respond: func(rawURL string, query url.Values) ([]byte, error) {
		return []byte(`{"productsFound":0,"products":[]}`), nil
	}}

	collector := NewCollector(fetcher, testCollectorConfig(), nil)
	result, err := collector.CollectProducts(context.Background())
	if err != nil {
		t.Fatalf("CollectProducts returned error: %v", err)
	}
	if len(result.Products) != 0 || result.PagesTotal != 0 {
		t.Errorf("expected empty result, got %d products over %d pages", len(result.Products), result.PagesTotal)
	}
	// Only the probe went out.
	if got := fetcher.callCount(); got != 1 {
		t.Errorf("expected a single probe call, got %d", got)
	}
}

func TestCollectProductsProbeFailureIsFatal(t *testing.T) {
	fetcher := &fakeFetcher{respond: func(rawURL string, query url.Values) ([]byte, error) {
		return nil, errors.New("attempts exhausted after 10 tries")
	}}

	collector := NewCollector(fetcher, testCollectorConfig(), nil)
	if _, err := collector.CollectProducts(context.Background()); err == nil {
		t.Fatal("expected probe failure to be fatal")
	}
}

func TestCollectPromotions(t *testing.T) {
	page1 := []byte(`{"totalPromotionFound":3,"promotions":[
		{"promotionId":"PROMO1","promotionType":"PERCENT_OFF","activeStartDate":"2025-01-10","activeEndDate":"2025-01-20",
		 "linkedTechnicalArticleNumber":"111, 222","brands":[{"brandName":"Boni"}],
		 "benefits":[{"benefitPercentage":25,"minLimit":1,"maxLimit":24}],
		 "promotionText":[{"textType":"mainText","text":"25% off"}]},
		{"promotionId":"PROMO2","promotionType":"AMOUNT_OFF","activeStartDate":"2025-01-12","activeEndDate":"2025-01-19"}]}`)
	page2 := []byte(`{"totalPromotionFound":3,"promotions":[
		{"promotionId":"PROMO3","promotionType":"PLUS_ONE","activeStartDate":"2025-01-01","activeEndDate":"2025-02-01"}]}`)

	fetcher := &fakeFetcher{respond: func(rawURL string, query url.Values) ([]byte, error) {
		if query.Get("size") == "1" {
			return []byte(`{"totalPromotionFound":3,"promotions":[]}`), nil
		}
		if query.Get("page") == "1" {
			return page1, nil
		}
		return page2, nil
	}}

	collector := NewCollector(fetcher, testCollectorConfig(), nil)
	result, err := collector.CollectPromotions(context.Background())
	if err != nil {
		t.Fatalf("CollectPromotions returned error: %v", err)
	}

	if len(result.Promotions) != 3 || result.PagesTotal != 2 {
		t.Fatalf("expected 3 promotions over 2 pages, got %d over %d", len(result.Promotions), result.PagesTotal)
	}

	promo := result.Promotions[0]
	if promo.PromotionID != "PROMO1" {
		t.Errorf("unexpected first promotion %s", promo.PromotionID)
	}
	if !reflect.DeepEqual(promo.TechnicalArticleNumbers, []string{"111", "222"}) {
		t.Errorf("expected normalized article numbers, got %v", promo.TechnicalArticleNumbers)
	}
	wantStart := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	if !promo.ActiveStartDate.Equal(wantStart) {
		t.Errorf("expected start %v, got %v", wantStart, promo.ActiveStartDate)
	}
	if len(promo.Benefits) != 1 || promo.Benefits[0].PromotionID != "PROMO1" {
		t.Errorf("expected one benefit owned by PROMO1, got %v", promo.Benefits)
	}
	if len(promo.Texts) != 1 || promo.Texts[0].Text != "25% off" {
		t.Errorf("unexpected promotion texts %v", promo.Texts)
	}
	if !reflect.DeepEqual(promo.Brands, []string{"Boni"}) {
		t.Errorf("unexpected brands %v", promo.Brands)
	}
}

func TestCollectorReportsProgress(t *testing.T) {
	fetcher := &fakeFetcher{respond: func(rawURL string, query url.Values) ([]byte, error) {
		if query.Get("size") == "1" {
			return productPage(5, "p1"), nil
		}
		return productPage(5, "p1", "p2"), nil
	}}

	var maxDone atomic.Int32
	var calls atomic.Int32
	progress := func(done, total int) {
		calls.Add(1)
		if int32(done) > maxDone.Load() {
			maxDone.Store(int32(done))
		}
		if total != 3 {
			t.Errorf("expected total 3, got %d", total)
		}
	}

	collector := NewCollector(fetcher, testCollectorConfig(), progress)
	if _, err := collector.CollectProducts(context.Background()); err != nil {
		t.Fatalf("CollectProducts returned error: %v", err)
	}

	if calls.Load() != 3 {
		t.Errorf("expected 3 progress reports, got %d", calls.Load())
	}
	if maxDone.Load() != 3 {
		t.Errorf("expected progress to reach 3, got %d", maxDone.Load())
	}
}
