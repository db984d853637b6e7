package business

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/Merilairon/colruyt-scraper/internal/models"
)

var testDay = time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

func basicPrice(productID string, value float64) models.Price {
	return models.Price{ProductID: productID, Date: testDay, BasicPrice: value}
}

func fptr(v float64) *float64 { return &v }

func TestDiffEmitsNewChangeOnPriceDrop(t *testing.T) {
	yesterday := []models.Price{basicPrice("X", 10.00)}
	today := []models.Price{basicPrice("X", 9.00)}

	result := Diff(yesterday, today, nil)

	if len(result.Updated) != 0 {
		t.Errorf("expected no updated records, got %v", result.Updated)
	}
	if len(result.New) != 1 {
		t.Fatalf("expected one new record, got %d", len(result.New))
	}
	change := result.New[0]
	if change.PriceChangeType != models.PriceChangeBasic {
		t.Errorf("expected BASIC tier, got %s", change.PriceChangeType)
	}
	if change.PriceChange != -1.00 {
		t.Errorf("expected price change -1.00, got %f", change.PriceChange)
	}
	if math.Abs(change.PriceChangePercentage-(-0.10)) > 1e-9 {
		t.Errorf("expected percentage -0.10, got %f", change.PriceChangePercentage)
	}
	if change.OldPrice != 10.00 || change.NewPrice != 9.00 {
		t.Errorf("expected 10.00 -> 9.00, got %f -> %f", change.OldPrice, change.NewPrice)
	}
}

func TestDiffSkipsUnchangedPriceWithExistingRecord(t *testing.T) {
	yesterday := []models.Price{basicPrice("X", 10.00)}
	today := []models.Price{basicPrice("X", 10.00)}
	existing := []models.PriceChange{{ProductID: "X", PriceChangeType: models.PriceChangeBasic}}

	result := Diff(yesterday, today, existing)

	if len(result.New) != 0 || len(result.Updated) != 0 {
		t.Errorf("expected no records for unchanged price, got new=%v updated=%v", result.New, result.Updated)
	}
}

func TestDiffEmitsBaselineOnFirstObservation(t *testing.T) {
	today := []models.Price{basicPrice("X", 5.00)}

	result := Diff(nil, today, nil)

	if len(result.New) != 1 {
		t.Fatalf("expected one baseline record, got %d", len(result.New))
	}
	change := result.New[0]
	if change.PriceChange != 0 {
		t.Errorf("expected zero-magnitude baseline, got %f", change.PriceChange)
	}
	if change.OldPrice != 5.00 || change.NewPrice != 5.00 {
		t.Errorf("expected old=new=5.00, got %f and %f", change.OldPrice, change.NewPrice)
	}
}

func TestDiffEmitsBaselineWhenRecordMissing(t *testing.T) {
	// Price is unchanged but no change record exists for the tier yet.
	yesterday := []models.Price{basicPrice("X", 4.00)}
	today := []models.Price{basicPrice("X", 4.00)}

	result := Diff(yesterday, today, nil)

	if len(result.New) != 1 {
		t.Fatalf("expected a baseline record, got %d", len(result.New))
	}
	if result.New[0].PriceChange != 0 || result.New[0].OldPrice != 4.00 {
		t.Errorf("unexpected baseline %+v", result.New[0])
	}
}

func TestDiffClassifiesExistingKeyAsUpdated(t *testing.T) {
	yesterday := []models.Price{basicPrice("X", 10.00)}
	today := []models.Price{basicPrice("X", 12.50)}
	existing := []models.PriceChange{{ProductID: "X", PriceChangeType: models.PriceChangeBasic}}

	result := Diff(yesterday, today, existing)

	if len(result.New) != 0 {
		t.Errorf("expected no new records, got %v", result.New)
	}
	if len(result.Updated) != 1 {
		t.Fatalf("expected one updated record, got %d", len(result.Updated))
	}
	if result.Updated[0].PriceChange != 2.50 {
		t.Errorf("expected change 2.50, got %f", result.Updated[0].PriceChange)
	}
}

func TestDiffQuantityTierFallsBackToBasicBaseline(t *testing.T) {
	// Yesterday had no quantity price, so the quantity diff baselines
	// against yesterday's basic price.
	yesterday := []models.Price{basicPrice("X", 10.00)}
	today := []models.Price{{ProductID: "X", Date: testDay, BasicPrice: 10.00, QuantityPrice: fptr(8.00)}}
	existing := []models.PriceChange{{ProductID: "X", PriceChangeType: models.PriceChangeBasic}}

	result := Diff(yesterday, today, existing)

	if len(result.New) != 1 {
		t.Fatalf("expected one new quantity record, got %+v", result)
	}
	change := result.New[0]
	if change.PriceChangeType != models.PriceChangeQuantity {
		t.Fatalf("expected QUANTITY tier, got %s", change.PriceChangeType)
	}
	if change.OldPrice != 10.00 || change.PriceChange != -2.00 {
		t.Errorf("expected baseline 10.00 and change -2.00, got %f and %f", change.OldPrice, change.PriceChange)
	}
}

func TestDiffQuantityTierUsesPriorQuantityPrice(t *testing.T) {
	yesterday := []models.Price{{ProductID: "X", Date: testDay, BasicPrice: 10.00, QuantityPrice: fptr(9.00)}}
	today := []models.Price{{ProductID: "X", Date: testDay, BasicPrice: 10.00, QuantityPrice: fptr(8.00)}}
	existing := []models.PriceChange{
		{ProductID: "X", PriceChangeType: models.PriceChangeBasic},
		{ProductID: "X", PriceChangeType: models.PriceChangeQuantity},
	}

	result := Diff(yesterday, today, existing)

	if len(result.Updated) != 1 {
		t.Fatalf("expected one updated record, got %+v", result)
	}
	if result.Updated[0].OldPrice != 9.00 {
		t.Errorf("expected prior quantity price 9.00 as baseline, got %f", result.Updated[0].OldPrice)
	}
}

func TestDiffZeroOldPriceGivesZeroPercentage(t *testing.T) {
	yesterday := []models.Price{basicPrice("X", 0)}
	today := []models.Price{basicPrice("X", 5.00)}

	result := Diff(yesterday, today, nil)

	if len(result.New) != 1 {
		t.Fatalf("expected one record, got %d", len(result.New))
	}
	if result.New[0].PriceChangePercentage != 0 {
		t.Errorf("expected zero percentage for zero baseline, got %f", result.New[0].PriceChangePercentage)
	}
	if result.New[0].PriceChange != 5.00 {
		t.Errorf("expected absolute change 5.00, got %f", result.New[0].PriceChange)
	}
}

func TestDiffCarriesPromotionFlag(t *testing.T) {
	yesterday := []models.Price{basicPrice("X", 10.00)}
	today := []models.Price{{ProductID: "X", Date: testDay, BasicPrice: 9.00, IsRedPrice: true}}

	result := Diff(yesterday, today, nil)

	if len(result.New) != 1 || !result.New[0].InvolvesPromotion {
		t.Errorf("expected promotion-flagged change, got %+v", result.New)
	}
}

func TestDiffIsDeterministic(t *testing.T) {
	yesterday := []models.Price{
		basicPrice("A", 10.00),
		{ProductID: "B", Date: testDay, BasicPrice: 3.00, QuantityPrice: fptr(2.50)},
		basicPrice("C", 1.00),
	}
	today := []models.Price{
		basicPrice("A", 9.00),
		{ProductID: "B", Date: testDay, BasicPrice: 3.20, QuantityPrice: fptr(2.40), IsRedPrice: true},
		basicPrice("C", 1.00),
		basicPrice("D", 7.77),
	}
	existing := []models.PriceChange{
		{ProductID: "A", PriceChangeType: models.PriceChangeBasic},
		{ProductID: "C", PriceChangeType: models.PriceChangeBasic},
	}

	first := Diff(yesterday, today, existing)
	second := Diff(yesterday, today, existing)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("diff is not deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}
