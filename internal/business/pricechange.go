package business

import (
	"github.com/Merilairon/colruyt-scraper/internal/models"
)

// DiffResult separates first-time change records from records that
// overwrite an existing (product, tier) row.
type DiffResult struct {
	New     []models.PriceChange
	Updated []models.PriceChange
}

type changeKey struct {
	productID string
	tier      models.PriceChangeType
}

// Diff compares yesterday's and today's price snapshots against the
// known change records and emits one record per observed transition,
// per price tier. It is a pure function: identical inputs always
// produce identical outputs.
//
// A record is emitted when the tier value moved, or when the product
// and tier are observed for the first time; in the latter case the
// record is a zero-magnitude baseline with old and new price equal.
func Diff(yesterday, today []models.Price, existing []models.PriceChange) DiffResult {
	prior := make(map[string]models.Price, len(yesterday))
	for _, p := range yesterday {
		prior[p.ProductID] = p
	}
	known := make(map[changeKey]struct{}, len(existing))
	for _, c := range existing {
		known[changeKey{c.ProductID, c.PriceChangeType}] = struct{}{}
	}

	var result DiffResult
	for _, price := range today {
		basicOld, hasBasicOld := basicBaseline(prior, price.ProductID)
		addChange(&result, known, price, models.PriceChangeBasic, price.BasicPrice, basicOld, hasBasicOld)

		if price.QuantityPrice != nil {
			quantityOld, hasQuantityOld := quantityBaseline(prior, price.ProductID)
			addChange(&result, known, price, models.PriceChangeQuantity, *price.QuantityPrice, quantityOld, hasQuantityOld)
		}
	}
	return result
}

func addChange(result *DiffResult, known map[changeKey]struct{}, price models.Price,
	tier models.PriceChangeType, newValue, oldValue float64, hasOld bool) {

	_, hasRecord := known[changeKey{price.ProductID, tier}]

	var change models.PriceChange
	switch {
	case hasOld && newValue != oldValue:
		delta := newValue - oldValue
		pct := 0.0
		if oldValue > 0 {
			pct = delta / oldValue
		}
		change = models.PriceChange{
			ProductID:             price.ProductID,
			PriceChangeType:       tier,
			PriceChange:           delta,
			PriceChangePercentage: pct,
			InvolvesPromotion:     price.IsRedPrice,
			OldPrice:              oldValue,
			NewPrice:              newValue,
		}
	case !hasOld || !hasRecord:
		// First observation: a zero-magnitude baseline anchors
		// future diffs.
		change = models.PriceChange{
			ProductID:         price.ProductID,
			PriceChangeType:   tier,
			InvolvesPromotion: price.IsRedPrice,
			OldPrice:          newValue,
			NewPrice:          newValue,
		}
	default:
		return
	}

	if hasRecord {
		result.Updated = append(result.Updated, change)
	} else {
		result.New = append(result.New, change)
	}
}

func basicBaseline(prior map[string]models.Price, productID string) (float64, bool) {
	p, ok := prior[productID]
	if !ok {
		return 0, false
	}
	return p.BasicPrice, true
}

// quantityBaseline falls back to yesterday's basic price when no
// prior quantity price exists for the product.
func quantityBaseline(prior map[string]models.Price, productID string) (float64, bool) {
	p, ok := prior[productID]
	if !ok {
		return 0, false
	}
	if p.QuantityPrice != nil {
		return *p.QuantityPrice, true
	}
	return p.BasicPrice, true
}
