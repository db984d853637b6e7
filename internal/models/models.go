package models

import "time"

// Product is one catalog entry as harvested from the upstream API.
type Product struct {
	ProductID               string    `json:"productId"`
	LongName                string    `json:"longName"`
	ShortName               string    `json:"shortName"`
	Brand                   string    `json:"brand"`
	TopCategoryName         string    `json:"topCategoryName"`
	WalkRouteSequenceNumber int       `json:"walkRouteSequenceNumber"`
	IsAvailable             bool      `json:"isAvailable"`
	TechnicalArticleNumber  string    `json:"technicalArticleNumber"`
	CommercialArticleNumber string    `json:"commercialArticleNumber"`
	Price                   *Price    `json:"price,omitempty"`
	PriceHistory            []Price   `json:"priceHistory,omitempty"`
	UpdatedAt               time.Time `json:"-"`
}

// Price is one observed price point. At most one row exists per
// product per calendar day.
type Price struct {
	ProductID             string    `json:"-"`
	Date                  time.Time `json:"date"`
	BasicPrice            float64   `json:"basicPrice"`
	QuantityPrice         *float64  `json:"quantityPrice,omitempty"`
	QuantityPriceQuantity *string   `json:"quantityPriceQuantity,omitempty"`
	IsRedPrice            bool      `json:"isRedPrice"`
}

type PriceChangeType string

const (
	PriceChangeBasic    PriceChangeType = "BASIC"
	PriceChangeQuantity PriceChangeType = "QUANTITY"
)

// PriceChange records the latest transition of one price tier for one
// product. It is keyed by (ProductID, PriceChangeType) and is not a
// history.
type PriceChange struct {
	ProductID             string          `json:"productId"`
	PriceChangeType       PriceChangeType `json:"priceChangeType"`
	PriceChange           float64         `json:"priceChange"`
	PriceChangePercentage float64         `json:"priceChangePercentage"`
	InvolvesPromotion     bool            `json:"involvesPromotion"`
	OldPrice              float64         `json:"oldPrice"`
	NewPrice              float64         `json:"newPrice"`
	UpdatedAt             time.Time       `json:"updatedAt"`
	Product               *Product        `json:"product,omitempty"`
}

// Promotion is one upstream promotion with its owned benefit and text
// rows. Article number lists are normalized from the comma-separated
// upstream representation.
type Promotion struct {
	PromotionID              string          `json:"promotionId"`
	PromotionType            string          `json:"promotionType"`
	ActiveStartDate          time.Time       `json:"activeStartDate"`
	ActiveEndDate            time.Time       `json:"activeEndDate"`
	TechnicalArticleNumbers  []string        `json:"technicalArticleNumbers"`
	CommercialArticleNumbers []string        `json:"commercialArticleNumbers"`
	Brands                   []string        `json:"brands"`
	Benefits                 []Benefit       `json:"benefits,omitempty"`
	Texts                    []PromotionText `json:"texts,omitempty"`
	ProductIDs               []string        `json:"productIds,omitempty"`
	UpdatedAt                time.Time       `json:"-"`
}

type Benefit struct {
	PromotionID       string   `json:"-"`
	BenefitAmount     *float64 `json:"benefitAmount,omitempty"`
	BenefitPercentage *float64 `json:"benefitPercentage,omitempty"`
	MinLimit          int      `json:"minLimit"`
	MaxLimit          int      `json:"maxLimit"`
}

type PromotionText struct {
	PromotionID string `json:"-"`
	TextType    string `json:"textType"`
	Text        string `json:"text"`
}

// PromotionProduct links a promotion to one resolved product.
type PromotionProduct struct {
	PromotionID string `json:"promotionId"`
	ProductID   string `json:"productId"`
}
