package colruyt

import (
	"strings"
	"time"

	"github.com/Merilairon/colruyt-scraper/internal/models"
)

// Wire shapes of the Colruyt gateway responses. Conversion to the
// domain models happens here so the rest of the pipeline never sees
// upstream quirks.

type productsResponse struct {
	ProductsFound int          `json:"productsFound"`
	Products      []productDTO `json:"products"`
}

type productDTO struct {
	ProductID string `json:"productId"`
	// Upstream capitalizes these two field names.
	LongName                string    `json:"LongName"`
	ShortName               string    `json:"ShortName"`
	Brand                   string    `json:"brand"`
	TopCategoryName         string    `json:"topCategoryName"`
	WalkRouteSequenceNumber int       `json:"walkRouteSequenceNumber"`
	IsAvailable             bool      `json:"isAvailable"`
	TechnicalArticleNumber  string    `json:"technicalArticleNumber"`
	CommercialArticleNumber string    `json:"commercialArticleNumber"`
	Price                   *priceDTO `json:"price"`
}

type priceDTO struct {
	BasicPrice            float64  `json:"basicPrice"`
	QuantityPrice         *float64 `json:"quantityPrice"`
	QuantityPriceQuantity *string  `json:"quantityPriceQuantity"`
	IsRedPrice            bool     `json:"isRedPrice"`
}

type promotionsResponse struct {
	TotalPromotionFound int            `json:"totalPromotionFound"`
	Promotions          []promotionDTO `json:"promotions"`
}

type promotionDTO struct {
	PromotionID                   string             `json:"promotionId"`
	PromotionType                 string             `json:"promotionType"`
	ActiveStartDate               string             `json:"activeStartDate"`
	ActiveEndDate                 string             `json:"activeEndDate"`
	LinkedTechnicalArticleNumber  string             `json:"linkedTechnicalArticleNumber"`
	LinkedCommercialArticleNumber string             `json:"linkedCommercialArticleNumber"`
	Brands                        []brandDTO         `json:"brands"`
	Benefits                      []benefitDTO       `json:"benefits"`
	Texts                         []promotionTextDTO `json:"promotionText"`
}

type brandDTO struct {
	BrandName string `json:"brandName"`
}

type benefitDTO struct {
	BenefitAmount     *float64 `json:"benefitAmount"`
	BenefitPercentage *float64 `json:"benefitPercentage"`
	MinLimit          int      `json:"minLimit"`
	MaxLimit          int      `json:"maxLimit"`
}

type promotionTextDTO struct {
	TextType string `json:"textType"`
	Text     string `json:"text"`
}

// configResponse is the bootstrap payload; the first entry of the
// nested header list is "<Header-Name>: <token>".
type configResponse struct {
	DataService struct {
		Headers []string `json:"headers"`
	} `json:"dataService"`
}

const promotionDateLayout = "2006-01-02"

func (p productDTO) toModel(day time.Time) models.Product {
	product := models.Product{
		ProductID:               p.ProductID,
		LongName:                p.LongName,
		ShortName:               p.ShortName,
		Brand:                   p.Brand,
		TopCategoryName:         p.TopCategoryName,
		WalkRouteSequenceNumber: p.WalkRouteSequenceNumber,
		IsAvailable:             p.IsAvailable,
		TechnicalArticleNumber:  p.TechnicalArticleNumber,
		CommercialArticleNumber: p.CommercialArticleNumber,
	}
	if p.Price != nil {
		product.Price = &models.Price{
			ProductID:             p.ProductID,
			Date:                  day,
			BasicPrice:            p.Price.BasicPrice,
			QuantityPrice:         p.Price.QuantityPrice,
			QuantityPriceQuantity: p.Price.QuantityPriceQuantity,
			IsRedPrice:            p.Price.IsRedPrice,
		}
	}
	return product
}

func (p promotionDTO) toModel() models.Promotion {
	promotion := models.Promotion{
		PromotionID:              p.PromotionID,
		PromotionType:            p.PromotionType,
		TechnicalArticleNumbers:  splitArticleNumbers(p.LinkedTechnicalArticleNumber),
		CommercialArticleNumbers: splitArticleNumbers(p.LinkedCommercialArticleNumber),
	}
	if t, err := time.Parse(promotionDateLayout, p.ActiveStartDate); err == nil {
		promotion.ActiveStartDate = t
	}
	if t, err := time.Parse(promotionDateLayout, p.ActiveEndDate); err == nil {
		promotion.ActiveEndDate = t
	}
	for _, b := range p.Brands {
		if b.BrandName != "" {
			promotion.Brands = append(promotion.Brands, b.BrandName)
		}
	}
	for _, b := range p.Benefits {
		promotion.Benefits = append(promotion.Benefits, models.Benefit{
			PromotionID:       p.PromotionID,
			BenefitAmount:     b.BenefitAmount,
			BenefitPercentage: b.BenefitPercentage,
			MinLimit:          b.MinLimit,
			MaxLimit:          b.MaxLimit,
		})
	}
	for _, t := range p.Texts {
		promotion.Texts = append(promotion.Texts, models.PromotionText{
			PromotionID: p.PromotionID,
			TextType:    t.TextType,
			Text:        t.Text,
		})
	}
	return promotion
}

// splitArticleNumbers normalizes the upstream comma-separated article
// number string into a trimmed list.
func splitArticleNumbers(raw string) []string {
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
