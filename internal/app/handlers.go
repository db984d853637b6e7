package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Merilairon/colruyt-scraper/internal/business"
	"github.com/Merilairon/colruyt-scraper/internal/models"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "api").Logger()

const (
	defaultPageSize = 50
	maxPageSize     = 250

	// Price rows attached to a product detail response.
	priceHistoryLimit = 30
)

type ProductReader interface {
	Page(ctx context.Context, search string, limit, offset int) ([]models.Product, int, error)
	ByID(ctx context.Context, productID string) (*models.Product, error)
}

type PriceHistoryReader interface {
	HistoryByProduct(ctx context.Context, productID string, limit int) ([]models.Price, error)
}

type PromotionReader interface {
	Page(ctx context.Context, activeOnly bool, limit, offset int) ([]models.Promotion, int, error)
	ByID(ctx context.Context, promotionID string) (*models.Promotion, error)
}

type PriceChangeReader interface {
	Page(ctx context.Context, changeType, sort string, limit, offset int) ([]models.PriceChange, int, error)
}

// Handler serves the read API over the stored catalog.
type Handler struct {
	products     ProductReader
	prices       PriceHistoryReader
	promotions   PromotionReader
	priceChanges PriceChangeReader
	cache        *ResponseCache
	status       func() business.Status
}

func NewHandler(products ProductReader, prices PriceHistoryReader, promotions PromotionReader, priceChanges PriceChangeReader, cache *ResponseCache, status func() business.Status) *Handler {
	return &Handler{
		products:     products,
		prices:       prices,
		promotions:   promotions,
		priceChanges: priceChanges,
		cache:        cache,
		status:       status,
	}
}

// Register mounts all read routes.
func (h *Handler) Register(e *echo.Echo) {
	e.GET("/api/products", h.ListProducts)
	e.GET("/api/products/:id", h.GetProduct)
	e.GET("/api/promotions", h.ListPromotions)
	e.GET("/api/promotions/:id", h.GetPromotion)
	e.GET("/api/pricechanges", h.ListPriceChanges)
	e.GET("/health", h.Health)
}

type pageResponse struct {
	Total int         `json:"total"`
	Page  int         `json:"page"`
	Size  int         `json:"size"`
	Items interface{} `json:"items"`
}

// ListProducts returns one product page --> /api/products?page&size&search
func (h *Handler) ListProducts(c echo.Context) error {
	page, size := pagination(c)
	search := c.QueryParam("search")

	key := fmt.Sprintf("products:%d:%d:%s", page, size, search)
	if payload, ok := h.cache.Get(c.Request().Context(), key); ok {
		return c.JSONBlob(http.StatusOK, payload)
	}

	products, total, err := h.products.Page(c.Request().Context(), search, size, (page-1)*size)
	if err != nil {
		logger.Error().Err(err).Msg("listing products")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
	}
	if products == nil {
		products = []models.Product{}
	}
	return h.respond(c, key, pageResponse{Total: total, Page: page, Size: size, Items: products})
}

// GetProduct returns one product with its latest price and recent
// price history --> /api/products/:id
func (h *Handler) GetProduct(c echo.Context) error {
	id := c.Param("id")
	product, err := h.products.ByID(c.Request().Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "product not found"})
	}
	if err != nil {
		logger.Error().Err(err).Str("productId", id).Msg("loading product")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
	}

	history, err := h.prices.HistoryByProduct(c.Request().Context(), id, priceHistoryLimit)
	if err != nil {
		logger.Error().Err(err).Str("productId", id).Msg("loading price history")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
	}
	product.PriceHistory = history
	return c.JSON(http.StatusOK, product)
}

// ListPromotions returns one promotion page --> /api/promotions?page&size&active
func (h *Handler) ListPromotions(c echo.Context) error {
	page, size := pagination(c)
	activeOnly, _ := strconv.ParseBool(c.QueryParam("active"))

	key := fmt.Sprintf("promotions:%t:%d:%d", activeOnly, page, size)
	if payload, ok := h.cache.Get(c.Request().Context(), key); ok {
		return c.JSONBlob(http.StatusOK, payload)
	}

	promotions, total, err := h.promotions.Page(c.Request().Context(), activeOnly, size, (page-1)*size)
	if err != nil {
		logger.Error().Err(err).Msg("listing promotions")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
	}
	if promotions == nil {
		promotions = []models.Promotion{}
	}
	return h.respond(c, key, pageResponse{Total: total, Page: page, Size: size, Items: promotions})
}

// GetPromotion returns one promotion with sub-rows --> /api/promotions/:id
func (h *Handler) GetPromotion(c echo.Context) error {
	id := c.Param("id")
	promotion, err := h.promotions.ByID(c.Request().Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "promotion not found"})
	}
	if err != nil {
		logger.Error().Err(err).Str("promotionId", id).Msg("loading promotion")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, promotion)
}

// ListPriceChanges returns recent changes --> /api/pricechanges?type&sort&page&size
func (h *Handler) ListPriceChanges(c echo.Context) error {
	changeType := c.QueryParam("type")
	if changeType != "" && changeType != string(models.PriceChangeBasic) && changeType != string(models.PriceChangeQuantity) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "type must be BASIC or QUANTITY"})
	}
	sort := c.QueryParam("sort")
	if sort != "" && sort != "recent" && sort != "percentage" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "sort must be recent or percentage"})
	}
	page, size := pagination(c)

	key := fmt.Sprintf("pricechanges:%s:%s:%d:%d", changeType, sort, page, size)
	if payload, ok := h.cache.Get(c.Request().Context(), key); ok {
		return c.JSONBlob(http.StatusOK, payload)
	}

	changes, total, err := h.priceChanges.Page(c.Request().Context(), changeType, sort, size, (page-1)*size)
	if err != nil {
		logger.Error().Err(err).Msg("listing price changes")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
	}
	if changes == nil {
		changes = []models.PriceChange{}
	}
	return h.respond(c, key, pageResponse{Total: total, Page: page, Size: size, Items: changes})
}

// Health reports liveness and the phase of both pipelines --> /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   "colruyt-scraper",
		"pipelines": h.status(),
		"time":      time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) respond(c echo.Context, key string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		logger.Error().Err(err).Msg("encoding response")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "encoding failed"})
	}
	h.cache.Set(c.Request().Context(), key, payload)
	return c.JSONBlob(http.StatusOK, payload)
}

func pagination(c echo.Context) (page, size int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	size, _ = strconv.Atoi(c.QueryParam("size"))
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}
