package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetConfig assembles the full application configuration from the
// environment, with defaults pointing at the public Colruyt gateway.
func GetConfig() *AppConfig {
	return &AppConfig{
		Colruyt: ColruytConfig{
			ProductsURL:           getEnv("COLRUYT_PRODUCTS_URL", "https://apip.colruyt.be/gateway/ictmgmt.emarkecom.cgproductretrsvc.v2/v1/nl/products"),
			PromotionsURL:         getEnv("COLRUYT_PROMOTIONS_URL", "https://apip.colruyt.be/gateway/ictmgmt.emarkecom.cgpromodomainsvc.v1/v1/nl/promotions"),
			ConfigURL:             getEnv("COLRUYT_CONFIG_URL", "https://apip.colruyt.be/gateway/ictmgmt.emarkecom.cgmnativeconfigsvc.v1/v1/configs"),
			CatalogHost:           getEnv("COLRUYT_CATALOG_HOST", "apip.colruyt.be"),
			ConfigHost:            getEnv("COLRUYT_CONFIG_HOST", "apip.colruyt.be"),
			ClientCode:            getEnv("COLRUYT_CLIENT_CODE", "clp"),
			PlaceID:               getEnv("COLRUYT_PLACE_ID", "604"),
			ProductPageSize:       getEnvInt("COLRUYT_PRODUCT_PAGE_SIZE", 250),
			PromotionPageSize:     getEnvInt("COLRUYT_PROMOTION_PAGE_SIZE", 50),
			MaxTries:              getEnvInt("COLRUYT_MAX_TRIES", 10),
			RequestTimeoutSeconds: getEnvInt("COLRUYT_REQUEST_TIMEOUT_SECONDS", 30),
			RequestsPerSecond:     getEnvInt("COLRUYT_REQUESTS_PER_SECOND", 10),
			ProxyEnabled:          getEnvBool("PROXY_ENABLED", false),
			Proxies:               getEnvList("PROXY_URLS", nil),
		},
		Postgres: PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			DBName:   getEnv("POSTGRES_NAME", "colruyt"),
		},
		Redis: RedisConfig{
			Enabled:         getEnvBool("REDIS_ENABLED", false),
			Addr:            getEnv("REDIS_ADDR", "localhost:6379"),
			Password:        getEnv("REDIS_PASSWORD", ""),
			DB:              getEnvInt("REDIS_DB", 0),
			CacheTTLSeconds: getEnvInt("REDIS_CACHE_TTL_SECONDS", 300),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_TOPIC", "price-changes"),
		},
		Pipeline: PipelineConfig{
			RetentionDays:   getEnvInt("PRICE_RETENTION_DAYS", 90),
			CatalogCron:     getEnv("CATALOG_CRON", "0 3 * * *"),
			PriceChangeCron: getEnv("PRICE_CHANGE_CRON", "30 3 * * *"),
		},
		API: APIConfig{
			Addr:      getEnv("API_ADDR", ":8080"),
			RateLimit: getEnvInt("API_RATE_LIMIT", 20),
		},
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// RequestTimeout returns the per-attempt timeout as a duration.
func (c ColruytConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// CacheTTL returns the read-API cache lifetime as a duration.
func (r RedisConfig) CacheTTL() time.Duration {
	return time.Duration(r.CacheTTLSeconds) * time.Second
}
