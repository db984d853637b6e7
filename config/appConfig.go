package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// AppConfig is the root configuration shared by the scraper pipeline
// and the read API.
type AppConfig struct {
	Colruyt  ColruytConfig  `yaml:"colruyt"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	API      APIConfig      `yaml:"api"`
}

// ColruytConfig describes the upstream catalog endpoints and the fetch
// behaviour against them.
type ColruytConfig struct {
	ProductsURL           string   `yaml:"products_url"`
	PromotionsURL         string   `yaml:"promotions_url"`
	ConfigURL             string   `yaml:"config_url"`
	CatalogHost           string   `yaml:"catalog_host"`
	ConfigHost            string   `yaml:"config_host"`
	ClientCode            string   `yaml:"client_code"`
	PlaceID               string   `yaml:"place_id"`
	ProductPageSize       int      `yaml:"product_page_size"`
	PromotionPageSize     int      `yaml:"promotion_page_size"`
	MaxTries              int      `yaml:"max_tries"`
	RequestTimeoutSeconds int      `yaml:"request_timeout_seconds"`
	RequestsPerSecond     int      `yaml:"requests_per_second"`
	ProxyEnabled          bool     `yaml:"proxy_enabled"`
	Proxies               []string `yaml:"proxies"`
}

type RedisConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Addr            string `yaml:"addr"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// PipelineConfig holds the harvest schedule and retention policy.
type PipelineConfig struct {
	RetentionDays   int    `yaml:"retention_days"`
	CatalogCron     string `yaml:"catalog_cron"`
	PriceChangeCron string `yaml:"price_change_cron"`
}

type APIConfig struct {
	Addr      string `yaml:"addr"`
	RateLimit int    `yaml:"rate_limit"`
}

// LoadConfig builds the configuration from the environment and, when
// filename names an existing YAML file, overlays the values it sets.
func LoadConfig(filename string) (*AppConfig, error) {
	config := GetConfig()
	if filename == "" {
		return config, nil
	}

	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, err
	}
	return config, nil
}
