package storage

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/Merilairon/colruyt-scraper/pkg/dbconnect/migration"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "storage").Logger()

// Migrations returns every schema step in dependency order.
func Migrations() []migration.MigrationInterface {
	return []migration.MigrationInterface{
		&MigrationsSchema{},
		&CatalogSchema{},
		&ProductsTable{},
		&PricesTable{},
		&PriceChangesTable{},
		&PromotionsTable{},
		&BenefitsTable{},
		&PromotionTextsTable{},
		&PromotionProductsTable{},
	}
}

type MigrationsSchema struct{}

func (m *MigrationsSchema) UpMigration(db *sql.DB) error {
	query := `
	CREATE SCHEMA IF NOT EXISTS migrations;
	CREATE TABLE IF NOT EXISTS migrations.migrations (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) UNIQUE NOT NULL,
		time TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create migrations registry: %w", err)
	}
	return nil
}

type CatalogSchema struct{}

func (m *CatalogSchema) UpMigration(db *sql.DB) error {
	if _, err := db.Exec(`CREATE SCHEMA IF NOT EXISTS colruyt;`); err != nil {
		return fmt.Errorf("failed to create schema colruyt: %w", err)
	}
	return nil
}

type ProductsTable struct{}

func (m *ProductsTable) UpMigration(db *sql.DB) error {
	if ok, err := checkAndSkipMigration(db, "colruyt.products"); err != nil {
		return err
	} else if ok {
		return nil
	}
	query := `
	CREATE TABLE IF NOT EXISTS colruyt.products (
		product_id TEXT PRIMARY KEY,
		long_name TEXT,
		short_name TEXT,
		brand VARCHAR(255),
		top_category_name VARCHAR(255),
		walk_route_sequence_number INT,
		is_available BOOLEAN DEFAULT TRUE,
		technical_article_number VARCHAR(100),
		commercial_article_number VARCHAR(100),
		search_name TEXT,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS products_technical_article_number_idx
		ON colruyt.products(technical_article_number);
	CREATE INDEX IF NOT EXISTS products_search_name_idx
		ON colruyt.products(search_name);`
	if err := executeAndMarkMigration(db, query, "colruyt.products"); err != nil {
		return err
	}
	logger.Info().Msg("Migration 'colruyt.products' completed successfully.")
	return nil
}

type PricesTable struct{}

func (m *PricesTable) UpMigration(db *sql.DB) error {
	if ok, err := checkAndSkipMigration(db, "colruyt.prices"); err != nil {
		return err
	} else if ok {
		return nil
	}
	query := `
	CREATE TABLE IF NOT EXISTS colruyt.prices (
		product_id TEXT NOT NULL REFERENCES colruyt.products(product_id) ON DELETE CASCADE,
		date DATE NOT NULL,
		basic_price DOUBLE PRECISION NOT NULL,
		quantity_price DOUBLE PRECISION,
		quantity_price_quantity VARCHAR(50),
		is_red_price BOOLEAN DEFAULT FALSE,
		PRIMARY KEY (product_id, date)
	);
	CREATE INDEX IF NOT EXISTS prices_date_idx ON colruyt.prices(date);`
	if err := executeAndMarkMigration(db, query, "colruyt.prices"); err != nil {
		return err
	}
	logger.Info().Msg("Migration 'colruyt.prices' completed successfully.")
	return nil
}

type PriceChangesTable struct{}

func (m *PriceChangesTable) UpMigration(db *sql.DB) error {
	if ok, err := checkAndSkipMigration(db, "colruyt.price_changes"); err != nil {
		return err
	} else if ok {
		return nil
	}
	query := `
	CREATE TABLE IF NOT EXISTS colruyt.price_changes (
		id SERIAL PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES colruyt.products(product_id) ON DELETE CASCADE,
		price_change_type VARCHAR(10) NOT NULL CHECK (price_change_type IN ('BASIC', 'QUANTITY')),
		price_change DOUBLE PRECISION NOT NULL,
		price_change_percentage DOUBLE PRECISION NOT NULL,
		involves_promotion BOOLEAN DEFAULT FALSE,
		old_price DOUBLE PRECISION NOT NULL,
		new_price DOUBLE PRECISION NOT NULL,
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		UNIQUE (product_id, price_change_type)
	);`
	if err := executeAndMarkMigration(db, query, "colruyt.price_changes"); err != nil {
		return err
	}
	logger.Info().Msg("Migration 'colruyt.price_changes' completed successfully.")
	return nil
}

type PromotionsTable struct{}

func (m *PromotionsTable) UpMigration(db *sql.DB) error {
	if ok, err := checkAndSkipMigration(db, "colruyt.promotions"); err != nil {
		return err
	} else if ok {
		return nil
	}
	query := `
	CREATE TABLE IF NOT EXISTS colruyt.promotions (
		promotion_id TEXT PRIMARY KEY,
		promotion_type VARCHAR(100),
		active_start_date DATE,
		active_end_date DATE,
		linked_technical_article_number TEXT,
		linked_commercial_article_number TEXT,
		brands TEXT[],
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);`
	if err := executeAndMarkMigration(db, query, "colruyt.promotions"); err != nil {
		return err
	}
	logger.Info().Msg("Migration 'colruyt.promotions' completed successfully.")
	return nil
}

type BenefitsTable struct{}

func (m *BenefitsTable) UpMigration(db *sql.DB) error {
	if ok, err := checkAndSkipMigration(db, "colruyt.benefits"); err != nil {
		return err
	} else if ok {
		return nil
	}
	query := `
	CREATE TABLE IF NOT EXISTS colruyt.benefits (
		id SERIAL PRIMARY KEY,
		promotion_id TEXT NOT NULL REFERENCES colruyt.promotions(promotion_id) ON DELETE CASCADE,
		benefit_amount DOUBLE PRECISION,
		benefit_percentage DOUBLE PRECISION,
		min_limit INT,
		max_limit INT,
		UNIQUE (promotion_id, benefit_amount, benefit_percentage, min_limit, max_limit)
	);
	CREATE INDEX IF NOT EXISTS benefits_promotion_id_idx ON colruyt.benefits(promotion_id);`
	if err := executeAndMarkMigration(db, query, "colruyt.benefits"); err != nil {
		return err
	}
	logger.Info().Msg("Migration 'colruyt.benefits' completed successfully.")
	return nil
}

type PromotionTextsTable struct{}

func (m *PromotionTextsTable) UpMigration(db *sql.DB) error {
	if ok, err := checkAndSkipMigration(db, "colruyt.promotion_texts"); err != nil {
		return err
	} else if ok {
		return nil
	}
	query := `
	CREATE TABLE IF NOT EXISTS colruyt.promotion_texts (
		id SERIAL PRIMARY KEY,
		promotion_id TEXT NOT NULL REFERENCES colruyt.promotions(promotion_id) ON DELETE CASCADE,
		text_type VARCHAR(50),
		text TEXT,
		UNIQUE (promotion_id, text_type, text)
	);
	CREATE INDEX IF NOT EXISTS promotion_texts_promotion_id_idx ON colruyt.promotion_texts(promotion_id);`
	if err := executeAndMarkMigration(db, query, "colruyt.promotion_texts"); err != nil {
		return err
	}
	logger.Info().Msg("Migration 'colruyt.promotion_texts' completed successfully.")
	return nil
}

type PromotionProductsTable struct{}

func (m *PromotionProductsTable) UpMigration(db *sql.DB) error {
	if ok, err := checkAndSkipMigration(db, "colruyt.promotion_products"); err != nil {
		return err
	} else if ok {
		return nil
	}
	query := `
	CREATE TABLE IF NOT EXISTS colruyt.promotion_products (
		promotion_id TEXT NOT NULL REFERENCES colruyt.promotions(promotion_id) ON DELETE CASCADE,
		product_id TEXT NOT NULL REFERENCES colruyt.products(product_id) ON DELETE CASCADE,
		PRIMARY KEY (promotion_id, product_id)
	);`
	if err := executeAndMarkMigration(db, query, "colruyt.promotion_products"); err != nil {
		return err
	}
	logger.Info().Msg("Migration 'colruyt.promotion_products' completed successfully.")
	return nil
}

func checkAndSkipMigration(db *sql.DB, migrationName string) (bool, error) {
	var migrationExists bool
	err := db.QueryRow("SELECT EXISTS (SELECT 1 FROM migrations.migrations WHERE name = $1)", migrationName).Scan(&migrationExists)
	if err != nil {
		return migrationExists, fmt.Errorf("failed to check migration status: %w", err)
	}
	if migrationExists {
		logger.Info().Msgf("Migration '%s' already completed. Skipping.", migrationName)
	}
	return migrationExists, nil
}

func executeAndMarkMigration(db *sql.DB, query string, migrationName string) error {
	_, err := db.Exec(query)
	if err != nil {
		return fmt.Errorf("failed to execute migration '%s': %w", migrationName, err)
	}
	_, err = db.Exec("INSERT INTO migrations.migrations (name, time) VALUES ($1, current_timestamp)", migrationName)
	if err != nil {
		return fmt.Errorf("failed to mark migration '%s' as complete: %w", migrationName, err)
	}
	return nil
}
