package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"lot-analyze-pipeline/config"

	_ "github.com/go-sql-driver/mysql"
)

// Database represents the database connection
type Database struct {
	db *sql.DB
}

// NewDatabase creates a new database connection. The pipeline must not
// start serving without its store, so a store that never becomes
// reachable is a startup error, not a degraded mode.
func NewDatabase(cfg *config.Config) (*Database, error) {
	// clientFoundRows makes RowsAffected report matched rows rather
	// than changed rows; UpdateFeedbackFactor relies on that to tell a
	// missing listing apart from a no-op rewrite of the same factor.
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&clientFoundRows=true",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection with exponential backoff retry
	var waitInterval = 1 * time.Second
	var pingErr error
	for attempt := 1; attempt <= 5; attempt++ {
		if pingErr = db.Ping(); pingErr == nil {
			break
		}
		log.Printf("Database connection failed (attempt %d/5), retrying in %v: %v", attempt, waitInterval, pingErr)
		time.Sleep(waitInterval)
		waitInterval *= 2
	}
	if pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("database unreachable: %w", pingErr)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Database{db: db}, nil
}

// NewDatabaseFromConn wraps an existing connection. Used by tests.
func NewDatabaseFromConn(db *sql.DB) *Database {
	return &Database{db: db}
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// GetDB returns the underlying sql.DB for direct queries
func (d *Database) GetDB() *sql.DB {
	return d.db
}

// CreateTables creates all pipeline tables if they don't exist
func (d *Database) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS listings (
			external_id VARCHAR(64) NOT NULL PRIMARY KEY,
			title VARCHAR(500) NOT NULL,
			price INT NOT NULL,
			url TEXT,
			image_url TEXT,
			search_term VARCHAR(255),
			origin ENUM('real', 'synthetic') NOT NULL DEFAULT 'real',
			envelope JSON,
			feedback_factor DOUBLE DEFAULT NULL,
			is_relevant BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_listings_is_relevant (is_relevant),
			INDEX idx_listings_search_term (search_term)
		)`,
		`CREATE TABLE IF NOT EXISTS feedback_votes (
			id INT AUTO_INCREMENT PRIMARY KEY,
			listing_id VARCHAR(64) NOT NULL,
			voter_id VARCHAR(64) NOT NULL,
			liked BOOLEAN NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_votes_listing (listing_id)
		)`,
		`CREATE TABLE IF NOT EXISTS reference_items (
			id INT AUTO_INCREMENT PRIMARY KEY,
			owner_id VARCHAR(64) NOT NULL,
			title VARCHAR(500) NOT NULL,
			keywords TEXT,
			valuation TEXT,
			image_ref VARCHAR(255),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_references_owner (owner_id)
		)`,
		`CREATE TABLE IF NOT EXISTS photo_cache (
			photo_hash CHAR(64) NOT NULL PRIMARY KEY,
			search_query TEXT,
			posted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS search_queue (
			id INT AUTO_INCREMENT PRIMARY KEY,
			image_ref VARCHAR(255) NOT NULL,
			search_query TEXT NOT NULL,
			added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, query := range queries {
		if _, err := d.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	log.Println("pipeline tables created/verified successfully")
	return nil
}
