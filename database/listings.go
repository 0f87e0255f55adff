package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"lot-analyze-pipeline/models"
)

// ListingRecord is a persisted listing row with its decision envelope.
type ListingRecord struct {
	models.Listing
	Envelope       models.DecisionEnvelope
	FeedbackFactor sql.NullFloat64
	IsRelevant     bool
	CreatedAt      time.Time
}

// SaveListing persists a listing with its decision envelope. The insert
// is idempotent on the external identifier: a listing that is already
// recorded is left untouched and the method reports inserted=false.
// This is the arbiter of at-most-once processing per listing.
func (d *Database) SaveListing(listing *models.Listing, envelope *models.DecisionEnvelope) (bool, error) {
	blob, err := json.Marshal(envelope)
	if err != nil {
		return false, fmt.Errorf("failed to marshal envelope: %w", err)
	}

	query := `
	INSERT IGNORE INTO listings (
		external_id, title, price, url, image_url, search_term, origin, envelope, is_relevant
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := d.db.Exec(query,
		listing.ExternalID,
		listing.Title,
		listing.Price,
		listing.URL,
		listing.ImageURL,
		listing.SearchTerm,
		listing.Origin,
		blob,
		envelope.IsRelevant,
	)
	if err != nil {
		return false, fmt.Errorf("failed to save listing %s: %w", listing.ExternalID, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows > 0, nil
}

// GetListing fetches one persisted listing by external identifier.
func (d *Database) GetListing(externalID string) (*ListingRecord, error) {
	query := `
	SELECT external_id, title, price, url, image_url, search_term, origin,
	       envelope, feedback_factor, is_relevant, created_at
	FROM listings
	WHERE external_id = ?`

	var rec ListingRecord
	var blob []byte
	var url, imageURL, searchTerm sql.NullString

	err := d.db.QueryRow(query, externalID).Scan(
		&rec.ExternalID,
		&rec.Title,
		&rec.Price,
		&url,
		&imageURL,
		&searchTerm,
		&rec.Origin,
		&blob,
		&rec.FeedbackFactor,
		&rec.IsRelevant,
		&rec.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("listing %s not found", externalID)
		}
		return nil, fmt.Errorf("failed to fetch listing %s: %w", externalID, err)
	}

	rec.URL = url.String
	rec.ImageURL = imageURL.String
	rec.SearchTerm = searchTerm.String
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &rec.Envelope); err != nil {
			return nil, fmt.Errorf("failed to decode envelope for %s: %w", externalID, err)
		}
	}
	return &rec, nil
}

// GetProcessedIDs returns the set of external identifiers already
// recorded, used to exclude them from the next fetch cycle.
func (d *Database) GetProcessedIDs() (map[string]struct{}, error) {
	rows, err := d.db.Query(`SELECT external_id FROM listings`)
	if err != nil {
		return nil, fmt.Errorf("failed to query processed ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan processed id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// PipelineStats are the operator-facing aggregate counters.
type PipelineStats struct {
	TotalProcessed    int             `json:"total_processed"`
	TotalRelevant     int             `json:"total_relevant"`
	TotalSynthetic    int             `json:"total_synthetic"`
	TotalVotes        int             `json:"total_votes"`
	TotalLikes        int             `json:"total_likes"`
	AvgFeedbackFactor sql.NullFloat64 `json:"-"`
	QueueDepth        int             `json:"queue_depth"`
}

// GetStats aggregates processed/relevant counts and the feedback tally.
// The average feedback factor only covers listings whose factor column
// was populated by a vote; unvoted listings read as NULL and are left
// out rather than backfilled.
func (d *Database) GetStats() (*PipelineStats, error) {
	stats := &PipelineStats{}

	err := d.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(is_relevant), 0),
		       COALESCE(SUM(origin = 'synthetic'), 0),
		       AVG(feedback_factor)
		FROM listings`).Scan(
		&stats.TotalProcessed,
		&stats.TotalRelevant,
		&stats.TotalSynthetic,
		&stats.AvgFeedbackFactor,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate listings: %w", err)
	}

	err = d.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(liked), 0)
		FROM feedback_votes`).Scan(&stats.TotalVotes, &stats.TotalLikes)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate votes: %w", err)
	}

	err = d.db.QueryRow(`SELECT COUNT(*) FROM search_queue`).Scan(&stats.QueueDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue: %w", err)
	}

	return stats, nil
}
