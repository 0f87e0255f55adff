package database

import (
	"fmt"

	"lot-analyze-pipeline/models"
)

// SaveVote appends one feedback vote. Votes are never updated or
// deleted, and a voter may vote repeatedly on the same listing.
func (d *Database) SaveVote(vote *models.FeedbackVote) error {
	query := `INSERT INTO feedback_votes (listing_id, voter_id, liked) VALUES (?, ?, ?)`

	if _, err := d.db.Exec(query, vote.ListingID, vote.VoterID, vote.Liked); err != nil {
		return fmt.Errorf("failed to save vote for %s: %w", vote.ListingID, err)
	}
	return nil
}

// GetVoteTally returns the like/dislike totals for one listing.
// Aggregation always runs over the full vote set, never a cached
// running total, so concurrent writers need no coordination.
func (d *Database) GetVoteTally(listingID string) (likes, dislikes int, err error) {
	query := `
	SELECT COALESCE(SUM(liked), 0), COALESCE(SUM(NOT liked), 0)
	FROM feedback_votes
	WHERE listing_id = ?`

	if err := d.db.QueryRow(query, listingID).Scan(&likes, &dislikes); err != nil {
		return 0, 0, fmt.Errorf("failed to tally votes for %s: %w", listingID, err)
	}
	return likes, dislikes, nil
}

// UpdateFeedbackFactor writes the recomputed correction factor back
// into the persisted listing row, both as a column and inside the
// stored envelope blob, so later envelope reads see the latest votes.
func (d *Database) UpdateFeedbackFactor(listingID string, factor float64) error {
	query := `
	UPDATE listings
	SET feedback_factor = ?,
	    envelope = JSON_SET(envelope, '$.feedback_factor', ?)
	WHERE external_id = ?`

	result, err := d.db.Exec(query, factor, factor, listingID)
	if err != nil {
		return fmt.Errorf("failed to update feedback factor for %s: %w", listingID, err)
	}

	// The DSN sets clientFoundRows, so zero means no row matched, not
	// that the stored factor already had this value.
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("no listing found for %s", listingID)
	}
	return nil
}

// DisputedListing is a listing with a contested vote split, used as
// advisory context for lesson-style classifier calls.
type DisputedListing struct {
	ListingID string
	Title     string
	Likes     int
	Dislikes  int
}

// GetMostDisputedListings returns up to limit listings with the most
// evenly split vote counts, weighted toward the most-voted ones.
func (d *Database) GetMostDisputedListings(limit int) ([]DisputedListing, error) {
	query := `
	SELECT v.listing_id, l.title,
	       COALESCE(SUM(v.liked), 0) AS likes,
	       COALESCE(SUM(NOT v.liked), 0) AS dislikes
	FROM feedback_votes v
	JOIN listings l ON l.external_id = v.listing_id
	GROUP BY v.listing_id, l.title
	ORDER BY ABS(SUM(v.liked) - SUM(NOT v.liked)) ASC, COUNT(*) DESC
	LIMIT ?`

	rows, err := d.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query disputed listings: %w", err)
	}
	defer rows.Close()

	var disputed []DisputedListing
	for rows.Next() {
		var item DisputedListing
		if err := rows.Scan(&item.ListingID, &item.Title, &item.Likes, &item.Dislikes); err != nil {
			return nil, fmt.Errorf("failed to scan disputed listing: %w", err)
		}
		disputed = append(disputed, item)
	}
	return disputed, rows.Err()
}
