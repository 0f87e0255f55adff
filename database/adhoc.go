package database

import (
	"fmt"
	"time"
)

// IsPhotoCached reports whether an ad-hoc photo hash was already
// posted, preventing duplicate one-off searches for the same image.
func (d *Database) IsPhotoCached(photoHash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM photo_cache WHERE photo_hash = ?)`

	if err := d.db.QueryRow(query, photoHash).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check photo cache: %w", err)
	}
	return exists, nil
}

// SavePhotoCache records an ad-hoc photo hash after a successful post.
func (d *Database) SavePhotoCache(photoHash, searchQuery string) error {
	query := `INSERT IGNORE INTO photo_cache (photo_hash, search_query) VALUES (?, ?)`

	if _, err := d.db.Exec(query, photoHash, searchQuery); err != nil {
		return fmt.Errorf("failed to save photo cache entry: %w", err)
	}
	return nil
}

// QueuedSearch is one deferred ad-hoc search.
type QueuedSearch struct {
	ID          int       `json:"id"`
	ImageRef    string    `json:"image_ref"`
	SearchQuery string    `json:"search_query"`
	AddedAt     time.Time `json:"added_at"`
}

// EnqueueSearch stores a deferred search for later processing.
func (d *Database) EnqueueSearch(imageRef, searchQuery string) error {
	query := `INSERT INTO search_queue (image_ref, search_query) VALUES (?, ?)`

	if _, err := d.db.Exec(query, imageRef, searchQuery); err != nil {
		return fmt.Errorf("failed to enqueue search: %w", err)
	}
	return nil
}

// GetQueuedSearches returns all deferred searches, oldest first.
func (d *Database) GetQueuedSearches() ([]QueuedSearch, error) {
	query := `SELECT id, image_ref, search_query, added_at FROM search_queue ORDER BY added_at ASC, id ASC`

	rows, err := d.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query search queue: %w", err)
	}
	defer rows.Close()

	var items []QueuedSearch
	for rows.Next() {
		var item QueuedSearch
		if err := rows.Scan(&item.ID, &item.ImageRef, &item.SearchQuery, &item.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan queued search: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteQueuedSearch removes a queue entry once its search succeeded.
func (d *Database) DeleteQueuedSearch(id int) error {
	if _, err := d.db.Exec(`DELETE FROM search_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete queued search %d: %w", id, err)
	}
	return nil
}
