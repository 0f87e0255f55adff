package database

import (
	"database/sql"
	"fmt"

	"lot-analyze-pipeline/models"
)

// SaveReference stores a user-submitted reference item.
func (d *Database) SaveReference(ref *models.ReferenceItem) error {
	query := `
	INSERT INTO reference_items (owner_id, title, keywords, valuation, image_ref)
	VALUES (?, ?, ?, ?, ?)`

	if _, err := d.db.Exec(query, ref.OwnerID, ref.Title, ref.Keywords, ref.Valuation, ref.ImageRef); err != nil {
		return fmt.Errorf("failed to save reference for %s: %w", ref.OwnerID, err)
	}
	return nil
}

// GetRecentReferences returns up to limit most-recent reference items
// for one owner, newest first.
func (d *Database) GetRecentReferences(ownerID string, limit int) ([]models.ReferenceItem, error) {
	query := `
	SELECT owner_id, title, keywords, valuation, image_ref, created_at
	FROM reference_items
	WHERE owner_id = ?
	ORDER BY created_at DESC, id DESC
	LIMIT ?`

	rows, err := d.db.Query(query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query references for %s: %w", ownerID, err)
	}
	defer rows.Close()

	var refs []models.ReferenceItem
	for rows.Next() {
		var ref models.ReferenceItem
		var imageRef sql.NullString
		if err := rows.Scan(&ref.OwnerID, &ref.Title, &ref.Keywords, &ref.Valuation, &imageRef, &ref.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reference: %w", err)
		}
		ref.ImageRef = imageRef.String
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
