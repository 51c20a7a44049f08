package db

import (
	"context"
	"fmt"

	coreerrors "github.com/lueurxax/artist-pulse/internal/core/errors"
)

// GetHiddenSections returns the hidden section keys for (user, entity).
// A missing row is an empty set.
func (db *DB) GetHiddenSections(ctx context.Context, userID, entityID string) ([]string, error) {
	uid := toUUID(userID)
	if !uid.Valid {
		return nil, fmt.Errorf("user id %q: %w", userID, coreerrors.ErrInvalidID)
	}

	var keys []string

	err := db.Pool.QueryRow(ctx, `
		SELECT hidden_sections
		FROM report_section_preferences
		WHERE user_id = $1 AND entity_id = $2`, uid, entityID).Scan(&keys)
	if noRows(err) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("query hidden sections: %w", err)
	}

	return keys, nil
}

// UpsertHiddenSections replaces the stored set for (user, entity).
func (db *DB) UpsertHiddenSections(ctx context.Context, userID, entityID string, keys []string) error {
	uid := toUUID(userID)
	if !uid.Valid {
		return fmt.Errorf("user id %q: %w", userID, coreerrors.ErrInvalidID)
	}

	if keys == nil {
		keys = []string{}
	}

	_, err := db.Pool.Exec(ctx, `
		INSERT INTO report_section_preferences (user_id, entity_id, hidden_sections, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, entity_id)
		DO UPDATE SET hidden_sections = EXCLUDED.hidden_sections, updated_at = now()`,
		uid, entityID, keys)
	if err != nil {
		return fmt.Errorf("upsert hidden sections: %w", err)
	}

	return nil
}

// DeleteHiddenSections drops the stored set for (user, entity). A missing row is not an error.
func (db *DB) DeleteHiddenSections(ctx context.Context, userID, entityID string) error {
	uid := toUUID(userID)
	if !uid.Valid {
		return fmt.Errorf("user id %q: %w", userID, coreerrors.ErrInvalidID)
	}

	if _, err := db.Pool.Exec(ctx, `
		DELETE FROM report_section_preferences
		WHERE user_id = $1 AND entity_id = $2`, uid, entityID); err != nil {
		return fmt.Errorf("delete hidden sections: %w", err)
	}

	return nil
}
