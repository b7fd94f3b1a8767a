package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/matthewgall/shelfscrape/internal/models"
)

const defaultListLimit = 50

// InsertExtraction records a run and fills in its ID and creation time.
func (db *DB) InsertExtraction(ctx context.Context, e *models.Extraction) error {
	keys := e.TopLevelKeys
	if keys == nil {
		keys = []string{}
	}
	keysJSON, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("encoding top-level keys: %w", err)
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	result, err := db.conn.ExecContext(ctx, `
		INSERT INTO extractions
		(source, status, product_count, top_level_keys, artifact_location, output_location, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Source, e.Status, e.ProductCount, string(keysJSON), e.ArtifactLocation, e.OutputLocation, e.ErrorMessage,
		e.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting extraction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading extraction id: %w", err)
	}
	e.ID = id
	return nil
}

// ListExtractions returns the most recent runs first.
func (db *DB) ListExtractions(ctx context.Context, limit int) ([]models.Extraction, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, source, status, product_count, top_level_keys, artifact_location, output_location, error_message, created_at
		FROM extractions
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying extractions: %w", err)
	}
	defer rows.Close()

	var extractions []models.Extraction
	for rows.Next() {
		var e models.Extraction
		var keysJSON, createdAt string
		if err := rows.Scan(&e.ID, &e.Source, &e.Status, &e.ProductCount, &keysJSON,
			&e.ArtifactLocation, &e.OutputLocation, &e.ErrorMessage, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning extraction: %w", err)
		}
		if err := json.Unmarshal([]byte(keysJSON), &e.TopLevelKeys); err != nil {
			return nil, fmt.Errorf("decoding top-level keys: %w", err)
		}
		e.CreatedAt = parseTimestamp(createdAt)
		extractions = append(extractions, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating extractions: %w", err)
	}

	return extractions, nil
}

func parseTimestamp(value string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
