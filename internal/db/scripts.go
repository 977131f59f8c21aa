package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/autoscripty/internal/domain"
)

// InsertScript implements domain.ScriptStore. The session is only checked
// for presence; the local store has no row-level policies.
func (db *DB) InsertScript(ctx context.Context, session *domain.Session, input domain.ScriptInput) (*domain.Script, error) {
	if session == nil || session.AccessToken == "" {
		return nil, domain.WrapUnauthorized(nil)
	}

	record := NewScriptRecord(input.Title, input.Text)
	_, err := db.ExecContext(ctx,
		"INSERT INTO scripts (id, title, text, created_at) VALUES (?, ?, ?, ?)",
		record.ID, record.Title, record.Text, record.CreatedAt,
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, domain.WrapTransport("create script", ctxErr)
		}
		return nil, domain.WrapPersistence("create script", err)
	}

	return record.ToDomain(), nil
}

// GetScript retrieves a script by ID
func (db *DB) GetScript(ctx context.Context, id string) (*ScriptRecord, error) {
	record := &ScriptRecord{}
	err := db.QueryRowContext(ctx,
		"SELECT id, title, text, created_at FROM scripts WHERE id = ?", id,
	).Scan(&record.ID, &record.Title, &record.Text, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("script %s not found: %w", id, err)
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// CountScripts returns the number of stored scripts
func (db *DB) CountScripts(ctx context.Context) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM scripts").Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
