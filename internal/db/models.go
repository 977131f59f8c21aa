package db

import (
	"time"

	"github.com/google/uuid"

	"github.com/autoscripty/internal/domain"
)

// Scripts carry no owner column; any authenticated caller may write one.

// ScriptRecord is a row of the scripts table
type ScriptRecord struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Text      string    `json:"text" db:"text"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewScriptRecord creates a new script record with a fresh ID
func NewScriptRecord(title, text string) *ScriptRecord {
	return &ScriptRecord{
		ID:        uuid.New().String(),
		Title:     title,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// ToDomain converts the record to a domain.Script
func (r *ScriptRecord) ToDomain() *domain.Script {
	return &domain.Script{
		ID:        r.ID,
		Title:     r.Title,
		Text:      r.Text,
		CreatedAt: r.CreatedAt,
	}
}
