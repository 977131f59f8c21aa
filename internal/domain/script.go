package domain

import "time"

// ScriptInput is the canonical submission payload. The same field names are
// used by the HTTP API, the API client and the CLI.
type ScriptInput struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Script is a stored script record.
// Scripts are not linked to the identity that created them.
type Script struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
