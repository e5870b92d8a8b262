package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/arbor/internal/index"
	"github.com/starford/arbor/internal/vault"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Fname string `json:"fname" example:"work.proj.alpha" validate:"required"`
	Body  string `json:"body" example:"## Goals"`
}

// Validate checks the request shape. Path rules are enforced by the vault.
func (r CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Fname, validation.Required, validation.Length(1, 512)),
	)
}

// NoteDetail is the full note response type (aliased from the vault layer).
type NoteDetail = vault.NoteView

// NoteSummary is a lightweight note reference (aliased from the vault layer).
type NoteSummary = vault.NoteSummary

// ChildrenResponse wraps the direct children of a note.
type ChildrenResponse struct {
	Children []NoteSummary `json:"children" validate:"required"`
}

// SchemaResponse is the schema a path resolves to.
type SchemaResponse = vault.SchemaView

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// TreeResponse is a nested outline of the note tree.
type TreeResponse = vault.Outline
