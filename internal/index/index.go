package index

import "github.com/starford/arbor/internal/tree"

// Cache is what the vault needs from the record cache. Consumers depend on
// this interface rather than *DB.
type Cache interface {
	ReplaceAll(notes []NoteRow, schemas []tree.Record) error
	UpsertNote(n NoteRow) error
	DeleteNote(id string) error
	Checksums() (map[string]string, error)
	NoteRows() ([]NoteRow, error)
	NoteRecords() ([]tree.Record, error)
	SchemaRecords() ([]tree.Record, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

var _ Cache = (*DB)(nil)
