package index

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/starford/arbor/internal/tree"
)

// NoteRow is one cached note, stubs included.
type NoteRow struct {
	ID           string
	Fname        string
	Parent       string
	Children     []string
	Title        string
	Desc         string
	Body         string
	Stub         bool
	SchemaModule string
	SchemaID     string
	Custom       map[string]any
	Created      string
	Updated      string
	Checksum     string
}

// SearchResult represents one search hit.
type SearchResult struct {
	ID      string `json:"id"`
	Fname   string `json:"fname"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// RowFromNode captures node i of a built note tree.
func RowFromNode(t *tree.Tree, i tree.Index, checksum string) NoteRow {
	rec := t.Record(i)
	row := NoteRow{
		ID:       rec.ID,
		Fname:    rec.Fname,
		Parent:   rec.Parent,
		Children: rec.Children,
		Title:    rec.Title,
		Desc:     rec.Desc,
		Body:     rec.Body,
		Stub:     rec.Stub,
		Custom:   rec.Custom,
		Created:  rec.Created,
		Updated:  rec.Updated,
		Checksum: checksum,
	}
	if n := t.Node(i); n != nil && n.Note != nil {
		row.SchemaModule = n.Note.Schema.Module
		row.SchemaID = n.Note.Schema.ID
	}
	return row
}

// Record converts the row back to builder input.
func (r NoteRow) Record() tree.Record {
	return tree.Record{
		ID:       r.ID,
		Fname:    r.Fname,
		Parent:   r.Parent,
		Children: r.Children,
		Stub:     r.Stub,
		Body:     r.Body,
		Title:    r.Title,
		Desc:     r.Desc,
		Created:  r.Created,
		Updated:  r.Updated,
		Custom:   r.Custom,
	}
}

const noteColumns = `id, fname, parent, children, title, description, body, stub,
	schema_module, schema_id, custom, created, updated, checksum`

func upsertNote(tx *sql.Tx, n NoteRow) error {
	children, _ := json.Marshal(nonNil(n.Children))
	custom, err := json.Marshal(n.Custom)
	if err != nil {
		return fmt.Errorf("index: encode custom of %s: %w", n.ID, err)
	}
	if n.Custom == nil {
		custom = []byte("{}")
	}
	_, err = tx.Exec(`
		INSERT INTO notes (`+noteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			fname         = excluded.fname,
			parent        = excluded.parent,
			children      = excluded.children,
			title         = excluded.title,
			description   = excluded.description,
			body          = excluded.body,
			stub          = excluded.stub,
			schema_module = excluded.schema_module,
			schema_id     = excluded.schema_id,
			custom        = excluded.custom,
			created       = excluded.created,
			updated       = excluded.updated,
			checksum      = excluded.checksum
	`, n.ID, n.Fname, n.Parent, string(children), n.Title, n.Desc, n.Body, n.Stub,
		n.SchemaModule, n.SchemaID, string(custom), n.Created, n.Updated, n.Checksum)
	if err != nil {
		return fmt.Errorf("index: upsert note %s: %w", n.ID, err)
	}
	if err := ftsUpsert(tx, n.ID, n.Fname, n.Title, n.Body, n.Stub); err != nil {
		return err
	}
	return nil
}

// UpsertNote inserts or replaces a note and its FTS entry within a transaction.
func (db *DB) UpsertNote(n NoteRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := upsertNote(tx, n); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceAll swaps the cached snapshot for a new build in one transaction.
func (db *DB) ReplaceAll(notes []NoteRow, schemas []tree.Record) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM notes`); err != nil {
		return fmt.Errorf("index: clear notes: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM schemas`); err != nil {
		return fmt.Errorf("index: clear schemas: %w", err)
	}
	if err := ftsClear(tx); err != nil {
		return err
	}
	for _, n := range notes {
		if err := upsertNote(tx, n); err != nil {
			return err
		}
	}

	stmt, err := tx.Prepare(`INSERT INTO schemas (module, id, parent, children, title, description, data, custom) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare schema insert: %w", err)
	}
	defer stmt.Close()
	for _, s := range schemas {
		children, _ := json.Marshal(nonNil(s.Children))
		data, err := json.Marshal(s.Data)
		if err != nil {
			return fmt.Errorf("index: encode schema %s: %w", s.ID, err)
		}
		custom, err := json.Marshal(nonNilMap(s.Custom))
		if err != nil {
			return fmt.Errorf("index: encode schema %s: %w", s.ID, err)
		}
		if _, err := stmt.Exec(s.Fname, s.ID, s.Parent, string(children), s.Title, s.Desc, string(data), string(custom)); err != nil {
			return fmt.Errorf("index: insert schema %s: %w", s.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteNote removes a note and its FTS entry.
func (db *DB) DeleteNote(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, id)
	if _, err := tx.Exec(`DELETE FROM notes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("index: delete note %s: %w", id, err)
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(s scanner) (*NoteRow, error) {
	var (
		n                NoteRow
		children, custom string
	)
	err := s.Scan(&n.ID, &n.Fname, &n.Parent, &children, &n.Title, &n.Desc, &n.Body, &n.Stub,
		&n.SchemaModule, &n.SchemaID, &custom, &n.Created, &n.Updated, &n.Checksum)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(children), &n.Children); err != nil {
		return nil, fmt.Errorf("decode children: %w", err)
	}
	if err := json.Unmarshal([]byte(custom), &n.Custom); err != nil {
		return nil, fmt.Errorf("decode custom: %w", err)
	}
	if len(n.Custom) == 0 {
		n.Custom = nil
	}
	if len(n.Children) == 0 {
		n.Children = nil
	}
	return &n, nil
}

// Checksums maps the fname of every cached non-stub note to the checksum of
// the file it was parsed from.
func (db *DB) Checksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT fname, checksum FROM notes WHERE stub = 0`)
	if err != nil {
		return nil, fmt.Errorf("index: checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var f, cs string
		if err := rows.Scan(&f, &cs); err != nil {
			return nil, err
		}
		out[f] = cs
	}
	return out, rows.Err()
}

// NoteRows returns every cached note, stubs included, ordered by fname.
func (db *DB) NoteRows() ([]NoteRow, error) {
	rows, err := db.conn.Query(`SELECT ` + noteColumns + ` FROM notes ORDER BY fname`)
	if err != nil {
		return nil, fmt.Errorf("index: note rows: %w", err)
	}
	defer rows.Close()
	var out []NoteRow
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("index: note rows: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// NoteRecords returns every cached note as builder input.
func (db *DB) NoteRecords() ([]tree.Record, error) {
	rows, err := db.NoteRows()
	if err != nil {
		return nil, err
	}
	out := make([]tree.Record, len(rows))
	for i, r := range rows {
		out[i] = r.Record()
	}
	return out, nil
}

// SchemaRecords returns every cached schema as builder input.
func (db *DB) SchemaRecords() ([]tree.Record, error) {
	rows, err := db.conn.Query(`SELECT module, id, parent, children, title, description, data, custom FROM schemas ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("index: schema records: %w", err)
	}
	defer rows.Close()
	var out []tree.Record
	for rows.Next() {
		var (
			r                      tree.Record
			children, data, custom string
		)
		if err := rows.Scan(&r.Fname, &r.ID, &r.Parent, &children, &r.Title, &r.Desc, &data, &custom); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(children), &r.Children); err != nil {
			return nil, fmt.Errorf("index: decode schema children: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &r.Data); err != nil {
			return nil, fmt.Errorf("index: decode schema data: %w", err)
		}
		if err := json.Unmarshal([]byte(custom), &r.Custom); err != nil {
			return nil, fmt.Errorf("index: decode schema custom: %w", err)
		}
		if len(r.Custom) == 0 {
			r.Custom = nil
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
