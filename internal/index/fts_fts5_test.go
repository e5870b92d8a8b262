//go:build sqlite_fts5

package index

import "testing"

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes_fts`).Scan(&count); err != nil {
		t.Fatalf("notes_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	row := NoteRow{ID: "f", Fname: "fts", Title: "FTS Note", Body: "Arbor provides powerful full-text search capabilities."}
	if err := db.UpsertNote(row); err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}

	results, err := db.Search("powerful", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Fname != "fts" {
		t.Errorf("fname = %q", results[0].Fname)
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_StubsNotIndexed(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{ID: "st", Fname: "ghost", Title: "Ghost", Stub: true})

	results, _ := db.Search("Ghost", 10)
	if len(results) != 0 {
		t.Errorf("stub leaked into FTS: %+v", results)
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{ID: "g", Fname: "gone", Body: "vanishing content"})
	_ = db.DeleteNote("g")

	results, _ := db.Search("vanishing", 10)
	if len(results) != 0 {
		t.Error("deleted note still in FTS index")
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{ID: "e", Fname: "evo", Title: "Old", Body: "original text"})
	_ = db.UpsertNote(NoteRow{ID: "e", Fname: "evo", Title: "New", Body: "replacement text"})

	results, _ := db.Search("original", 10)
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.Search("replacement", 10)
	if len(results) != 1 || results[0].Title != "New" {
		t.Errorf("FTS not updated: %+v", results)
	}
}
