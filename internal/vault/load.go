package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/starford/arbor/internal/dotpath"
	"github.com/starford/arbor/internal/index"
	"github.com/starford/arbor/internal/parser"
	"github.com/starford/arbor/internal/schema"
	"github.com/starford/arbor/internal/sse"
	"github.com/starford/arbor/internal/storage"
	"github.com/starford/arbor/internal/tree"
)

// rootFname is the file name of the root note.
const rootFname = "root"

// ErrEmptyCache is returned by Restore when nothing has been cached yet.
var ErrEmptyCache = errors.New("vault: cache is empty")

type parsedFile struct {
	entry   storage.Entry
	note    *tree.Record
	schemas []tree.Record
}

// noteChange is a note file that appeared, changed or disappeared between
// two loads.
type noteChange struct {
	kind  string
	id    string
	fname string
}

// Load reads every note and schema module, builds both trees, fills path
// gaps with stubs, and swaps the result in. A failed load leaves the
// previous trees in place. Notes whose files changed since the previous
// load are published as created, updated or deleted.
func (s *Service) Load(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	changes, err := s.load(ctx)
	if err != nil {
		return err
	}
	for _, c := range changes {
		s.publishNote(c.kind, c.id, c.fname)
	}
	return nil
}

func (s *Service) load(ctx context.Context) ([]noteChange, error) {
	entries, err := s.store.List("")
	if err != nil {
		return nil, fmt.Errorf("vault: list: %w", err)
	}
	cached := s.cachedRecords()

	files := make([]parsedFile, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pf, err := s.parseEntry(e, cached)
			if err != nil {
				return err
			}
			files[i] = pf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var noteRecs, schemaRecs []tree.Record
	sums := make(map[string]string, len(files))
	for _, f := range files {
		if f.note != nil {
			noteRecs = append(noteRecs, *f.note)
			sums[f.note.Fname] = f.entry.Checksum
		}
		schemaRecs = append(schemaRecs, f.schemas...)
	}

	schemas, err := tree.BuildSchemas(schemaRecs, tree.WithLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("vault: build schemas: %w", err)
	}
	matcher := schema.NewMatcher(schemas, s.unknown, s.matchOpts...)

	notes, err := tree.BuildNotes(linkNotes(noteRecs),
		tree.WithSchemaResolver(matcher),
		tree.WithLogger(s.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("vault: build notes: %w", err)
	}
	stubs, err := densify(notes, matcher, s.ids)
	if err != nil {
		return nil, fmt.Errorf("vault: densify: %w", err)
	}

	s.mu.Lock()
	changes := diffNotes(s.notes, s.sums, notes, sums)
	s.notes, s.schemas, s.matcher, s.sums = notes, schemas, matcher, sums
	st := s.statsLocked()
	s.mu.Unlock()

	s.logger.Info("vault: loaded",
		slog.Int("notes", st.Notes),
		slog.Int("stubs", len(stubs)),
		slog.Int("schemas", st.Schemas),
	)
	s.snapshot(notes, schemaRecs, sums)
	s.publishRebuilt(st)
	return changes, nil
}

// parseEntry turns one listed file into records. Unchanged notes are taken
// from the cache instead of being parsed again.
func (s *Service) parseEntry(e storage.Entry, cached map[string]index.NoteRow) (parsedFile, error) {
	name := path.Base(e.Path)
	pf := parsedFile{entry: e}

	if module, ok := parser.SchemaModule(name); ok {
		data, err := s.store.Read(e.Path)
		if err != nil {
			return pf, fmt.Errorf("vault: read %s: %w", e.Path, err)
		}
		recs, err := parser.ParseSchemaModule(module, data)
		if err != nil {
			return pf, fmt.Errorf("vault: %w", err)
		}
		pf.schemas = recs
		return pf, nil
	}

	fname, ok := parser.NoteFname(name)
	if !ok {
		return pf, nil
	}
	if err := tree.ValidateFname(fname); err != nil {
		s.logger.Warn("vault: skipping note with invalid name",
			slog.String("path", e.Path),
			slog.String("error", err.Error()),
		)
		return pf, nil
	}
	if row, ok := cached[fname]; ok && !row.Stub && row.Checksum == e.Checksum {
		rec := row.Record()
		pf.note = &rec
		return pf, nil
	}
	data, err := s.store.Read(e.Path)
	if err != nil {
		return pf, fmt.Errorf("vault: read %s: %w", e.Path, err)
	}
	rec, err := parser.ParseNote(fname, data)
	if err != nil {
		return pf, fmt.Errorf("vault: parse %s: %w", e.Path, err)
	}
	if rec.ID == "" {
		rec.ID = FnameID(fname)
	}
	pf.note = &rec
	return pf, nil
}

func (s *Service) cachedRecords() map[string]index.NoteRow {
	if s.cache == nil {
		return nil
	}
	rows, err := s.cache.NoteRows()
	if err != nil {
		s.logger.Warn("vault: read cache", slog.String("error", err.Error()))
		return nil
	}
	out := make(map[string]index.NoteRow, len(rows))
	for _, r := range rows {
		if !r.Stub {
			out[r.Fname] = r
		}
	}
	return out
}

// snapshot mirrors a good build into the cache.
func (s *Service) snapshot(notes *tree.Tree, schemaRecs []tree.Record, sums map[string]string) {
	if s.cache == nil {
		return
	}
	all := notes.Descendants(notes.Root())
	rows := make([]index.NoteRow, 0, len(all))
	for _, i := range all {
		n := notes.Node(i)
		rows = append(rows, index.RowFromNode(notes, i, sums[n.Fname]))
	}
	if err := s.cache.ReplaceAll(rows, schemaRecs); err != nil {
		s.logger.Warn("vault: update cache", slog.String("error", err.Error()))
	}
}

// Restore rebuilds the trees from the cache of the last good load.
func (s *Service) Restore(_ context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.cache == nil {
		return ErrEmptyCache
	}
	schemaRecs, err := s.cache.SchemaRecords()
	if err != nil {
		return fmt.Errorf("vault: restore schemas: %w", err)
	}
	noteRecs, err := s.cache.NoteRecords()
	if err != nil {
		return fmt.Errorf("vault: restore notes: %w", err)
	}
	if len(noteRecs) == 0 {
		return ErrEmptyCache
	}
	sums, err := s.cache.Checksums()
	if err != nil {
		return fmt.Errorf("vault: restore checksums: %w", err)
	}

	schemas, err := tree.BuildSchemas(schemaRecs, tree.WithLogger(s.logger))
	if err != nil {
		return fmt.Errorf("vault: restore schemas: %w", err)
	}
	matcher := schema.NewMatcher(schemas, s.unknown, s.matchOpts...)
	notes, err := tree.BuildNotes(noteRecs, tree.WithSchemaResolver(matcher), tree.WithLogger(s.logger))
	if err != nil {
		return fmt.Errorf("vault: restore notes: %w", err)
	}
	s.mu.Lock()
	s.notes, s.schemas, s.matcher, s.sums = notes, schemas, matcher, sums
	st := s.statsLocked()
	s.mu.Unlock()

	s.logger.Info("vault: restored from cache", slog.Int("notes", st.Notes), slog.Int("stubs", st.Stubs))
	s.publishRebuilt(st)
	return nil
}

// diffNotes compares the note checksums of two loads. Nothing is reported
// for the first load.
func diffNotes(prev *tree.Tree, prevSums map[string]string, cur *tree.Tree, curSums map[string]string) []noteChange {
	if prev == nil {
		return nil
	}
	var out []noteChange
	for fname, sum := range curSums {
		old, ok := prevSums[fname]
		switch {
		case !ok:
			out = append(out, noteChange{sse.NoteCreated, noteID(cur, fname), fname})
		case old != sum:
			out = append(out, noteChange{sse.NoteUpdated, noteID(cur, fname), fname})
		}
	}
	for fname := range prevSums {
		if _, ok := curSums[fname]; !ok {
			out = append(out, noteChange{sse.NoteDeleted, noteID(prev, fname), fname})
		}
	}
	slices.SortFunc(out, func(a, b noteChange) int { return strings.Compare(a.fname, b.fname) })
	return out
}

func noteID(t *tree.Tree, fname string) string {
	if fname == rootFname {
		return tree.RootID
	}
	if i, ok := t.FindByFname(fname); ok {
		return t.Node(i).ID
	}
	return FnameID(fname)
}

// linkNotes assigns every record to its nearest existing ancestor by path.
// A missing root note is synthesized. Children are ordered by fname.
func linkNotes(records []tree.Record) []tree.Record {
	out := make([]tree.Record, 0, len(records)+1)
	root := -1
	for _, r := range records {
		r.Parent = ""
		r.Children = nil
		if r.Fname == rootFname && root < 0 {
			root = len(out)
			r.ID = tree.RootID
		}
		out = append(out, r)
	}
	if root < 0 {
		root = len(out)
		out = append(out, tree.Record{ID: tree.RootID, Fname: rootFname})
	}

	byFname := make(map[string]int, len(out))
	order := make([]int, 0, len(out))
	for i, r := range out {
		if i == root {
			continue
		}
		if _, dup := byFname[r.Fname]; !dup {
			byFname[r.Fname] = i
		}
		order = append(order, i)
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return strings.Compare(out[a].Fname, out[b].Fname)
	})

	for _, i := range order {
		parent := root
		for dir := dotpath.Dirname(out[i].Fname); dir != ""; dir = dotpath.Dirname(dir) {
			if j, ok := byFname[dir]; ok {
				parent = j
				break
			}
		}
		out[i].Parent = out[parent].ID
		out[parent].Children = append(out[parent].Children, out[i].ID)
	}
	return out
}

// densify inserts stubs wherever a node sits more than one path segment
// below its parent and resolves a schema for each stub.
func densify(t *tree.Tree, r tree.SchemaResolver, src tree.StubSource) ([]tree.Index, error) {
	var stubs []tree.Index
	for _, i := range t.Descendants(t.Root()) {
		if i == t.Root() {
			continue
		}
		p := t.Parent(i)
		if t.LogicalPath(p) == dotpath.Dirname(t.LogicalPath(i)) {
			continue
		}
		created, err := t.InsertStubs(p, i, src)
		if err != nil {
			return nil, err
		}
		for _, si := range created {
			t.Node(si).Note.Schema = r.ResolveSchema(t.LogicalPath(si))
		}
		stubs = append(stubs, created...)
	}
	return stubs, nil
}
