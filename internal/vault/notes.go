package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/index"
	"github.com/starford/arbor/internal/parser"
	"github.com/starford/arbor/internal/schema"
	"github.com/starford/arbor/internal/sse"
	"github.com/starford/arbor/internal/storage"
	"github.com/starford/arbor/internal/tree"
)

// SchemaView describes the schema a note resolved to.
type SchemaView struct {
	Module    string         `json:"module,omitempty"`
	ID        string         `json:"id"`
	Title     string         `json:"title,omitempty"`
	Pattern   string         `json:"pattern,omitempty"`
	Namespace bool           `json:"namespace,omitempty"`
	Template  *tree.Template `json:"template,omitempty"`
	Unknown   bool           `json:"unknown,omitempty"`
}

// NoteSummary is a lightweight note reference.
type NoteSummary struct {
	ID    string `json:"id"`
	Fname string `json:"fname"`
	Title string `json:"title"`
	Stub  bool   `json:"stub,omitempty"`
}

// NoteView is a detached copy of one note and its neighbourhood.
type NoteView struct {
	NoteSummary
	Desc     string         `json:"desc,omitempty"`
	Body     string         `json:"body"`
	Created  string         `json:"created,omitempty"`
	Updated  string         `json:"updated,omitempty"`
	Custom   map[string]any `json:"custom,omitempty"`
	Parent   *NoteSummary   `json:"parent,omitempty"`
	Children []NoteSummary  `json:"children"`
	Schema   SchemaView     `json:"schema"`
}

func summary(t *tree.Tree, i tree.Index) NoteSummary {
	n := t.Node(i)
	return NoteSummary{ID: n.ID, Fname: t.LogicalPath(i), Title: n.Title, Stub: n.Stub}
}

func (s *Service) schemaView(n *tree.Node) SchemaView {
	if n == nil || n == s.unknown {
		return SchemaView{ID: schema.UnknownSchemaID, Unknown: true}
	}
	v := SchemaView{Module: n.Fname, ID: n.ID, Title: n.Title}
	if n.Schema != nil {
		v.Pattern = n.Schema.Pattern
		v.Namespace = n.Schema.Namespace
		v.Template = n.Schema.Template
	}
	return v
}

func (s *Service) viewLocked(i tree.Index) NoteView {
	t := s.notes
	n := t.Node(i)
	v := NoteView{
		NoteSummary: summary(t, i),
		Desc:        n.Desc,
		Body:        n.Body,
		Created:     n.Created,
		Updated:     n.Updated,
		Custom:      t.Record(i).Custom,
		Children:    []NoteSummary{},
	}
	if p := t.Parent(i); p != tree.None {
		ps := summary(t, p)
		v.Parent = &ps
	}
	for _, c := range t.Children(i) {
		v.Children = append(v.Children, summary(t, c))
	}
	if i != t.Root() {
		v.Schema = s.schemaView(s.matcher.Resolve(n.Note.Schema))
	}
	return v
}

// locate finds a note by logical path. "" and "root" address the root.
func (s *Service) locate(fname string) (tree.Index, error) {
	if s.notes == nil {
		return tree.None, fmt.Errorf("vault: not loaded: %w", apperr.ErrNotFound)
	}
	if fname == rootFname {
		fname = ""
	}
	i, ok := s.notes.FindByFname(fname)
	if !ok {
		return tree.None, fmt.Errorf("vault: note %q: %w", fname, apperr.ErrNotFound)
	}
	return i, nil
}

// GetNote returns the note at fname.
func (s *Service) GetNote(_ context.Context, fname string) (NoteView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, err := s.locate(fname)
	if err != nil {
		return NoteView{}, err
	}
	return s.viewLocked(i), nil
}

// GetNoteByID returns the note with the given identifier.
func (s *Service) GetNoteByID(_ context.Context, id string) (NoteView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.notes == nil {
		return NoteView{}, fmt.Errorf("vault: not loaded: %w", apperr.ErrNotFound)
	}
	i, ok := s.notes.Lookup(id)
	if !ok {
		return NoteView{}, fmt.Errorf("vault: note id %q: %w", id, apperr.ErrNotFound)
	}
	return s.viewLocked(i), nil
}

// Children lists the direct children of the note at fname.
func (s *Service) Children(_ context.Context, fname string) ([]NoteSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, err := s.locate(fname)
	if err != nil {
		return nil, err
	}
	out := []NoteSummary{}
	for _, c := range s.notes.Children(i) {
		out = append(out, summary(s.notes, c))
	}
	return out, nil
}

// MatchSchema resolves fname against the current schema tree. The note
// need not exist.
func (s *Service) MatchSchema(_ context.Context, fname string) (SchemaView, error) {
	fname = strings.TrimSpace(fname)
	if fname == "" {
		return SchemaView{}, fmt.Errorf("vault: fname is required: %w", apperr.ErrInvalid)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.matcher == nil {
		return s.schemaView(nil), nil
	}
	return s.schemaView(s.matcher.Match(fname)), nil
}

// CreateNote writes a new note at fname beneath its nearest existing
// ancestor, synthesizing stubs for the gap. An empty body takes the
// matched schema's note template when templates are enabled. A stub at
// fname is promoted in place.
func (s *Service) CreateNote(_ context.Context, fname, body string) (NoteView, error) {
	fname = strings.TrimSpace(fname)
	if fname == "" || fname == rootFname || strings.ContainsAny(fname, `/\`) {
		return NoteView{}, fmt.Errorf("vault: invalid fname %q: %w", fname, apperr.ErrInvalid)
	}
	if err := tree.ValidateFname(fname); err != nil {
		return NoteView{}, fmt.Errorf("vault: invalid fname %q: %v: %w", fname, err, apperr.ErrInvalid)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	notes, matcher := s.notes, s.matcher
	s.mu.RUnlock()
	if notes == nil {
		return NoteView{}, fmt.Errorf("vault: not loaded: %w", apperr.ErrNotFound)
	}
	var replacedStub string
	if i, ok := notes.FindByFname(fname); ok {
		if !notes.Node(i).Stub {
			return NoteView{}, fmt.Errorf("vault: note %q: %w", fname, apperr.ErrAlreadyExists)
		}
		replacedStub = notes.Node(i).ID
	}

	sch := matcher.Match(fname)
	if body == "" && s.applyTemplates {
		scratch := &tree.Node{}
		applied, err := schema.ApplyTemplate(sch, scratch, notes)
		switch {
		case err != nil:
			s.logger.Warn("vault: template not applied",
				slog.String("fname", fname),
				slog.String("error", err.Error()))
		case applied:
			body = scratch.Body
		}
	}

	now := s.ids.Now()
	rec := tree.Record{
		ID:      s.ids.NewID(),
		Fname:   fname,
		Body:    body,
		Created: now,
		Updated: now,
	}
	data, err := parser.FormatNote(rec)
	if err != nil {
		return NoteView{}, err
	}
	file := fname + parser.NoteExt
	if err := s.store.Write(file, data); err != nil {
		return NoteView{}, fmt.Errorf("vault: write %s: %w", file, err)
	}

	idx, stubs, view, st, err := s.attach(notes, matcher, rec, sch, data)
	if err != nil {
		_ = s.store.Delete(file)
		return NoteView{}, fmt.Errorf("vault: attach %s: %w", fname, err)
	}

	if replacedStub != "" && s.cache != nil {
		if err := s.cache.DeleteNote(replacedStub); err != nil {
			s.logger.Warn("vault: uncache stub", slog.String("fname", fname), slog.String("error", err.Error()))
		}
	}
	touched := append(stubs, idx, notes.Parent(firstOf(stubs, idx)))
	s.cacheNodes(notes, append(touched, notes.Children(idx)...))
	s.logger.Debug("vault: note created", slog.String("fname", fname), slog.Int("stubs", len(stubs)))
	s.publishNote(sse.NoteCreated, rec.ID, fname)
	s.publishRebuilt(st)
	return view, nil
}

// attach links rec into notes under the write lock and returns its view.
func (s *Service) attach(notes *tree.Tree, matcher *schema.Matcher, rec tree.Record, sch *tree.Node, data []byte) (tree.Index, []tree.Index, NoteView, sse.TreeStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, stubs, err := notes.Attach(rec, s.ids)
	if err != nil {
		return tree.None, nil, NoteView{}, sse.TreeStats{}, err
	}
	notes.Node(idx).Note.Schema = matcher.Link(sch)
	for _, si := range stubs {
		notes.Node(si).Note.Schema = matcher.ResolveSchema(notes.LogicalPath(si))
	}
	s.sums[rec.Fname] = storage.Checksum(data)
	return idx, stubs, s.viewLocked(idx), s.statsLocked(), nil
}

func firstOf(stubs []tree.Index, fallback tree.Index) tree.Index {
	if len(stubs) > 0 {
		return stubs[0]
	}
	return fallback
}

func (s *Service) cacheNodes(notes *tree.Tree, idx []tree.Index) {
	if s.cache == nil {
		return
	}
	s.mu.RLock()
	rows := make([]index.NoteRow, 0, len(idx))
	for _, i := range idx {
		if n := notes.Node(i); n != nil {
			rows = append(rows, index.RowFromNode(notes, i, s.sums[n.Fname]))
		}
	}
	s.mu.RUnlock()
	for _, r := range rows {
		if err := s.cache.UpsertNote(r); err != nil {
			s.logger.Warn("vault: cache note", slog.String("fname", r.Fname), slog.String("error", err.Error()))
		}
	}
}

// DeleteNote removes the file of the note at fname and reloads. A note
// with children leaves a stub in its place.
func (s *Service) DeleteNote(ctx context.Context, fname string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	i, err := s.locate(fname)
	var id string
	if err == nil {
		n := s.notes.Node(i)
		id = n.ID
		if i == s.notes.Root() || n.Stub {
			err = fmt.Errorf("vault: note %q has no file: %w", fname, apperr.ErrInvalid)
		}
	}
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := s.deleteFile(fname); err != nil {
		return err
	}
	changes, err := s.load(ctx)
	if err != nil {
		return err
	}
	s.publishNote(sse.NoteDeleted, id, fname)
	for _, c := range changes {
		if c.fname != fname {
			s.publishNote(c.kind, c.id, c.fname)
		}
	}
	return nil
}

// deleteFile finds the file backing fname anywhere in the vault.
func (s *Service) deleteFile(fname string) error {
	entries, err := s.store.List("")
	if err != nil {
		return fmt.Errorf("vault: list: %w", err)
	}
	want := fname + parser.NoteExt
	for _, e := range entries {
		if e.Path == want || strings.HasSuffix(e.Path, "/"+want) {
			if err := s.store.Delete(e.Path); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("vault: note %q: %w", fname, apperr.ErrNotFound)
				}
				return fmt.Errorf("vault: delete %s: %w", e.Path, err)
			}
			return nil
		}
	}
	return fmt.Errorf("vault: note %q: %w", fname, apperr.ErrNotFound)
}

// Search finds authored notes whose title, path, or body contain query.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("vault: empty query: %w", apperr.ErrInvalid)
	}
	if s.cache != nil {
		return s.cache.Search(query, limit)
	}
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []index.SearchResult{}
	if s.notes == nil {
		return out, nil
	}
	q := strings.ToLower(query)
	for _, i := range s.notes.Descendants(s.notes.Root()) {
		n := s.notes.Node(i)
		if n.Stub || i == s.notes.Root() {
			continue
		}
		if strings.Contains(strings.ToLower(n.Title+"\n"+n.Fname+"\n"+n.Body), q) {
			out = append(out, index.SearchResult{ID: n.ID, Fname: n.Fname, Title: n.Title, Snippet: snippet(n.Body)})
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func snippet(body string) string {
	r := []rune(body)
	if len(r) > 200 {
		r = r[:200]
	}
	return string(r)
}
