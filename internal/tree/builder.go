package tree

import (
	"fmt"
	"io"
	"log/slog"
)

// SchemaResolver resolves a note's logical path to the schema that
// constrains it. Implementations return a sentinel link when nothing matches.
type SchemaResolver interface {
	ResolveSchema(fname string) SchemaLink
}

// Option configures a build.
type Option func(*builder)

// WithSchemaResolver resolves each note's schema as it is built.
func WithSchemaResolver(r SchemaResolver) Option {
	return func(b *builder) {
		b.resolver = r
	}
}

// WithLogger sets the logger used for build diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(b *builder) {
		if l != nil {
			b.logger = l
		}
	}
}

type builder struct {
	resolver SchemaResolver
	logger   *slog.Logger
}

func newBuilder(opts []Option) *builder {
	b := &builder{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// pendingRecord is a record waiting for resolution together with the node
// whose children list declared it.
type pendingRecord struct {
	rec        int
	declaredBy Index
}

// BuildNotes turns a flat note collection into a connected tree.
//
// The root is the record with id RootID, or failing that the first record
// without a parent. Children are resolved level by level: a record's parent
// must be among the nodes resolved on the previous level and must be the node
// that declared it.
func BuildNotes(records []Record, opts ...Option) (*Tree, error) {
	b := newBuilder(opts)

	if err := validateRecords(records); err != nil {
		return nil, err
	}
	byID, err := indexByID(records)
	if err != nil {
		return nil, err
	}

	ri, ok := locateRoot(records)
	if !ok {
		return nil, &NoRootFoundError{Records: len(records)}
	}

	t := newTree(KindNote)
	root := newNode(records[ri], KindNote)
	root.ID = RootID
	if _, err := t.add(root); err != nil {
		return nil, err
	}

	resolved := make([]bool, len(records))
	resolved[ri] = true
	frontier := map[string]Index{RootID: t.Root(), records[ri].ID: t.Root()}

	level, err := declaredChildren(records, byID, ri, t.Root())
	if err != nil {
		return nil, err
	}

	depth := 0
	for len(level) > 0 {
		depth++
		next := make(map[string]Index, len(level))
		var queue []pendingRecord

		for _, p := range level {
			rec := records[p.rec]
			parent, ok := frontier[rec.Parent]
			if !ok || parent != p.declaredBy {
				return nil, &MissingParentError{
					ID:         rec.ID,
					Fname:      rec.Fname,
					Parent:     rec.Parent,
					DeclaredBy: t.nodes[p.declaredBy].ID,
				}
			}
			if resolved[p.rec] {
				continue
			}

			n := newNode(rec, KindNote)
			idx, err := t.add(n)
			if err != nil {
				return nil, err
			}
			t.AddChild(parent, idx)
			resolved[p.rec] = true
			if b.resolver != nil {
				n.Note.Schema = b.resolver.ResolveSchema(n.Fname)
			}

			next[rec.ID] = idx
			kids, err := declaredChildren(records, byID, p.rec, idx)
			if err != nil {
				return nil, err
			}
			queue = append(queue, kids...)
		}

		b.logger.Debug("tree: level resolved", slog.Int("depth", depth), slog.Int("nodes", len(next)))
		frontier = next
		level = queue
	}

	if err := checkReachable(records, resolved); err != nil {
		return nil, err
	}
	return t, nil
}

// Insert adds an unattached node built from rec. Callers attach it with
// AddChild or InsertStubs.
func (t *Tree) Insert(rec Record) (Index, error) {
	if err := rec.Validate(); err != nil {
		return None, fmt.Errorf("tree: record %q: %w", rec.ID, err)
	}
	return t.add(newNode(rec, t.kind))
}

func validateRecords(records []Record) error {
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("tree: record %q: %w", rec.ID, err)
		}
	}
	return nil
}

// indexByID maps every id to its record position, failing on the first id
// used more than once.
func indexByID(records []Record) (map[string]int, error) {
	byID := make(map[string]int, len(records))
	for i, rec := range records {
		prev, ok := byID[rec.ID]
		if !ok {
			byID[rec.ID] = i
			continue
		}
		fnames := []string{records[prev].Fname}
		for _, other := range records[i:] {
			if other.ID == rec.ID {
				fnames = append(fnames, other.Fname)
			}
		}
		return nil, &DuplicateIDError{ID: rec.ID, Fnames: fnames}
	}
	return byID, nil
}

func locateRoot(records []Record) (int, bool) {
	for i, rec := range records {
		if rec.IsRoot() {
			return i, true
		}
	}
	for i, rec := range records {
		if rec.Parent == "" {
			return i, true
		}
	}
	return 0, false
}

func declaredChildren(records []Record, byID map[string]int, rec int, declaredBy Index) ([]pendingRecord, error) {
	ids := records[rec].Children
	out := make([]pendingRecord, 0, len(ids))
	for _, id := range ids {
		ci, ok := byID[id]
		if !ok {
			return nil, &MissingChildError{Parent: records[rec].ID, Child: id}
		}
		out = append(out, pendingRecord{rec: ci, declaredBy: declaredBy})
	}
	return out, nil
}

func checkReachable(records []Record, resolved []bool) error {
	var missing []string
	for i, ok := range resolved {
		if !ok {
			missing = append(missing, records[i].ID)
		}
	}
	if len(missing) > 0 {
		return &UnreachableError{IDs: missing}
	}
	return nil
}
