package tree

import (
	"fmt"

	"github.com/starford/arbor/internal/dotpath"
)

// StubSource supplies identifiers and timestamps for synthesized nodes.
type StubSource interface {
	NewID() string
	Now() string
}

// InsertStubs attaches node beneath ancestor, creating a stub for every
// missing path segment between them. Segments that already have a node are
// reused. It returns the stubs it created, outermost first.
func (t *Tree) InsertStubs(ancestor, node Index, src StubSource) ([]Index, error) {
	if !t.valid(ancestor) || !t.valid(node) {
		return nil, fmt.Errorf("tree: insert stubs: index out of range (%d, %d)", ancestor, node)
	}
	base := t.LogicalPath(ancestor)
	target := t.LogicalPath(node)
	segs, ok := dotpath.Between(base, target)
	if !ok || len(segs) == 0 || node == t.Root() || t.isAncestorOf(node, ancestor) {
		return nil, &NotDescendantError{Ancestor: base, Fname: target}
	}

	var stubs []Index
	running := ancestor
	path := base
	for _, seg := range segs[:len(segs)-1] {
		path = dotpath.Join(path, seg)
		if existing, ok := t.FindByFname(path); ok && t.kind == KindNote {
			if existing == running || t.isAncestorOf(existing, running) {
				return nil, &NotDescendantError{Ancestor: t.LogicalPath(running), Fname: path}
			}
			t.AddChild(running, existing)
			running = existing
			continue
		}
		now := src.Now()
		stub := newNode(Record{
			ID:      src.NewID(),
			Fname:   path,
			Stub:    true,
			Created: now,
			Updated: now,
		}, t.kind)
		idx, err := t.add(stub)
		if err != nil {
			return nil, err
		}
		t.AddChild(running, idx)
		stubs = append(stubs, idx)
		running = idx
	}
	t.AddChild(running, node)
	return stubs, nil
}

// isAncestorOf reports whether a appears on b's parent chain.
func (t *Tree) isAncestorOf(a, b Index) bool {
	for _, p := range t.Ancestors(b) {
		if p == a {
			return true
		}
	}
	return false
}

// NearestAncestor returns the closest node whose logical path is a strict
// prefix of fname, falling back to the root.
func (t *Tree) NearestAncestor(fname string) Index {
	for dir := dotpath.Dirname(fname); dir != ""; dir = dotpath.Dirname(dir) {
		if i, ok := t.FindByFname(dir); ok {
			return i
		}
	}
	return t.Root()
}

// Attach inserts rec beneath its nearest existing ancestor, synthesizing
// stubs for the gap. When a stub already holds rec's fname, the stub is
// promoted in place and keeps its position and children.
func (t *Tree) Attach(rec Record, src StubSource) (Index, []Index, error) {
	if err := rec.Validate(); err != nil {
		return None, nil, fmt.Errorf("tree: record %q: %w", rec.ID, err)
	}
	if i, ok := t.FindByFname(rec.Fname); ok {
		n := t.nodes[i]
		if !n.Stub || i == t.Root() {
			return None, nil, &DuplicateFnameError{Fname: rec.Fname, IDs: []string{n.ID, rec.ID}}
		}
		return i, nil, t.promote(i, rec)
	}

	idx, err := t.Insert(rec)
	if err != nil {
		return None, nil, err
	}
	stubs, err := t.InsertStubs(t.NearestAncestor(rec.Fname), idx, src)
	if err != nil {
		return None, nil, err
	}
	return idx, stubs, nil
}

func (t *Tree) promote(i Index, rec Record) error {
	old := t.nodes[i]
	oldKey := nodeKey(t.kind, old.Fname, old.ID)
	newKey := nodeKey(t.kind, rec.Fname, rec.ID)
	if prev, ok := t.keys[newKey]; ok && prev != i {
		return &DuplicateIDError{ID: rec.ID, Fnames: []string{t.nodes[prev].Fname, rec.Fname}}
	}

	n := newNode(rec, t.kind)
	n.Parent = old.Parent
	n.Children = old.Children
	n.Stub = false
	if n.Note != nil && old.Note != nil {
		n.Note.Schema = old.Note.Schema
	}
	t.nodes[i] = n
	delete(t.keys, oldKey)
	t.keys[newKey] = i
	return nil
}
