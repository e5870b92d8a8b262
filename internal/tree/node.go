// Package tree builds validated, single-parent hierarchies of notes and
// schemas from flat records.
//
// Nodes live in a flat table owned by a Tree; parent and child links are
// indices into that table, so a node never holds a live reference to another
// node and the absence of cycles follows from construction order.
package tree

import (
	"maps"
	"slices"

	"github.com/starford/arbor/internal/dotpath"
)

// Index addresses a node inside its Tree.
type Index int

// None is the parent index of the root and of unattached nodes.
const None Index = -1

// Kind tags the node variant.
type Kind uint8

const (
	KindNote Kind = iota
	KindSchema
)

func (k Kind) String() string {
	if k == KindSchema {
		return "schema"
	}
	return "note"
}

// SchemaLink names the schema a note resolved to.
type SchemaLink struct {
	Module string `json:"module"`
	ID     string `json:"id"`
}

// NoteProps holds fields specific to note nodes.
type NoteProps struct {
	Schema SchemaLink
}

// SchemaProps holds fields specific to schema nodes.
type SchemaProps struct {
	Pattern   string
	Namespace bool
	Template  *Template
}

// Node is one entry of a Tree. Exactly one of Note and Schema is set,
// according to Kind.
type Node struct {
	ID       string
	Title    string
	Desc     string
	Fname    string
	Created  string
	Updated  string
	Parent   Index
	Children []Index
	Stub     bool
	Body     string
	Custom   map[string]any

	Kind   Kind
	Note   *NoteProps
	Schema *SchemaProps
}

func newNode(rec Record, kind Kind) *Node {
	n := &Node{
		ID:      rec.ID,
		Title:   rec.Title,
		Desc:    rec.Desc,
		Fname:   rec.Fname,
		Created: rec.Created,
		Updated: rec.Updated,
		Parent:  None,
		Stub:    rec.Stub,
		Body:    rec.Body,
		Custom:  maps.Clone(rec.Custom),
		Kind:    kind,
	}
	if n.Title == "" {
		n.Title = dotpath.DefaultTitle(rec.Fname)
	}
	switch kind {
	case KindSchema:
		n.Schema = &SchemaProps{
			Pattern:   rec.Data.Pattern,
			Namespace: rec.Data.Namespace,
			Template:  rec.Data.Template,
		}
	default:
		n.Note = &NoteProps{}
	}
	return n
}

// Tree owns a table of nodes. Index 0 is always the root.
type Tree struct {
	kind   Kind
	nodes  []*Node
	keys   map[string]Index
	fnames map[string]Index
}

func newTree(kind Kind) *Tree {
	return &Tree{
		kind:   kind,
		keys:   make(map[string]Index),
		fnames: make(map[string]Index),
	}
}

// nodeKey is the uniqueness key of a node: the id for notes, the module
// fname plus id for schemas.
func nodeKey(kind Kind, fname, id string) string {
	if kind == KindSchema && id != RootID {
		return fname + "#" + id
	}
	return id
}

func (t *Tree) add(n *Node) (Index, error) {
	key := nodeKey(t.kind, n.Fname, n.ID)
	if prev, ok := t.keys[key]; ok {
		return None, &DuplicateIDError{ID: n.ID, Fnames: []string{t.nodes[prev].Fname, n.Fname}}
	}
	idx := Index(len(t.nodes))
	if t.kind == KindNote {
		path := n.Fname
		if idx == 0 {
			path = ""
		}
		if prev, ok := t.fnames[path]; ok {
			return None, &DuplicateFnameError{Fname: n.Fname, IDs: []string{t.nodes[prev].ID, n.ID}}
		}
		t.fnames[path] = idx
	}
	t.nodes = append(t.nodes, n)
	t.keys[key] = idx
	return idx, nil
}

// Kind returns the variant of every node in the tree.
func (t *Tree) Kind() Kind { return t.kind }

// Len returns the number of nodes, root included.
func (t *Tree) Len() int { return len(t.nodes) }

// Root returns the root index.
func (t *Tree) Root() Index { return 0 }

func (t *Tree) valid(i Index) bool {
	return i >= 0 && int(i) < len(t.nodes)
}

// Node returns the node at i, or nil when i is out of range.
func (t *Tree) Node(i Index) *Node {
	if !t.valid(i) {
		return nil
	}
	return t.nodes[i]
}

// Lookup finds a note by identifier. For schema trees use LookupSchema.
func (t *Tree) Lookup(id string) (Index, bool) {
	i, ok := t.keys[nodeKey(t.kind, "", id)]
	return i, ok
}

// LookupSchema finds a schema by module fname and identifier.
func (t *Tree) LookupSchema(module, id string) (Index, bool) {
	i, ok := t.keys[nodeKey(KindSchema, module, id)]
	return i, ok
}

// FindByFname finds a note by logical path. The root answers to "".
func (t *Tree) FindByFname(fname string) (Index, bool) {
	i, ok := t.fnames[fname]
	return i, ok
}

// Parent returns the parent index of i, None for the root.
func (t *Tree) Parent(i Index) Index {
	if !t.valid(i) {
		return None
	}
	return t.nodes[i].Parent
}

// Children returns a copy of i's ordered child indices.
func (t *Tree) Children(i Index) []Index {
	if !t.valid(i) {
		return nil
	}
	return slices.Clone(t.nodes[i].Children)
}

// Domains returns the top-level nodes beneath the root.
func (t *Tree) Domains() []Index {
	return t.Children(t.Root())
}

// AddChild makes child a child of parent. It is a no-op when parent already
// has a child with the same identifier, when child is the root, or when
// child is an ancestor of parent. A child attached elsewhere is moved.
func (t *Tree) AddChild(parent, child Index) {
	if !t.valid(parent) || !t.valid(child) || parent == child {
		return
	}
	if child == t.Root() || t.isAncestorOf(child, parent) {
		return
	}
	p, c := t.nodes[parent], t.nodes[child]
	for _, ci := range p.Children {
		if t.nodes[ci].ID == c.ID {
			return
		}
	}
	if c.Parent != None && c.Parent != parent {
		old := t.nodes[c.Parent]
		old.Children = slices.DeleteFunc(old.Children, func(ci Index) bool { return ci == child })
	}
	p.Children = append(p.Children, child)
	c.Parent = parent
}

// Ancestors returns the parent chain of i, nearest first, ending at the root.
// The walk is bounded by the table size.
func (t *Tree) Ancestors(i Index) []Index {
	var out []Index
	for p := t.Parent(i); p != None && len(out) < len(t.nodes); p = t.Parent(p) {
		out = append(out, p)
	}
	return out
}

// Domain returns the highest ancestor of i below the root, or the root itself.
func (t *Tree) Domain(i Index) Index {
	if i == t.Root() {
		return i
	}
	cur := i
	for steps := 0; steps < len(t.nodes); steps++ {
		p := t.Parent(cur)
		if p == None || p == t.Root() {
			return cur
		}
		cur = p
	}
	return cur
}

// Descendants returns i followed by all of its descendants in depth-first
// pre-order.
func (t *Tree) Descendants(i Index) []Index {
	if !t.valid(i) {
		return nil
	}
	var out []Index
	stack := []Index{i}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, cur)
		kids := t.nodes[cur].Children
		for k := len(kids) - 1; k >= 0; k-- {
			stack = append(stack, kids[k])
		}
	}
	return out
}

// LogicalPath returns "" for the root and the declared fname otherwise.
func (t *Tree) LogicalPath(i Index) string {
	if i == t.Root() || !t.valid(i) {
		return ""
	}
	return t.nodes[i].Fname
}

// Record exports the node at i as a flat record.
func (t *Tree) Record(i Index) Record {
	n := t.Node(i)
	if n == nil {
		return Record{}
	}
	rec := Record{
		ID:      n.ID,
		Fname:   n.Fname,
		Stub:    n.Stub,
		Body:    n.Body,
		Title:   n.Title,
		Desc:    n.Desc,
		Created: n.Created,
		Updated: n.Updated,
		Custom:  maps.Clone(n.Custom),
	}
	if p := t.Node(n.Parent); p != nil {
		rec.Parent = p.ID
	}
	for _, ci := range n.Children {
		rec.Children = append(rec.Children, t.nodes[ci].ID)
	}
	if n.Schema != nil {
		rec.Data = Data{Pattern: n.Schema.Pattern, Namespace: n.Schema.Namespace, Template: n.Schema.Template}
	}
	return rec
}

// Records exports every node in pre-order from the root.
func (t *Tree) Records() []Record {
	all := t.Descendants(t.Root())
	out := make([]Record, 0, len(all))
	for _, i := range all {
		out = append(out, t.Record(i))
	}
	return out
}
