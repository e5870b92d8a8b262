package tree

import (
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type nodeView struct {
	Kind   Kind
	Record Record
	Link   SchemaLink
}

func viewAt(t *Tree, i Index) nodeView {
	rec := t.Record(i)
	rec.Body = strings.TrimSpace(rec.Body)
	c := nodeView{Kind: t.kind, Record: rec}
	if n := t.Node(i); n != nil && n.Note != nil {
		c.Link = n.Note.Schema
	}
	return c
}

// Equal reports whether node i of a and node j of b carry the same fields,
// comparing bodies after trimming surrounding whitespace. Parent and children
// are compared by identifier, so nodes from different trees can be equal.
func Equal(a *Tree, i Index, b *Tree, j Index) bool {
	if a.Node(i) == nil || b.Node(j) == nil {
		return false
	}
	return cmp.Equal(viewAt(a, i), viewAt(b, j), cmpopts.EquateEmpty())
}

// Diff renders the difference between two nodes, empty when Equal.
func Diff(a *Tree, i Index, b *Tree, j Index) string {
	return cmp.Diff(viewAt(a, i), viewAt(b, j), cmpopts.EquateEmpty())
}
