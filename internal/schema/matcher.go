// Package schema resolves notes against a schema tree and projects schema
// templates onto note bodies.
package schema

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/starford/arbor/internal/dotpath"
	"github.com/starford/arbor/internal/tree"
)

// UnknownSchemaID identifies the schema returned when nothing matches.
const UnknownSchemaID = "_UNKNOWN_SCHEMA"

const wildcard = "/*"

// NewUnknown returns the placeholder schema node. Callers construct it once
// per matching context and hand it to NewMatcher.
func NewUnknown() *tree.Node {
	return &tree.Node{
		ID:     UnknownSchemaID,
		Title:  UnknownSchemaID,
		Fname:  UnknownSchemaID,
		Parent: tree.None,
		Stub:   true,
		Kind:   tree.KindSchema,
		Schema: &tree.SchemaProps{},
	}
}

// IsUnknown reports whether link points at the placeholder schema.
func IsUnknown(link tree.SchemaLink) bool {
	return link.ID == UnknownSchemaID
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithMatchNamespace toggles matching a namespace schema against its own
// path as well as the single segment beneath it. Enabled by default.
func WithMatchNamespace(on bool) Option {
	return func(m *Matcher) { m.matchNamespace = on }
}

// WithMatchPrefix is accepted for configuration compatibility. It does not
// change match results.
func WithMatchPrefix(on bool) Option {
	return func(m *Matcher) { m.matchPrefix = on }
}

// Matcher resolves note paths to schema nodes of a built schema tree.
// Patterns are derived from tree shape on demand.
type Matcher struct {
	schemas        *tree.Tree
	unknown        *tree.Node
	matchNamespace bool
	matchPrefix    bool
}

// NewMatcher returns a Matcher over schemas. A nil unknown gets a fresh
// placeholder.
func NewMatcher(schemas *tree.Tree, unknown *tree.Node, opts ...Option) *Matcher {
	if unknown == nil {
		unknown = NewUnknown()
	}
	m := &Matcher{schemas: schemas, unknown: unknown, matchNamespace: true}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Unknown returns the placeholder this matcher answers with.
func (m *Matcher) Unknown() *tree.Node { return m.unknown }

// Schemas returns the tree the matcher searches.
func (m *Matcher) Schemas() *tree.Tree { return m.schemas }

// fragment is the pattern contribution of a single schema node.
func (m *Matcher) fragment(i tree.Index) string {
	n := m.schemas.Node(i)
	frag := n.ID
	if n.Schema != nil && n.Schema.Pattern != "" {
		frag = dotpath.ToPattern(n.Schema.Pattern)
	}
	if n.Schema != nil && n.Schema.Namespace {
		frag += wildcard
	}
	return frag
}

// Pattern returns the full glob pattern of the schema at i: every ancestor
// fragment below the root joined with "/", ending with i's own.
func (m *Matcher) Pattern(i tree.Index) string {
	if m.schemas == nil || m.schemas.Node(i) == nil || i == m.schemas.Root() {
		return ""
	}
	chain := m.schemas.Ancestors(i)
	parts := make([]string, 0, len(chain)+1)
	for k := len(chain) - 1; k >= 0; k-- {
		if chain[k] == m.schemas.Root() {
			continue
		}
		parts = append(parts, m.fragment(chain[k]))
	}
	parts = append(parts, m.fragment(i))
	return strings.Join(parts, "/")
}

// Match resolves fname against every domain of the schema tree.
func (m *Matcher) Match(fname string) *tree.Node {
	if m.schemas == nil {
		return m.unknown
	}
	return m.MatchDomains(fname, m.schemas.Domains())
}

// MatchDomains resolves fname against the given domains. Candidates are
// visited domain by domain in the order given, each in depth-first
// pre-order, and the first match wins.
func (m *Matcher) MatchDomains(fname string, domains []tree.Index) *tree.Node {
	i, ok := m.find(fname, domains)
	if !ok {
		return m.unknown
	}
	return m.schemas.Node(i)
}

func (m *Matcher) find(fname string, domains []tree.Index) (tree.Index, bool) {
	if m.schemas == nil {
		return tree.None, false
	}
	target := dotpath.ToPattern(fname)
	for _, d := range domains {
		for _, c := range m.schemas.Descendants(d) {
			if c == m.schemas.Root() {
				continue
			}
			pattern := m.Pattern(c)
			n := m.schemas.Node(c)
			if m.matchNamespace && n.Schema != nil && n.Schema.Namespace {
				if globMatch(strings.TrimSuffix(pattern, wildcard), target) {
					return c, true
				}
			}
			if globMatch(pattern, target) {
				return c, true
			}
		}
	}
	return tree.None, false
}

// globMatch treats a malformed pattern as a miss.
func globMatch(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}

// Link returns the reference stored on notes for the schema node n.
func (m *Matcher) Link(n *tree.Node) tree.SchemaLink {
	if n == nil || n == m.unknown {
		return tree.SchemaLink{ID: UnknownSchemaID}
	}
	return tree.SchemaLink{Module: n.Fname, ID: n.ID}
}

// ResolveSchema implements tree.SchemaResolver.
func (m *Matcher) ResolveSchema(fname string) tree.SchemaLink {
	return m.Link(m.Match(fname))
}

// Resolve returns the schema node a stored link points at, or the
// placeholder when the link no longer resolves.
func (m *Matcher) Resolve(link tree.SchemaLink) *tree.Node {
	if m.schemas == nil || IsUnknown(link) {
		return m.unknown
	}
	if i, ok := m.schemas.LookupSchema(link.Module, link.ID); ok {
		return m.schemas.Node(i)
	}
	return m.unknown
}

// MatchPrefix reports the reserved prefix option as configured.
func (m *Matcher) MatchPrefix() bool { return m.matchPrefix }
