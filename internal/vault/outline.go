package vault

import (
	"fmt"
	"io"
	"strings"

	"github.com/starford/arbor/internal/tree"
)

// Outline is a nested rendering of the note tree.
type Outline struct {
	NoteSummary
	Schema   string     `json:"schema,omitempty"`
	Children []*Outline `json:"children,omitempty"`
}

// Outline returns the subtree at fname ("" for the whole vault).
func (s *Service) Outline(fname string) (*Outline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start, err := s.locate(fname)
	if err != nil {
		return nil, err
	}
	t := s.notes
	built := make(map[tree.Index]*Outline)
	for _, i := range t.Descendants(start) {
		o := &Outline{NoteSummary: summary(t, i)}
		if n := t.Node(i); i != t.Root() && n.Note != nil {
			o.Schema = n.Note.Schema.ID
		}
		built[i] = o
		if i != start {
			p := built[t.Parent(i)]
			p.Children = append(p.Children, o)
		}
	}
	return built[start], nil
}

// WriteOutline prints the subtree at fname as an indented list. Stubs are
// marked with a trailing "(stub)".
func (s *Service) WriteOutline(w io.Writer, fname string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start, err := s.locate(fname)
	if err != nil {
		return err
	}
	t := s.notes
	base := len(t.Ancestors(start))
	for _, i := range t.Descendants(start) {
		n := t.Node(i)
		depth := len(t.Ancestors(i)) - base
		label := t.LogicalPath(i)
		if i == t.Root() {
			label = rootFname
		}
		line := strings.Repeat("  ", depth) + label
		if n.Stub {
			line += " (stub)"
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
