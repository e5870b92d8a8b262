package schema

import (
	"errors"
	"fmt"

	"github.com/starford/arbor/internal/tree"
)

// ErrTemplateNotFound is matched by TemplateNotFoundError.
var ErrTemplateNotFound = errors.New("template not found")

// TemplateNotFoundError reports a note template whose referenced note does
// not exist.
type TemplateNotFoundError struct {
	Schema   string
	Template string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("schema %q: template note %q not found", e.Schema, e.Template)
}

func (e *TemplateNotFoundError) Unwrap() error { return ErrTemplateNotFound }

// NoteLookup finds notes by logical path. *tree.Tree satisfies it.
type NoteLookup interface {
	FindByFname(fname string) (tree.Index, bool)
	Node(i tree.Index) *tree.Node
}

// ApplyTemplate copies the body of the note named by sch's template onto
// target. It reports false without error when sch has no template or the
// template is not a note reference.
func ApplyTemplate(sch, target *tree.Node, notes NoteLookup) (bool, error) {
	if sch == nil || sch.Schema == nil || sch.Schema.Template == nil || target == nil {
		return false, nil
	}
	tmpl := sch.Schema.Template
	if tmpl.Type != tree.TemplateTypeNote {
		return false, nil
	}
	i, ok := notes.FindByFname(tmpl.ID)
	src := notes.Node(i)
	if !ok || src == nil {
		return false, &TemplateNotFoundError{Schema: sch.ID, Template: tmpl.ID}
	}
	target.Body = src.Body
	return true, nil
}
