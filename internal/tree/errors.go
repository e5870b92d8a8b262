package tree

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrNoRoot           = errors.New("no root record")
	ErrMissingParent    = errors.New("missing parent")
	ErrDuplicateID      = errors.New("duplicate id")
	ErrDuplicateFname   = errors.New("duplicate fname")
	ErrMissingChild     = errors.New("missing child")
	ErrUnreachable      = errors.New("unreachable records")
	ErrSchemaResolution = errors.New("schema resolution failed")
	ErrNotDescendant    = errors.New("not a descendant")
)

// NoRootFoundError reports that no record qualifies as the root.
type NoRootFoundError struct {
	Records int
}

func (e *NoRootFoundError) Error() string {
	return fmt.Sprintf("tree: none of %d records is flagged as root or lacks a parent", e.Records)
}

func (e *NoRootFoundError) Unwrap() error { return ErrNoRoot }

// MissingParentError reports a record whose declared parent is not among the
// nodes resolved on the previous level.
type MissingParentError struct {
	ID     string
	Fname  string
	Parent string
	// DeclaredBy is the id of the node whose children list named this record.
	DeclaredBy string
}

func (e *MissingParentError) Error() string {
	if e.Parent == "" {
		return fmt.Sprintf("tree: record %q (%s) has no parent", e.ID, e.Fname)
	}
	return fmt.Sprintf("tree: record %q (%s) names parent %q, declared by %q",
		e.ID, e.Fname, e.Parent, e.DeclaredBy)
}

func (e *MissingParentError) Unwrap() error { return ErrMissingParent }

// DuplicateIDError reports records sharing one identifier.
type DuplicateIDError struct {
	ID     string
	Fnames []string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("tree: id %q used by %d records: %s",
		e.ID, len(e.Fnames), strings.Join(e.Fnames, ", "))
}

func (e *DuplicateIDError) Unwrap() error { return ErrDuplicateID }

// DuplicateFnameError reports two nodes claiming one logical path.
type DuplicateFnameError struct {
	Fname string
	IDs   []string
}

func (e *DuplicateFnameError) Error() string {
	return fmt.Sprintf("tree: fname %q claimed by ids %s", e.Fname, strings.Join(e.IDs, ", "))
}

func (e *DuplicateFnameError) Unwrap() error { return ErrDuplicateFname }

// MissingChildError reports a declared child identifier with no record.
type MissingChildError struct {
	Parent string
	Child  string
}

func (e *MissingChildError) Error() string {
	return fmt.Sprintf("tree: record %q declares child %q which does not exist", e.Parent, e.Child)
}

func (e *MissingChildError) Unwrap() error { return ErrMissingChild }

// UnreachableError lists records never reached from the root through
// declared children.
type UnreachableError struct {
	IDs []string
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("tree: %d records not reachable from root: %s",
		len(e.IDs), strings.Join(e.IDs, ", "))
}

func (e *UnreachableError) Unwrap() error { return ErrUnreachable }

// SchemaResolutionError reports a schema child id with no record in the same module.
type SchemaResolutionError struct {
	Module string
	Schema string
	Child  string
	// Attached is set when the child exists but already has a parent.
	Attached bool
}

func (e *SchemaResolutionError) Error() string {
	if e.Attached {
		return fmt.Sprintf("tree: schema %q in module %q declares child %q, which is already attached elsewhere",
			e.Schema, e.Module, e.Child)
	}
	return fmt.Sprintf("tree: schema %q in module %q declares child %q, no schema with that id in the module",
		e.Schema, e.Module, e.Child)
}

func (e *SchemaResolutionError) Unwrap() error { return ErrSchemaResolution }

// NotDescendantError reports an attach request whose target path does not
// sit beneath the ancestor's path.
type NotDescendantError struct {
	Ancestor string
	Fname    string
}

func (e *NotDescendantError) Error() string {
	return fmt.Sprintf("tree: %q is not beneath %q", e.Fname, e.Ancestor)
}

func (e *NotDescendantError) Unwrap() error { return ErrNotDescendant }
