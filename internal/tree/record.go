package tree

import (
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// RootID is the reserved identifier of every tree's root.
const RootID = "root"

// TemplateTypeNote names a template that copies the body of another note.
const TemplateTypeNote = "note"

// Template references content a schema projects onto matching notes.
type Template struct {
	ID   string `yaml:"id" json:"id"`
	Type string `yaml:"type" json:"type"`
}

// Data is the typed auxiliary payload of a record. Only schema records use it today.
type Data struct {
	Pattern   string    `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Namespace bool      `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Template  *Template `yaml:"template,omitempty" json:"template,omitempty"`
}

// Record is the flat, order-independent input the builders consume.
type Record struct {
	ID       string
	Fname    string
	Parent   string // "" when absent
	Children []string
	Stub     bool
	Body     string
	Title    string
	Desc     string
	Created  string
	Updated  string
	Data     Data
	Custom   map[string]any
}

// Validate checks the fields every record must carry.
func (r Record) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Required),
		validation.Field(&r.Fname, validation.Required, validation.By(noSurroundingSpace), validation.By(noEmptySegment)),
	)
}

// IsRoot reports whether r is explicitly flagged as the root.
func (r Record) IsRoot() bool {
	return r.ID == RootID
}

func noSurroundingSpace(v any) error {
	s, _ := v.(string)
	if strings.TrimSpace(s) != s {
		return validation.NewError("validation_fname_space", "must not have surrounding whitespace")
	}
	return nil
}

func noEmptySegment(v any) error {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	if slices.Contains(strings.Split(s, "."), "") {
		return validation.NewError("validation_fname_segment", "must not contain empty segments")
	}
	return nil
}

// ValidateFname checks fname the way Validate checks a record's fname.
func ValidateFname(fname string) error {
	return validation.Validate(fname, validation.Required, validation.By(noSurroundingSpace), validation.By(noEmptySegment))
}
