// Package parser converts vault files into tree records and back.
//
// Notes are Markdown files with an optional YAML front matter block. Schema
// modules are YAML files holding the schemas of one domain.
package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/starford/arbor/internal/tree"
)

const (
	// NoteExt is the suffix of note files.
	NoteExt = ".md"
	// SchemaExt is the suffix of schema module files.
	SchemaExt = ".schema.yml"
)

// reserved front matter keys map onto Record fields; everything else lands
// in Record.Custom.
var reserved = map[string]struct{}{
	"id": {}, "title": {}, "desc": {}, "created": {}, "updated": {}, "stub": {},
}

// NoteFname returns the logical path of a note file name, and false when
// name is not a note.
func NoteFname(name string) (string, bool) {
	if !strings.HasSuffix(name, NoteExt) {
		return "", false
	}
	return strings.TrimSuffix(name, NoteExt), true
}

// SchemaModule returns the module name of a schema file name, and false when
// name is not a schema module.
func SchemaModule(name string) (string, bool) {
	if !strings.HasSuffix(name, SchemaExt) {
		return "", false
	}
	return strings.TrimSuffix(name, SchemaExt), true
}

// ParseNote reads a note file into a record. Parent and children are left
// empty; linking is the caller's job.
func ParseNote(fname string, data []byte) (tree.Record, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return tree.Record{}, err
	}
	rec := tree.Record{
		Fname: fname,
		Body:  body,
		Title: deriveTitle(fm, body),
	}
	for k, v := range fm {
		switch k {
		case "id":
			rec.ID = cast.ToString(v)
		case "desc":
			rec.Desc = cast.ToString(v)
		case "created":
			rec.Created = cast.ToString(v)
		case "updated":
			rec.Updated = cast.ToString(v)
		case "stub":
			rec.Stub = cast.ToBool(v)
		case "title":
		default:
			if rec.Custom == nil {
				rec.Custom = make(map[string]any)
			}
			rec.Custom[k] = v
		}
	}
	return rec, nil
}

// splitFrontmatter separates YAML front matter (between leading ---
// delimiters) from the body. Content without a well formed block is all body.
func splitFrontmatter(data []byte) (map[string]any, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data), nil
	}
	return fm, body, nil
}

// deriveTitle returns the front matter title, otherwise the first H1
// heading, otherwise "".
func deriveTitle(fm map[string]any, body string) string {
	if s := cast.ToString(fm["title"]); s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

type noteHeader struct {
	ID      string         `yaml:"id"`
	Title   string         `yaml:"title,omitempty"`
	Desc    string         `yaml:"desc,omitempty"`
	Created string         `yaml:"created,omitempty"`
	Updated string         `yaml:"updated,omitempty"`
	Custom  map[string]any `yaml:",inline"`
}

// FormatNote renders rec as a note file. Stubs are never persisted, so the
// stub flag is not written.
func FormatNote(rec tree.Record) ([]byte, error) {
	hdr := noteHeader{
		ID:      rec.ID,
		Title:   rec.Title,
		Desc:    rec.Desc,
		Created: rec.Created,
		Updated: rec.Updated,
	}
	for k, v := range rec.Custom {
		if _, ok := reserved[k]; ok {
			continue
		}
		if hdr.Custom == nil {
			hdr.Custom = make(map[string]any)
		}
		hdr.Custom[k] = v
	}
	fm, err := yaml.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("parser: marshal front matter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n")
	buf.WriteString(rec.Body)
	return buf.Bytes(), nil
}
