package parser

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/starford/arbor/internal/tree"
)

// SchemaFileVersion is the only module layout understood.
const SchemaFileVersion = 1

type schemaFile struct {
	Version int           `yaml:"version"`
	Schemas []schemaEntry `yaml:"schemas"`
}

type schemaEntry struct {
	ID        string         `yaml:"id"`
	Parent    string         `yaml:"parent"`
	Title     string         `yaml:"title"`
	Desc      string         `yaml:"desc"`
	Children  []string       `yaml:"children"`
	Pattern   string         `yaml:"pattern"`
	Namespace bool           `yaml:"namespace"`
	Template  *tree.Template `yaml:"template"`
}

// ParseSchemaModule reads a schema module. Every record's fname is the
// module name. When no schema declares parent root, the first one becomes
// the module's domain.
func ParseSchemaModule(module string, data []byte) ([]tree.Record, error) {
	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parser: schema module %s: %w", module, err)
	}
	if f.Version != 0 && f.Version != SchemaFileVersion {
		return nil, fmt.Errorf("parser: schema module %s: unsupported version %d", module, f.Version)
	}
	if len(f.Schemas) == 0 {
		return nil, fmt.Errorf("parser: schema module %s: no schemas", module)
	}

	out := make([]tree.Record, 0, len(f.Schemas))
	hasDomain := false
	for _, s := range f.Schemas {
		if s.Parent == tree.RootID {
			hasDomain = true
		}
		out = append(out, tree.Record{
			ID:       s.ID,
			Fname:    module,
			Parent:   s.Parent,
			Children: s.Children,
			Title:    s.Title,
			Desc:     s.Desc,
			Data: tree.Data{
				Pattern:   s.Pattern,
				Namespace: s.Namespace,
				Template:  s.Template,
			},
		})
	}
	if !hasDomain {
		out[0].Parent = tree.RootID
	}
	return out, nil
}
