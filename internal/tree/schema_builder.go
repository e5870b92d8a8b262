package tree

import "log/slog"

type schemaFrame struct {
	idx Index
	rec int
}

// BuildSchemas builds the schema tree from the records of every loaded
// schema module.
//
// Domains are the records whose parent is RootID, in input order. Each
// domain's declared children are looked up by id within the same module
// (same fname) and attached depth-first. A record with id RootID, when
// present, supplies the root's fields; otherwise the root is synthetic.
func BuildSchemas(records []Record, opts ...Option) (*Tree, error) {
	b := newBuilder(opts)

	if err := validateRecords(records); err != nil {
		return nil, err
	}
	pool := make(map[string]int, len(records))
	for i, rec := range records {
		key := nodeKey(KindSchema, rec.Fname, rec.ID)
		if prev, ok := pool[key]; ok {
			return nil, &DuplicateIDError{ID: rec.ID, Fnames: []string{records[prev].Fname, rec.Fname}}
		}
		pool[key] = i
	}

	t := newTree(KindSchema)
	rootRec := Record{ID: RootID, Fname: RootID}
	resolved := make([]bool, len(records))
	if ri, ok := pool[RootID]; ok {
		rootRec = records[ri]
		resolved[ri] = true
	}
	if _, err := t.add(newNode(rootRec, KindSchema)); err != nil {
		return nil, err
	}

	for di, rec := range records {
		if rec.Parent != RootID || rec.IsRoot() {
			continue
		}
		idx, err := t.add(newNode(rec, KindSchema))
		if err != nil {
			return nil, err
		}
		t.AddChild(t.Root(), idx)
		resolved[di] = true

		stack := []schemaFrame{{idx: idx, rec: di}}
		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			parent := records[f.rec]

			for _, cid := range parent.Children {
				ci, ok := pool[nodeKey(KindSchema, parent.Fname, cid)]
				if !ok {
					return nil, &SchemaResolutionError{Module: parent.Fname, Schema: parent.ID, Child: cid}
				}
				if resolved[ci] {
					return nil, &SchemaResolutionError{Module: parent.Fname, Schema: parent.ID, Child: cid, Attached: true}
				}
				child, err := t.add(newNode(records[ci], KindSchema))
				if err != nil {
					return nil, err
				}
				t.AddChild(f.idx, child)
				resolved[ci] = true
				stack = append(stack, schemaFrame{idx: child, rec: ci})
			}
		}
		b.logger.Debug("tree: schema domain built",
			slog.String("module", rec.Fname), slog.String("domain", rec.ID))
	}

	if err := checkReachable(records, resolved); err != nil {
		return nil, err
	}
	return t, nil
}
