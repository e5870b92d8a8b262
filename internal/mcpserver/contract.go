package mcpserver

// NoteFormatContract describes how notes and schema modules are laid out so
// LLM consumers can create notes that land in the right place.
const NoteFormatContract = `# Arbor Note Format Contract

Notes form a tree addressed by dotted names. The file ` + "`" + `work.proj.alpha.md` + "`" + `
is the note ` + "`" + `work.proj.alpha` + "`" + `, a child of ` + "`" + `work.proj` + "`" + `, which is a child of
` + "`" + `work` + "`" + `, which hangs off the root.

## Structure

` + "```" + `markdown
---
id: 3f0c...            # OPTIONAL – stable id; assigned when missing
title: Alpha           # OPTIONAL – defaults to the H1 or the last name segment
desc: Short summary    # OPTIONAL
status: active         # OPTIONAL – any other key is kept as a custom field
---

# Alpha

Body text in standard Markdown.
` + "```" + `

## Rules

1. **Names are dotted paths.** Segments are separated by ` + "`" + `.` + "`" + `; slashes are not
   allowed. ` + "`" + `root` + "`" + ` is reserved for the vault root.
2. **Missing ancestors are fine.** Creating ` + "`" + `a.b.c` + "`" + ` without ` + "`" + `a.b` + "`" + ` inserts a
   placeholder (a stub) for ` + "`" + `a.b` + "`" + `. Creating ` + "`" + `a.b` + "`" + ` later promotes the stub.
3. **Schemas** live in ` + "`" + `<module>.schema.yml` + "`" + ` files and describe which names a
   note may have. Use ` + "`" + `match_schema` + "`" + ` to see which schema a name falls under.
4. **Templates.** Creating a note with an empty body copies the body of the
   template note named by its schema, when there is one.
5. **Encoding** is UTF-8 with a trailing newline.

## Schema module example

` + "```" + `yaml
version: 1
schemas:
  - id: work
    parent: root
    children: [proj]
  - id: proj
    namespace: true        # matches work.proj.<anything>
    template:
      id: templates.proj
      type: note
` + "```" + `
`
