package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fnamesOf(tr *Tree, idx []Index) []string {
	out := make([]string, len(idx))
	for i, x := range idx {
		out[i] = tr.LogicalPath(x)
	}
	return out
}

func TestDescendants_PreOrder(t *testing.T) {
	tr, err := BuildNotes(sampleNotes())
	require.NoError(t, err)

	got := fnamesOf(tr, tr.Descendants(tr.Root()))
	assert.Equal(t, []string{"", "work", "work.proj", "work.meetings", "home"}, got)

	work, _ := tr.Lookup("n-work")
	assert.Equal(t, []string{"work", "work.proj", "work.meetings"}, fnamesOf(tr, tr.Descendants(work)))
}

func TestDomain(t *testing.T) {
	tr, err := BuildNotes(sampleNotes())
	require.NoError(t, err)

	proj, _ := tr.Lookup("n-proj")
	work, _ := tr.Lookup("n-work")
	assert.Equal(t, work, tr.Domain(proj))
	assert.Equal(t, work, tr.Domain(work))
	assert.Equal(t, tr.Root(), tr.Domain(tr.Root()))
}

func TestAddChild_IdempotentAndMoves(t *testing.T) {
	tr, err := BuildNotes(sampleNotes())
	require.NoError(t, err)

	work, _ := tr.Lookup("n-work")
	home, _ := tr.Lookup("n-home")
	proj, _ := tr.Lookup("n-proj")

	tr.AddChild(work, proj)
	assert.Len(t, tr.Children(work), 2, "re-adding an existing child is a no-op")

	tr.AddChild(home, proj)
	assert.Equal(t, home, tr.Parent(proj))
	assert.NotContains(t, tr.Children(work), proj)
	assert.Contains(t, tr.Children(home), proj)
}

func TestAddChild_RejectsCycleAndRootMove(t *testing.T) {
	tr, err := BuildNotes(sampleNotes())
	require.NoError(t, err)

	work, _ := tr.Lookup("n-work")
	proj, _ := tr.Lookup("n-proj")

	tr.AddChild(proj, work)
	assert.Equal(t, tr.Root(), tr.Parent(work))
	assert.NotContains(t, tr.Children(proj), work)
	assert.Equal(t, []string{"work", "work.proj", "work.meetings"}, fnamesOf(tr, tr.Descendants(work)))

	tr.AddChild(work, tr.Root())
	assert.Equal(t, None, tr.Parent(tr.Root()))
	assert.NotContains(t, tr.Children(work), tr.Root())
	assert.Len(t, tr.Descendants(tr.Root()), 5)
}

func TestEqual_TrimsBodyOnly(t *testing.T) {
	a, err := BuildNotes(sampleNotes())
	require.NoError(t, err)

	records := sampleNotes()
	records[0].Body = "\n  standup \n"
	b, err := BuildNotes(records)
	require.NoError(t, err)

	ai, _ := a.Lookup("n-meet")
	bi, _ := b.Lookup("n-meet")
	assert.True(t, Equal(a, ai, b, bi))

	b.Node(bi).Title = "Changed"
	assert.False(t, Equal(a, ai, b, bi))
}

func TestEqual_ComparesCustomFields(t *testing.T) {
	a, err := BuildNotes(sampleNotes())
	require.NoError(t, err)
	b, err := BuildNotes(sampleNotes())
	require.NoError(t, err)

	ai, _ := a.Lookup("n-proj")
	bi, _ := b.Lookup("n-proj")
	b.Node(bi).Custom["status"] = "done"
	assert.False(t, Equal(a, ai, b, bi))
}

func TestRecord_Export(t *testing.T) {
	tr, err := BuildNotes(sampleNotes())
	require.NoError(t, err)

	work, _ := tr.Lookup("n-work")
	rec := tr.Record(work)
	assert.Equal(t, RootID, rec.Parent)
	assert.Equal(t, []string{"n-proj", "n-meet"}, rec.Children)
	assert.Equal(t, "", tr.Record(tr.Root()).Parent)
}
