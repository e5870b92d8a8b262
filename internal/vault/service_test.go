package vault

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/schema"
	"github.com/starford/arbor/internal/sse"
	"github.com/starford/arbor/internal/storage"
	"github.com/starford/arbor/internal/testutil"
)

const workSchema = `version: 1
schemas:
  - id: work
    parent: root
    children: [proj]
  - id: proj
    namespace: true
    template:
      id: templates.proj
      type: note
`

var fixture = map[string]string{
	"work.schema.yml":    workSchema,
	"work.md":            "---\nid: w\n---\nWork stuff\n",
	"work.proj.alpha.md": "---\nid: alpha\n---\nAlpha\n",
	"home.md":            "# Home\n",
	"templates.proj.md":  "---\nid: tpl\n---\n## Goals\n",
}

func testVault(t *testing.T, opts ...Option) (*Service, string) {
	t.Helper()
	dir, store := testutil.TestVault(t, fixture)
	svc := New(store, opts...)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return svc, dir
}

func TestLoad_FillsGapsWithStubs(t *testing.T) {
	svc, _ := testVault(t)
	ctx := context.Background()

	alpha, err := svc.GetNote(ctx, "work.proj.alpha")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if alpha.Parent == nil || alpha.Parent.Fname != "work.proj" || !alpha.Parent.Stub {
		t.Fatalf("parent = %+v, want stub work.proj", alpha.Parent)
	}
	if alpha.Schema.Module != "work" || alpha.Schema.ID != "proj" {
		t.Errorf("schema = %+v, want work/proj", alpha.Schema)
	}

	stub, err := svc.GetNote(ctx, "work.proj")
	if err != nil {
		t.Fatalf("GetNote stub: %v", err)
	}
	if stub.Parent == nil || stub.Parent.ID != "w" {
		t.Errorf("stub parent = %+v", stub.Parent)
	}
	if stub.Schema.ID != "proj" {
		t.Errorf("stub schema = %+v", stub.Schema)
	}

	home, _ := svc.GetNote(ctx, "home")
	if !home.Schema.Unknown || home.Schema.ID != schema.UnknownSchemaID {
		t.Errorf("home schema = %+v, want unknown", home.Schema)
	}
	if home.Title != "Home" {
		t.Errorf("home title = %q", home.Title)
	}

	root, _ := svc.GetNote(ctx, "")
	if len(root.Children) != 3 {
		t.Errorf("root children = %+v", root.Children)
	}

	st := svc.Stats()
	if st.Notes != 5 || st.Stubs != 2 || st.Schemas != 2 {
		t.Errorf("stats = %+v", st)
	}
}

func TestLoad_StableIDForNotesWithoutOne(t *testing.T) {
	svc, _ := testVault(t)
	ctx := context.Background()
	first, _ := svc.GetNote(ctx, "home")
	if err := svc.Load(ctx); err != nil {
		t.Fatal(err)
	}
	second, _ := svc.GetNote(ctx, "home")
	if first.ID == "" || first.ID != second.ID || first.ID != FnameID("home") {
		t.Errorf("ids = %q, %q", first.ID, second.ID)
	}
}

func TestLoad_FailureKeepsPreviousTree(t *testing.T) {
	svc, dir := testVault(t)
	testutil.WriteFiles(t, dir, map[string]string{
		"broken.schema.yml": "schemas:\n  - id: broken\n    parent: root\n    children: [ghost]\n",
	})
	if err := svc.Load(context.Background()); err == nil {
		t.Fatal("expected load error for unresolved schema child")
	}
	if _, err := svc.GetNote(context.Background(), "work"); err != nil {
		t.Errorf("previous tree lost: %v", err)
	}
}

func TestCreateNote_AppliesTemplate(t *testing.T) {
	svc, dir := testVault(t)
	ctx := context.Background()

	v, err := svc.CreateNote(ctx, "work.proj.beta", "")
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if v.Body != "## Goals\n" {
		t.Errorf("body = %q, want template body", v.Body)
	}
	if v.Parent == nil || v.Parent.Fname != "work.proj" {
		t.Errorf("parent = %+v", v.Parent)
	}
	if v.Schema.ID != "proj" {
		t.Errorf("schema = %+v", v.Schema)
	}
	data, err := os.ReadFile(filepath.Join(dir, "work.proj.beta.md"))
	if err != nil {
		t.Fatalf("note file not written: %v", err)
	}
	if !strings.Contains(string(data), "## Goals") || !strings.Contains(string(data), v.ID) {
		t.Errorf("file content = %q", data)
	}
}

func TestCreateNote_TemplatesDisabled(t *testing.T) {
	svc, _ := testVault(t, WithTemplates(false))
	v, err := svc.CreateNote(context.Background(), "work.proj.gamma", "")
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if v.Body != "" {
		t.Errorf("body = %q, want empty", v.Body)
	}
}

func TestCreateNote_SynthesizesStubs(t *testing.T) {
	svc, _ := testVault(t)
	ctx := context.Background()
	before := svc.Stats()

	v, err := svc.CreateNote(ctx, "home.garden.beds.north", "soil")
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if v.Parent == nil || v.Parent.Fname != "home.garden.beds" || !v.Parent.Stub {
		t.Errorf("parent = %+v", v.Parent)
	}
	garden, err := svc.GetNote(ctx, "home.garden")
	if err != nil || !garden.Stub || garden.Parent.Fname != "home" {
		t.Errorf("garden = %+v, %v", garden, err)
	}
	after := svc.Stats()
	if after.Stubs != before.Stubs+2 || after.Notes != before.Notes+1 {
		t.Errorf("stats %+v -> %+v", before, after)
	}
}

func TestCreateNote_PromotesStub(t *testing.T) {
	svc, _ := testVault(t)
	ctx := context.Background()

	v, err := svc.CreateNote(ctx, "work.proj", "Projects")
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if v.Stub {
		t.Error("promoted note still marked stub")
	}
	if len(v.Children) != 1 || v.Children[0].ID != "alpha" {
		t.Errorf("children = %+v", v.Children)
	}
	alpha, _ := svc.GetNote(ctx, "work.proj.alpha")
	if alpha.Parent.ID != v.ID {
		t.Errorf("alpha parent = %+v, want %s", alpha.Parent, v.ID)
	}
}

func TestCreateNote_Errors(t *testing.T) {
	svc, _ := testVault(t)
	ctx := context.Background()

	if _, err := svc.CreateNote(ctx, "work", "again"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate: err = %v", err)
	}
	for _, bad := range []string{"", "root", "a/b", "  "} {
		if _, err := svc.CreateNote(ctx, bad, "x"); !errors.Is(err, apperr.ErrInvalid) {
			t.Errorf("fname %q: err = %v", bad, err)
		}
	}
}

func TestCreateNote_EmptySegments(t *testing.T) {
	svc, dir := testVault(t)
	ctx := context.Background()

	for _, bad := range []string{"work.", ".work", "work..x", "."} {
		if _, err := svc.CreateNote(ctx, bad, "x"); !errors.Is(err, apperr.ErrInvalid) {
			t.Errorf("fname %q: err = %v", bad, err)
		}
		if _, err := os.Stat(filepath.Join(dir, bad+".md")); !os.IsNotExist(err) {
			t.Errorf("fname %q: file written: %v", bad, err)
		}
	}
	// The vault must stay usable afterwards.
	if _, err := svc.GetNote(ctx, "work"); err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if _, err := svc.CreateNote(ctx, "work.next", ""); err != nil {
		t.Errorf("CreateNote after rejects: %v", err)
	}
}

func TestLoad_SkipsInvalidNoteNames(t *testing.T) {
	svc, dir := testVault(t)
	testutil.WriteFiles(t, dir, map[string]string{"work..x.md": "stray\n"})
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := svc.GetNote(context.Background(), "work..x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("invalid note loaded: err = %v", err)
	}
	if st := svc.Stats(); st.Notes != 5 {
		t.Errorf("stats = %+v", st)
	}
}

type event struct{ kind, id, fname string }

type recorder struct{ events []event }

func (r *recorder) PublishNoteEvent(kind, id, fname string) {
	r.events = append(r.events, event{kind, id, fname})
}

func (r *recorder) PublishRebuilt(sse.TreeStats) {}

func TestLoad_PublishesNoteChanges(t *testing.T) {
	rec := &recorder{}
	svc, dir := testVault(t, WithPublisher(rec))
	if len(rec.events) != 0 {
		t.Fatalf("first load published %+v", rec.events)
	}

	testutil.WriteFiles(t, dir, map[string]string{
		"work.md":  "---\nid: w\n---\nChanged\n",
		"fresh.md": "# Fresh\n",
	})
	if err := os.Remove(filepath.Join(dir, "home.md")); err != nil {
		t.Fatal(err)
	}
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []event{
		{sse.NoteCreated, FnameID("fresh"), "fresh"},
		{sse.NoteDeleted, FnameID("home"), "home"},
		{sse.NoteUpdated, "w", "work"},
	}
	if len(rec.events) != len(want) {
		t.Fatalf("events = %+v, want %+v", rec.events, want)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, rec.events[i], want[i])
		}
	}

	rec.events = nil
	if err := svc.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(rec.events) != 0 {
		t.Errorf("unchanged reload published %+v", rec.events)
	}
}

func TestDeleteNote_PublishesOnce(t *testing.T) {
	rec := &recorder{}
	svc, _ := testVault(t, WithPublisher(rec))
	if err := svc.DeleteNote(context.Background(), "home"); err != nil {
		t.Fatal(err)
	}
	if len(rec.events) != 1 || rec.events[0] != (event{sse.NoteDeleted, FnameID("home"), "home"}) {
		t.Errorf("events = %+v", rec.events)
	}
}

func TestDeleteNote_LeavesStubForChildren(t *testing.T) {
	svc, dir := testVault(t)
	ctx := context.Background()

	if err := svc.DeleteNote(ctx, "work"); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "work.md")); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}
	work, err := svc.GetNote(ctx, "work")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if !work.Stub || len(work.Children) != 1 || work.Children[0].Fname != "work.proj" {
		t.Errorf("work = %+v", work)
	}

	if err := svc.DeleteNote(ctx, "work"); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("deleting a stub: err = %v", err)
	}
	if err := svc.DeleteNote(ctx, "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("deleting a missing note: err = %v", err)
	}
}

func TestMatchSchema(t *testing.T) {
	svc, _ := testVault(t)
	ctx := context.Background()

	v, err := svc.MatchSchema(ctx, "work.proj.anything")
	if err != nil || v.ID != "proj" || !v.Namespace {
		t.Errorf("match = %+v, %v", v, err)
	}
	v, _ = svc.MatchSchema(ctx, "work.proj")
	if v.ID != "proj" {
		t.Errorf("namespace self match = %+v", v)
	}
	v, _ = svc.MatchSchema(ctx, "elsewhere")
	if !v.Unknown {
		t.Errorf("unmatched = %+v", v)
	}
	if _, err := svc.MatchSchema(ctx, " "); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("empty fname: err = %v", err)
	}
}

func TestMatchSchema_NamespaceOff(t *testing.T) {
	svc, _ := testVault(t, WithMatchOptions(schema.WithMatchNamespace(false)))
	v, _ := svc.MatchSchema(context.Background(), "work.proj")
	if !v.Unknown {
		t.Errorf("match = %+v, want unknown", v)
	}
}

func TestRestore_FromCache(t *testing.T) {
	db := testutil.TestDB(t)
	svc, _ := testVault(t, WithCache(db))
	ctx := context.Background()
	orig, _ := svc.GetNote(ctx, "work.proj.alpha")

	emptyStore, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	restored := New(emptyStore, WithCache(db))
	if err := restored.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	got, err := restored.GetNote(ctx, "work.proj.alpha")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if got.Parent.ID != orig.Parent.ID || got.Schema.ID != "proj" || got.Body != orig.Body {
		t.Errorf("restored = %+v, want %+v", got, orig)
	}
	if restored.Stats() != svc.Stats() {
		t.Errorf("stats %+v != %+v", restored.Stats(), svc.Stats())
	}
}

func TestRestore_EmptyCache(t *testing.T) {
	store, _ := storage.NewFS(t.TempDir())
	if err := New(store).Restore(context.Background()); !errors.Is(err, ErrEmptyCache) {
		t.Errorf("err = %v", err)
	}
	if err := New(store, WithCache(testutil.TestDB(t))).Restore(context.Background()); !errors.Is(err, ErrEmptyCache) {
		t.Errorf("err = %v", err)
	}
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	for name, opts := range map[string][]Option{
		"memory": nil,
		"cache":  {WithCache(testutil.TestDB(t))},
	} {
		svc, _ := testVault(t, opts...)
		hits, err := svc.Search(ctx, "alpha", 10)
		if err != nil {
			t.Fatalf("%s: Search: %v", name, err)
		}
		if len(hits) != 1 || hits[0].ID != "alpha" {
			t.Errorf("%s: hits = %+v", name, hits)
		}
		if _, err := svc.Search(ctx, "", 10); !errors.Is(err, apperr.ErrInvalid) {
			t.Errorf("%s: empty query err = %v", name, err)
		}
	}
}

func TestWriteOutline(t *testing.T) {
	svc, _ := testVault(t)
	var b strings.Builder
	if err := svc.WriteOutline(&b, ""); err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		"root",
		"  home",
		"  work",
		"    work.proj (stub)",
		"      work.proj.alpha",
		"  templates (stub)",
		"    templates.proj",
	}, "\n") + "\n"
	if b.String() != want {
		t.Errorf("outline =\n%s\nwant\n%s", b.String(), want)
	}

	o, err := svc.Outline("work")
	if err != nil {
		t.Fatal(err)
	}
	if len(o.Children) != 1 || len(o.Children[0].Children) != 1 || o.Children[0].Children[0].Fname != "work.proj.alpha" {
		t.Errorf("outline = %+v", o)
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	svc, dir := testVault(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = svc.Watch(ctx, dir, 50*time.Millisecond)
		close(done)
	}()
	time.Sleep(100 * time.Millisecond)

	testutil.WriteFiles(t, dir, map[string]string{"fresh.md": "# Fresh\n"})

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := svc.GetNote(context.Background(), "fresh"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("watcher did not pick up new note")
		}
		time.Sleep(50 * time.Millisecond)
	}
	cancel()
	<-done
}
