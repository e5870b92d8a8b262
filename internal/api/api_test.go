package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/arbor/internal/testutil"
	"github.com/starford/arbor/internal/vault"
)

var fixture = map[string]string{
	"work.schema.yml":    "version: 1\nschemas:\n  - id: work\n    parent: root\n    children: [proj]\n  - id: proj\n    namespace: true\n",
	"work.md":            "---\nid: w\n---\nWork stuff\n",
	"work.proj.alpha.md": "---\nid: alpha\ntitle: Alpha\n---\nfirst project\n",
	"home.md":            "# Home\n",
}

// testEnv sets up a temp vault, SQLite cache, service, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*vault.Service, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, authToken string, sseHandler http.Handler) (*vault.Service, http.Handler) {
	t.Helper()

	_, store := testutil.TestVault(t, fixture)
	svc := vault.New(store, vault.WithCache(testutil.TestDB(t)))
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return svc, NewRouter(svc, authEnabled, authToken, sseHandler)
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateAndGetNote(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/notes", CreateNoteRequest{Fname: "work.proj.beta.tasks", Body: "# Tasks\n"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var created NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	if created.Title != "Tasks" {
		t.Errorf("title = %q, want Tasks", created.Title)
	}
	if created.Parent == nil || created.Parent.Fname != "work.proj.beta" || !created.Parent.Stub {
		t.Errorf("parent = %+v, want stub work.proj.beta", created.Parent)
	}

	w = do(t, router, http.MethodGet, "/notes/work.proj.beta.tasks", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var note NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &note)
	if note.ID != created.ID {
		t.Errorf("id = %q, want %q", note.ID, created.ID)
	}

	w = do(t, router, http.MethodGet, "/notes/?id="+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get by id status = %d", w.Code)
	}
}

func TestGetRoot(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/notes/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("root status = %d", w.Code)
	}
	var root NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &root)
	if len(root.Children) != 2 {
		t.Errorf("root children = %d, want 2", len(root.Children))
	}
}

func TestCreateDuplicate(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/notes", CreateNoteRequest{Fname: "home"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}
}

func TestCreateInvalid(t *testing.T) {
	_, router := testEnv(t, "")

	for _, fname := range []string{"", "a/b", "root"} {
		w := do(t, router, http.MethodPost, "/notes", CreateNoteRequest{Fname: fname})
		if w.Code != http.StatusBadRequest {
			t.Errorf("create %q = %d, want 400", fname, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/notes", bytes.NewReader([]byte("{")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad json = %d, want 400", w.Code)
	}
}

func TestDeleteNote(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodDelete, "/notes/work", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d, body = %s", w.Code, w.Body.String())
	}

	w = do(t, router, http.MethodGet, "/notes/work", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get after delete = %d", w.Code)
	}
	var stub NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &stub)
	if !stub.Stub {
		t.Error("deleted note with children should remain as a stub")
	}

	if w := do(t, router, http.MethodDelete, "/notes/ghost", nil); w.Code != http.StatusNotFound {
		t.Errorf("delete missing = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/notes/", nil); w.Code != http.StatusBadRequest {
		t.Errorf("delete root = %d, want 400", w.Code)
	}
}

func TestChildren(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/children/work", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("children = %d", w.Code)
	}
	var resp ChildrenResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Children) != 1 || resp.Children[0].Fname != "work.proj" {
		t.Errorf("children = %+v, want [work.proj]", resp.Children)
	}
}

func TestTree(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/tree?fname=work", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tree = %d", w.Code)
	}
	var out TreeResponse
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.Fname != "work" || len(out.Children) != 1 || len(out.Children[0].Children) != 1 {
		t.Errorf("unexpected outline: %s", w.Body.String())
	}

	if w := do(t, router, http.MethodGet, "/tree?fname=nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing subtree = %d, want 404", w.Code)
	}
}

func TestMatchSchema(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/schemas/match?fname=work.proj.gamma", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("match = %d", w.Code)
	}
	var sch SchemaResponse
	_ = json.Unmarshal(w.Body.Bytes(), &sch)
	if sch.Module != "work" || sch.ID != "proj" {
		t.Errorf("schema = %+v, want work/proj", sch)
	}

	w = do(t, router, http.MethodGet, "/schemas/match?fname=garden", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &sch)
	if !sch.Unknown {
		t.Errorf("garden should resolve to the unknown schema, got %+v", sch)
	}

	if w := do(t, router, http.MethodGet, "/schemas/match", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing fname = %d, want 400", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/search?q=project", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].ID != "alpha" {
		t.Errorf("results = %+v, want [alpha]", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	_, router := testEnv(t, "")

	if w := do(t, router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing q = %d, want 400", w.Code)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	_, router := testEnv(t, "")

	if w := do(t, router, http.MethodGet, "/notes/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing note = %d, want 404", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/tree", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed tree = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	if w := do(t, router, http.MethodGet, "/tree", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/tree", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "secret", blockingSSE)

	if w := do(t, router, http.MethodGet, "/events", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
