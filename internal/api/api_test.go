package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/wikiport/internal/converter"
	"github.com/starford/wikiport/internal/pageservice"
	"github.com/starford/wikiport/internal/sse"
	"github.com/starford/wikiport/internal/testutil"
)

var fixturePages = map[string]string{
	"HomePage":   "+ Home\n[alias:Start]\nSee [Other Page] [tag:intro]\n",
	"Other Page": "Back to HomePage\n[status: draft]\n",
}

type env struct {
	router http.Handler
	broker *sse.Broker
}

// testEnv builds a router over a fresh vault whose batch reads sourceRoot.
// An empty token disables auth.
func testEnv(t *testing.T, token string, sourceRoot string) env {
	t.Helper()
	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	broker := sse.NewBroker(100 * time.Millisecond)
	t.Cleanup(broker.Close)

	factory := func(opts ...converter.Option) (*converter.Converter, error) {
		opts = append(opts, converter.WithLogger(testutil.Logger()))
		return converter.New(sourceRoot, store.Root(), opts...)
	}
	svc := pageservice.NewService(db, store,
		pageservice.WithConverter(factory),
		pageservice.WithPublisher(broker),
		pageservice.WithLogger(testutil.Logger()))
	return env{router: NewRouter(svc, token != "", token, broker), broker: broker}
}

func do(t *testing.T, h http.Handler, method, target string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func converted(t *testing.T) env {
	t.Helper()
	e := testEnv(t, "", testutil.WikidPadWiki(t, fixturePages))
	w := do(t, e.router, http.MethodPost, "/convert", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("convert status = %d, body = %s", w.Code, w.Body.String())
	}
	return e
}

func TestConvertEndpoint(t *testing.T) {
	e := testEnv(t, "", testutil.WikidPadWiki(t, fixturePages))

	w := do(t, e.router, http.MethodPost, "/convert", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[ConvertResponse](t, w)
	if resp.Report.Converted != 2 || resp.Index.Indexed != 2 || resp.Error != "" {
		t.Errorf("response = %+v", resp)
	}
}

func TestConvertMissingSource(t *testing.T) {
	e := testEnv(t, "", filepath.Join(t.TempDir(), "missing"))

	w := do(t, e.router, http.MethodPost, "/convert", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestListPages(t *testing.T) {
	e := converted(t)

	w := do(t, e.router, http.MethodGet, "/pages?limit=1", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[PageListResponse](t, w)
	if resp.Total != 2 || len(resp.Pages) != 1 || resp.Pages[0].Name != "HomePage" {
		t.Errorf("response = %+v", resp)
	}

	resp = decode[PageListResponse](t, do(t, e.router, http.MethodGet, "/pages?tag=intro", nil, ""))
	if resp.Total != 1 {
		t.Errorf("tag filter total = %d, want 1", resp.Total)
	}
}

func TestGetPage(t *testing.T) {
	e := converted(t)

	w := do(t, e.router, http.MethodGet, "/pages/Other%20Page", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	page := decode[PageDetail](t, w)
	if !strings.Contains(page.Content, "[status:: draft]") {
		t.Errorf("content = %q", page.Content)
	}
	if page.Views.Attributes["status"] != "draft" {
		t.Errorf("attributes = %v", page.Views.Attributes)
	}
	if len(page.Backlinks) != 1 || page.Backlinks[0] != "HomePage.md" {
		t.Errorf("backlinks = %v", page.Backlinks)
	}

	// Aliases resolve too.
	page = decode[PageDetail](t, do(t, e.router, http.MethodGet, "/pages/Start", nil, ""))
	if page.Name != "HomePage" {
		t.Errorf("alias resolved to %q", page.Name)
	}
}

func TestGetPage_NotFound(t *testing.T) {
	e := converted(t)

	w := do(t, e.router, http.MethodGet, "/pages/Nope", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing page = %d, want 404", w.Code)
	}
}

func TestRenderPage(t *testing.T) {
	e := converted(t)

	w := do(t, e.router, http.MethodGet, "/pages/HomePage/html", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), `href="/pages/Other%20Page"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestBacklinksTagsGraph(t *testing.T) {
	e := converted(t)

	bl := decode[BacklinksResponse](t, do(t, e.router, http.MethodGet, "/pages/HomePage/backlinks", nil, ""))
	if len(bl.Backlinks) != 1 || bl.Backlinks[0] != "Other Page.md" {
		t.Errorf("backlinks = %+v", bl)
	}

	tags := decode[TagsResponse](t, do(t, e.router, http.MethodGet, "/tags", nil, ""))
	if len(tags.Tags) != 1 || tags.Tags[0].Tag != "intro" || tags.Tags[0].Count != 1 {
		t.Errorf("tags = %+v", tags)
	}

	graph := decode[GraphResponse](t, do(t, e.router, http.MethodGet, "/graph", nil, ""))
	if len(graph.Nodes) != 2 || len(graph.Links) != 2 {
		t.Errorf("graph = %+v", graph)
	}
}

func TestSearchEndpoint(t *testing.T) {
	e := converted(t)

	w := do(t, e.router, http.MethodGet, "/search?q=Back", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[SearchResponse](t, w)
	if len(resp.Results) != 1 || resp.Results[0].Path != "Other Page.md" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	e := testEnv(t, "", testutil.WikidPadWiki(t, nil))

	w := do(t, e.router, http.MethodGet, "/search", nil, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestPreview(t *testing.T) {
	e := testEnv(t, "", testutil.WikidPadWiki(t, nil))

	w := do(t, e.router, http.MethodPost, "/convert/preview",
		PreviewRequest{Content: "+ Title\n[tag:a b] WikiWord", HTML: true}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	p := decode[Preview](t, w)
	if p.Content != "# Title\n#a-b [[WikiWord]]" {
		t.Errorf("content = %q", p.Content)
	}
	if !strings.Contains(p.HTML, "<h1") {
		t.Errorf("html = %q", p.HTML)
	}

	w = do(t, e.router, http.MethodPost, "/convert/preview", "{not json", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad body = %d, want 400", w.Code)
	}
}

func TestAuthMiddleware(t *testing.T) {
	e := testEnv(t, "secret123", testutil.WikidPadWiki(t, nil))

	cases := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"valid token", "/pages", "secret123", http.StatusOK},
		{"missing token", "/pages", "", http.StatusUnauthorized},
		{"wrong token", "/pages", "wrong", http.StatusUnauthorized},
		{"health is public", "/healthz", "", http.StatusOK},
		{"events protected", "/events", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		w := do(t, e.router, http.MethodGet, tc.path, nil, tc.token)
		if w.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.name, w.Code, tc.want)
		}
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	e := testEnv(t, "", testutil.WikidPadWiki(t, nil))

	w := do(t, e.router, http.MethodGet, "/pages", nil, "")
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

func TestEventsStreamConversion(t *testing.T) {
	e := testEnv(t, "tok", testutil.WikidPadWiki(t, fixturePages))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		e.router.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)

	if resp := do(t, e.router, http.MethodPost, "/convert", nil, "tok"); resp.Code != http.StatusOK {
		t.Fatalf("convert status = %d", resp.Code)
	}
	time.Sleep(100 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	for _, want := range []string{"event: batch.started", "event: page.converted", "event: batch.completed"} {
		if !strings.Contains(body, want) {
			t.Errorf("stream missing %q: %s", want, body)
		}
	}
}
