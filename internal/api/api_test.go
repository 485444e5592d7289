package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/pinpress/internal/publish"
	"github.com/starford/pinpress/internal/records"
	"github.com/starford/pinpress/internal/render"
	"github.com/starford/pinpress/internal/settings"
	"github.com/starford/pinpress/internal/sse"
	"github.com/starford/pinpress/internal/storage"
	"github.com/starford/pinpress/internal/testutil"
)

type env struct {
	router http.Handler
	node   *testutil.FakeNode
	kv     *storage.Memory
	broker *sse.Broker
}

// testEnv wires the router to a fake node, an in-memory KV and a real broker.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) *env {
	t.Helper()
	node := testutil.NewFakeNode(t)
	kv := storage.NewMemory()
	broker := sse.NewBroker(time.Second)
	t.Cleanup(broker.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := publish.NewService(render.New(), node.Client(), records.NewStore(kv), broker, logger)
	router := NewRouter(svc, settings.NewKV(kv), broker, authToken != "", authToken, []string{"chrome-extension://abc"})
	return &env{router: router, node: node, kv: kv, broker: broker}
}

func (e *env) do(method, target string, body any, header map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeRecord(t *testing.T, w *httptest.ResponseRecorder) RecordResponse {
	t.Helper()
	var rec RecordResponse
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode record: %v, body = %s", err, w.Body.String())
	}
	return rec
}

func TestPublishAndGetRecord(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(http.MethodPost, "/records", PublishRequest{Title: "Hello", Markdown: "**a**"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("publish status = %d, body = %s", w.Code, w.Body.String())
	}
	created := decodeRecord(t, w)
	if created.ID == "" || created.CID == "" {
		t.Fatalf("missing id/cid: %+v", created)
	}
	if created.URL != testutil.Gateway+created.CID {
		t.Errorf("url = %q", created.URL)
	}
	if created.CreatedAt != created.UpdatedAt {
		t.Errorf("createdAt %d != updatedAt %d", created.CreatedAt, created.UpdatedAt)
	}
	if got := w.Header().Get("ETag"); got != `"`+created.ETag+`"` {
		t.Errorf("ETag header = %q, want %q", got, created.ETag)
	}

	w = e.do(http.MethodGet, "/records/"+created.ID, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	got := decodeRecord(t, w)
	if got.Title != "Hello" || got.Content != "**a**" || got.CID != created.CID {
		t.Errorf("get = %+v", got)
	}
}

func TestPublish_UploadFailureIs502(t *testing.T) {
	e := testEnv(t, "")
	e.node.FailWith(http.StatusInternalServerError)

	w := e.do(http.MethodPost, "/records", PublishRequest{Title: "T", Markdown: "x"}, nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}

	w = e.do(http.MethodGet, "/records", nil, nil)
	var list RecordListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 0 {
		t.Errorf("history has %d records after failed upload", list.Total)
	}
}

func TestPublish_BadInput(t *testing.T) {
	e := testEnv(t, "")

	req := httptest.NewRequest(http.MethodPost, "/records", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON = %d, want 400", w.Code)
	}

	w = e.do(http.MethodPost, "/records", PublishRequest{Title: "T"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty markdown = %d, want 400", w.Code)
	}
}

func TestRepublishWithOptimisticLocking(t *testing.T) {
	e := testEnv(t, "")

	created := decodeRecord(t, e.do(http.MethodPost, "/records", PublishRequest{Title: "T", Markdown: "v1"}, nil))

	v2 := "v2"
	w := e.do(http.MethodPut, "/records/"+created.ID, RepublishRequest{Markdown: &v2},
		map[string]string{"If-Match": `"` + created.ETag + `"`})
	if w.Code != http.StatusOK {
		t.Fatalf("republish with current etag = %d, body = %s", w.Code, w.Body.String())
	}
	updated := decodeRecord(t, w)
	if updated.CID == created.CID || updated.Content != "v2" || updated.Title != "T" {
		t.Errorf("republish = %+v", updated)
	}
	if updated.CreatedAt != created.CreatedAt || updated.UpdatedAt <= created.UpdatedAt {
		t.Errorf("timestamps: created %d/%d updated %d/%d",
			created.CreatedAt, created.UpdatedAt, updated.CreatedAt, updated.UpdatedAt)
	}

	// Stale etag → 409, nothing uploaded.
	before := len(e.node.Uploads())
	w = e.do(http.MethodPut, "/records/"+created.ID, RepublishRequest{Markdown: &v2},
		map[string]string{"If-Match": created.ETag})
	if w.Code != http.StatusConflict {
		t.Errorf("stale etag = %d, want 409", w.Code)
	}
	if len(e.node.Uploads()) != before {
		t.Error("stale republish uploaded content")
	}
}

func TestRepublishWithoutIfMatch(t *testing.T) {
	e := testEnv(t, "")
	created := decodeRecord(t, e.do(http.MethodPost, "/records", PublishRequest{Title: "T", Markdown: "v1"}, nil))

	title := "Renamed"
	w := e.do(http.MethodPut, "/records/"+created.ID, RepublishRequest{Title: &title}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("republish without If-Match = %d", w.Code)
	}
	if got := decodeRecord(t, w); got.Title != "Renamed" || got.Content != "v1" {
		t.Errorf("republish = %+v", got)
	}
}

func TestRepublish_NotFound(t *testing.T) {
	e := testEnv(t, "")
	w := e.do(http.MethodPut, "/records/ghost", RepublishRequest{}, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("republish missing = %d, want 404", w.Code)
	}
}

func TestDeleteAndClearRecords(t *testing.T) {
	e := testEnv(t, "")
	a := decodeRecord(t, e.do(http.MethodPost, "/records", PublishRequest{Title: "a", Markdown: "a"}, nil))
	e.do(http.MethodPost, "/records", PublishRequest{Title: "b", Markdown: "b"}, nil)

	if w := e.do(http.MethodDelete, "/records/"+a.ID, nil, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	if w := e.do(http.MethodDelete, "/records/"+a.ID, nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
	if w := e.do(http.MethodGet, "/records/"+a.ID, nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("get deleted = %d, want 404", w.Code)
	}

	if w := e.do(http.MethodDelete, "/records", nil, nil); w.Code != http.StatusNoContent {
		t.Fatalf("clear = %d", w.Code)
	}
	w := e.do(http.MethodGet, "/records", nil, nil)
	var list RecordListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 0 || list.Records == nil {
		t.Errorf("after clear = %+v", list)
	}
}

func TestListRecords_NewestFirst(t *testing.T) {
	e := testEnv(t, "")
	e.do(http.MethodPost, "/records", PublishRequest{Title: "first", Markdown: "1"}, nil)
	e.do(http.MethodPost, "/records", PublishRequest{Title: "second", Markdown: "2"}, nil)

	w := e.do(http.MethodGet, "/records", nil, nil)
	var list RecordListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 2 || list.Records[0].Title != "second" || list.Records[1].Title != "first" {
		t.Errorf("list = %+v", list)
	}
}

func TestPreviewAndRecordHTML(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(http.MethodPost, "/preview", PreviewRequest{Title: "<T>", Markdown: "*x*"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("preview = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "<title>&lt;T&gt;</title>") || !strings.Contains(w.Body.String(), "<em>x</em>") {
		t.Errorf("preview body = %s", w.Body.String())
	}
	if len(e.node.Uploads()) != 0 {
		t.Error("preview uploaded content")
	}

	rec := decodeRecord(t, e.do(http.MethodPost, "/records", PublishRequest{Title: "Saved", Markdown: "body"}, nil))
	w = e.do(http.MethodGet, "/records/"+rec.ID+"/html", nil, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<p>body</p>") {
		t.Errorf("record html = %d %s", w.Code, w.Body.String())
	}
	if w := e.do(http.MethodGet, "/records/ghost/html", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("missing html = %d, want 404", w.Code)
	}
}

func TestNode(t *testing.T) {
	e := testEnv(t, "")

	w := e.do(http.MethodGet, "/node", nil, nil)
	var st NodeStatus
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatal(err)
	}
	if !st.Online || st.APIEndpoint != e.node.APIEndpoint() {
		t.Errorf("node = %+v", st)
	}

	e.node.SetOffline(true)
	w = e.do(http.MethodGet, "/node", nil, nil)
	_ = json.Unmarshal(w.Body.Bytes(), &st)
	if st.Online {
		t.Error("offline node reported online")
	}
}

func TestSettings(t *testing.T) {
	e := testEnv(t, "")
	ch := e.broker.Subscribe()
	defer e.broker.Unsubscribe(ch)

	w := e.do(http.MethodGet, "/settings", nil, nil)
	var resp SettingsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Writable || resp.Stored.Gateway != "" || resp.Effective.Gateway != testutil.Gateway {
		t.Errorf("initial settings = %+v", resp)
	}

	w = e.do(http.MethodPut, "/settings", SettingsDTO{APIEndpoint: "ftp://nope"}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad url = %d, want 400", w.Code)
	}

	w = e.do(http.MethodPut, "/settings", SettingsDTO{Gateway: "https://dweb.link/ipfs/"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("save = %d, body = %s", w.Code, w.Body.String())
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Stored.Gateway != "https://dweb.link/ipfs/" {
		t.Errorf("stored = %+v", resp.Stored)
	}

	select {
	case msg := <-ch:
		if !strings.Contains(string(msg), "event: settings.updated") {
			t.Errorf("event = %q", msg)
		}
	case <-time.After(time.Second):
		t.Error("no settings.updated event")
	}
}

func TestSettings_ReadOnlyWithoutKV(t *testing.T) {
	node := testutil.NewFakeNode(t)
	svc := publish.NewService(render.New(), node.Client(), records.NewStore(storage.NewMemory()), nil, nil)
	router := NewRouter(svc, nil, nil, false, "", nil)

	body, _ := json.Marshal(SettingsDTO{Gateway: "https://dweb.link/ipfs/"})
	req := httptest.NewRequest(http.MethodPut, "/settings", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("put without kv = %d, want 405", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/events", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusOK {
		t.Error("/events mounted without a broker")
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	e := testEnv(t, "secret123")
	w := e.do(http.MethodPost, "/records", PublishRequest{Title: "T", Markdown: "x"},
		map[string]string{"Authorization": "Bearer secret123"})
	if w.Code != http.StatusCreated {
		t.Errorf("authed publish = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	e := testEnv(t, "secret123")
	if w := e.do(http.MethodGet, "/records", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	e := testEnv(t, "secret123")
	w := e.do(http.MethodGet, "/records", nil, map[string]string{"Authorization": "Bearer wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	e := testEnv(t, "")
	if w := e.do(http.MethodGet, "/records", nil, nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	e := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodOptions, "/records", nil)
	req.Header.Set("Origin", "chrome-extension://abc")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	if w.Code == http.StatusUnauthorized {
		t.Fatal("preflight must not require auth")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "chrome-extension://abc" {
		t.Errorf("allow origin = %q", got)
	}
}

// SSE endpoint auth tests.

func TestSSEEvents_AuthProtected(t *testing.T) {
	e := testEnv(t, "secret")
	if w := e.do(http.MethodGet, "/events", nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	e := testEnv(t, "tok")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
}
