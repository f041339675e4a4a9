package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/sessionops/sessiondock/internal/sessiondock"
)

func newTestServer(t *testing.T) (*Server, *sessiondock.MemoryStore) {
	t.Helper()
	store := sessiondock.NewMemoryStore()
	return NewServer(store, sessiondock.NewHub()), store
}

func multipartBody(t *testing.T, fieldName, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(fieldName, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func doJSON(t *testing.T, server http.Handler, method, path string, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	decoded := map[string]any{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("response not JSON object: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, decoded
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	rec, body := doJSON(t, server, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body %v", body)
	}
}

func TestUploadStoresFile(t *testing.T) {
	server, store := newTestServer(t)

	payload := []byte(`{"me":{"id":"111@s","name":"Alice"}}`)
	body, contentType := multipartBody(t, "file", "alice.json", payload)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var response map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response["url"] != "/files/alice.json" {
		t.Fatalf("unexpected url %q", response["url"])
	}

	blob, err := store.Get("alice.json")
	if err != nil {
		t.Fatalf("uploaded blob missing: %v", err)
	}
	if !bytes.Equal(blob.Bytes, payload) {
		t.Fatalf("stored bytes differ: %s", blob.Bytes)
	}
}

func TestUploadWithoutFile(t *testing.T) {
	server, _ := newTestServer(t)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("note", "no file here"); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var response map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response["code"] != "bad_request" {
		t.Fatalf("unexpected error code %q", response["code"])
	}
}

func TestUploadTooLarge(t *testing.T) {
	store := sessiondock.NewMemoryStore()
	server := NewServerWithConfig(store, sessiondock.NewHub(), ServerConfig{MaxBodyBytes: 128})

	body, contentType := multipartBody(t, "file", "big.json", bytes.Repeat([]byte("x"), 4096))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestListEndpoint(t *testing.T) {
	server, store := newTestServer(t)

	if err := store.Save("alice.json", []byte(`1700000000000{"me":{"id":"111@s","name":"Alice"}}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save("broken.json", []byte("not json")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, _ := doJSON(t, server, http.MethodGet, "/api/files", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var result sessiondock.ListingResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if result.Total != 2 || result.Valid != 1 || result.Recent != 1 {
		t.Fatalf("unexpected counters %+v", result)
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}
}

func TestGetOneRecord(t *testing.T) {
	server, store := newTestServer(t)

	if err := store.Save("alice.json", []byte(`{"me":{"id":"111@s","name":"Alice"}}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, _ := doJSON(t, server, http.MethodGet, "/api/files/alice.json", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var record sessiondock.SessionRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if !record.Valid || record.DisplayName != "Alice" || record.Number != "111" {
		t.Fatalf("unexpected record %+v", record)
	}

	rec, body := doJSON(t, server, http.MethodGet, "/api/files/missing.json", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["code"] != "not_found" {
		t.Fatalf("unexpected error code %v", body["code"])
	}
}

func TestRenameViaPut(t *testing.T) {
	server, store := newTestServer(t)

	if err := store.Save("old.json", []byte("{}")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, body := doJSON(t, server, http.MethodPut, "/api/files/old.json", `{"newName":"fresh"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %v", rec.Code, body)
	}
	if body["success"] != true {
		t.Fatalf("unexpected body %v", body)
	}
	if _, err := store.Get("fresh.json"); err != nil {
		t.Fatalf("renamed record missing: %v", err)
	}

	// The old identifier is gone.
	rec, _ = doJSON(t, server, http.MethodGet, "/api/files/old.json", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("old identifier status = %d", rec.Code)
	}
}

func TestRenameConflict(t *testing.T) {
	server, store := newTestServer(t)

	if err := store.Save("a.json", []byte("{}")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Save("b.json", []byte("{}")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, body := doJSON(t, server, http.MethodPut, "/api/files/a.json", `{"newName":"b"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, body %v", rec.Code, body)
	}
	if body["code"] != "conflict" {
		t.Fatalf("unexpected error code %v", body["code"])
	}
}

func TestUpdateViaPut(t *testing.T) {
	server, store := newTestServer(t)

	if err := store.Save("a.json", []byte(`{"old":true}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, _ := doJSON(t, server, http.MethodPut, "/api/files/a.json",
		`{"newData":{"me":{"id":"9@s","name":"Nine"}}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	blob, err := store.Get("a.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !strings.Contains(string(blob.Bytes), `"Nine"`) {
		t.Fatalf("payload not replaced: %s", blob.Bytes)
	}
}

func TestPutWithoutOperation(t *testing.T) {
	server, store := newTestServer(t)

	if err := store.Save("a.json", []byte("{}")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, body := doJSON(t, server, http.MethodPut, "/api/files/a.json", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["code"] != "bad_request" {
		t.Fatalf("unexpected error code %v", body["code"])
	}

	rec, _ = doJSON(t, server, http.MethodPut, "/api/files/a.json", `not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d", rec.Code)
	}
}

func TestDeleteRecord(t *testing.T) {
	server, store := newTestServer(t)

	if err := store.Save("a.json", []byte("{}")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, body := doJSON(t, server, http.MethodDelete, "/api/files/a.json", "")
	if rec.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("status = %d, body %v", rec.Code, body)
	}

	rec, body = doJSON(t, server, http.MethodDelete, "/api/files/a.json", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rec.Code)
	}
	if body["code"] != "not_found" {
		t.Fatalf("unexpected error code %v", body["code"])
	}
}

func TestRawFileDownload(t *testing.T) {
	server, store := newTestServer(t)

	payload := []byte(`{"me":{"id":"1@s","name":"A"}}`)
	if err := store.Save("a.json", payload); err != nil {
		t.Fatalf("Save: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/files/a.json", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("content type = %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), payload) {
		t.Fatalf("raw body differs: %s", rec.Body.Bytes())
	}

	req = httptest.NewRequest(http.MethodGet, "/files/missing.json", nil)
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing raw file status = %d", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	server, _ := newTestServer(t)
	rec, body := doJSON(t, server, http.MethodGet, "/api/unknown", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["code"] != "not_found" {
		t.Fatalf("unexpected error code %v", body["code"])
	}
}

func TestDashboardServed(t *testing.T) {
	server, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
		t.Fatalf("content type = %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "Sessiondock") {
		t.Fatal("dashboard body missing title")
	}
}

func TestRateLimiting(t *testing.T) {
	store := sessiondock.NewMemoryStore()
	server := NewServerWithConfig(store, sessiondock.NewHub(), ServerConfig{
		RateLimitMax:    2,
		RateLimitWindow: time.Minute,
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		rec := httptest.NewRecorder()
		server.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}

	// A different client is unaffected.
	req = httptest.NewRequest(http.MethodGet, "/api/files", nil)
	req.RemoteAddr = "10.0.0.10:1234"
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other client status = %d", rec.Code)
	}

	// The dashboard and raw downloads bypass the limiter.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d", rec.Code)
	}
}

func TestChangesFeed(t *testing.T) {
	store := sessiondock.NewMemoryStore()
	hub := sessiondock.NewHub()
	server := NewServer(store, hub)

	ts := httptest.NewServer(server)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/changes"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Give the handler a moment to register its subscription.
	time.Sleep(100 * time.Millisecond)

	body, contentType := multipartBody(t, "file", "live.json", []byte("{}"))
	resp, err := http.Post(ts.URL+"/api/upload", contentType, body)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}

	_, payload, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var event sessiondock.ChangeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Type != sessiondock.ChangeCreated || event.Identifier != "live.json" {
		t.Fatalf("unexpected event %+v", event)
	}
}
