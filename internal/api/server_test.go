package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/filevault/filevault/internal/files"
	"github.com/filevault/filevault/internal/metadata/memory"
	"github.com/filevault/filevault/internal/queue"
	"github.com/filevault/filevault/internal/session"
	"github.com/filevault/filevault/internal/storage/local"
)

type apiTest struct {
	ts       *httptest.Server
	sessions *session.Memory
	jobs     *queue.Memory
}

func newAPITest(t *testing.T) *apiTest {
	t.Helper()
	store := memory.New()
	blobs, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local backend: %v", err)
	}
	jobs := queue.NewMemory(100)
	sessions := session.NewMemory()
	svc := files.NewService(store, blobs, jobs)
	srv := NewServer(svc, sessions, 10<<20)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &apiTest{ts: ts, sessions: sessions, jobs: jobs}
}

// login registers a token for a fresh user id and returns both.
func (a *apiTest) login(token string) string {
	userID := primitive.NewObjectID().Hex()
	a.sessions.Put(token, userID)
	return userID
}

func (a *apiTest) request(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.ts.URL+path, payload)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("X-Token", token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, raw
}

type fileJSON struct {
	ID       string `json:"id"`
	UserID   string `json:"userId"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	IsPublic bool   `json:"isPublic"`
	ParentID string `json:"parentId"`
}

func (a *apiTest) upload(t *testing.T, token string, body map[string]any) fileJSON {
	t.Helper()
	resp, raw := a.request(t, http.MethodPost, "/files", token, body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", resp.StatusCode, raw)
	}
	var rec fileJSON
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return rec
}

func assertError(t *testing.T, resp *http.Response, raw []byte, status int, message string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Errorf("status = %d, want %d (body %s)", resp.StatusCode, status, raw)
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode error body %q: %v", raw, err)
	}
	if body.Error != message {
		t.Errorf("error = %q, want %q", body.Error, message)
	}
}

func TestHealth(t *testing.T) {
	a := newAPITest(t)
	resp, _ := a.request(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
}

func TestUploadRejectsMissingToken(t *testing.T) {
	a := newAPITest(t)

	resp, raw := a.request(t, http.MethodPost, "/files", "", map[string]any{"name": "a", "type": "folder"})
	assertError(t, resp, raw, http.StatusUnauthorized, "Unauthorized")

	resp, raw = a.request(t, http.MethodPost, "/files", "stale-token", map[string]any{"name": "a", "type": "folder"})
	assertError(t, resp, raw, http.StatusUnauthorized, "Unauthorized")
}

func TestUploadValidationErrors(t *testing.T) {
	a := newAPITest(t)
	a.login("tok")

	for _, tc := range []struct {
		name    string
		body    map[string]any
		message string
	}{
		{"no name", map[string]any{"type": "folder"}, "Missing name"},
		{"no type", map[string]any{"name": "a"}, "Missing type"},
		{"bad type", map[string]any{"name": "a", "type": "symlink"}, "Missing type"},
		{"no data", map[string]any{"name": "a", "type": "file"}, "Missing data"},
		{"bad parent", map[string]any{"name": "a", "type": "folder", "parentId": primitive.NewObjectID().Hex()}, "Parent not found"},
	} {
		resp, raw := a.request(t, http.MethodPost, "/files", "tok", tc.body)
		t.Run(tc.name, func(t *testing.T) {
			assertError(t, resp, raw, http.StatusBadRequest, tc.message)
		})
	}
}

func TestUploadAndGet(t *testing.T) {
	a := newAPITest(t)
	userID := a.login("tok")

	rec := a.upload(t, "tok", map[string]any{
		"name": "notes.txt",
		"type": "file",
		"data": base64.StdEncoding.EncodeToString([]byte("hello")),
	})
	if rec.ID == "" {
		t.Fatal("upload response missing id")
	}
	if rec.UserID != userID {
		t.Errorf("userId = %q, want %q", rec.UserID, userID)
	}
	if rec.ParentID != "0" {
		t.Errorf("parentId = %q, want \"0\"", rec.ParentID)
	}

	resp, raw := a.request(t, http.MethodGet, "/files/"+rec.ID, "tok", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var got fileJSON
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode get response: %v", err)
	}
	if got.ID != rec.ID || got.Name != "notes.txt" {
		t.Errorf("get returned %+v", got)
	}
	if strings.Contains(string(raw), "localPath") {
		t.Error("response leaks storage key")
	}

	// Another user's token sees not-found, and so do unknown ids.
	a.login("other")
	resp, raw = a.request(t, http.MethodGet, "/files/"+rec.ID, "other", nil)
	assertError(t, resp, raw, http.StatusNotFound, "Not found")

	resp, raw = a.request(t, http.MethodGet, "/files/"+primitive.NewObjectID().Hex(), "tok", nil)
	assertError(t, resp, raw, http.StatusNotFound, "Not found")
}

func TestUploadAcceptsNumericParent(t *testing.T) {
	a := newAPITest(t)
	a.login("tok")

	// Clients of the original API send parentId: 0 as a JSON number.
	req, err := http.NewRequest(http.MethodPost, a.ts.URL+"/files",
		strings.NewReader(`{"name":"dir","type":"folder","parentId":0}`))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Token", "tok")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var rec fileJSON
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatal(err)
	}
	if rec.ParentID != "0" {
		t.Errorf("parentId = %q, want \"0\"", rec.ParentID)
	}
}

func TestUploadRejectsMalformedBody(t *testing.T) {
	a := newAPITest(t)
	a.login("tok")

	req, err := http.NewRequest(http.MethodPost, a.ts.URL+"/files", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Token", "tok")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListPaging(t *testing.T) {
	a := newAPITest(t)
	a.login("tok")

	for i := 0; i < 25; i++ {
		a.upload(t, "tok", map[string]any{"name": fmt.Sprintf("d%02d", i), "type": "folder"})
	}

	list := func(path string) []fileJSON {
		resp, raw := a.request(t, http.MethodGet, path, "tok", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("list %s status = %d", path, resp.StatusCode)
		}
		var records []fileJSON
		if err := json.Unmarshal(raw, &records); err != nil {
			t.Fatalf("decode list: %v", err)
		}
		return records
	}

	if got := list("/files"); len(got) != 20 {
		t.Errorf("default page: %d records, want 20", len(got))
	}
	if got := list("/files?page=1"); len(got) != 5 {
		t.Errorf("page 1: %d records, want 5", len(got))
	}
	// Past the end is an empty list, not an error.
	if got := list("/files?page=9"); len(got) != 0 {
		t.Errorf("page 9: %d records, want 0", len(got))
	}
	// Garbage page values fall back to the first page.
	if got := list("/files?page=banana"); len(got) != 20 {
		t.Errorf("bad page: %d records, want 20", len(got))
	}

	resp, raw := a.request(t, http.MethodGet, "/files", "", nil)
	assertError(t, resp, raw, http.StatusUnauthorized, "Unauthorized")
}

func TestPublishEndpoints(t *testing.T) {
	a := newAPITest(t)
	a.login("tok")

	rec := a.upload(t, "tok", map[string]any{"name": "pic.png", "type": "folder"})

	resp, raw := a.request(t, http.MethodPut, "/files/"+rec.ID+"/publish", "tok", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("publish status = %d", resp.StatusCode)
	}
	var got fileJSON
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if !got.IsPublic {
		t.Error("record not public after publish")
	}

	resp, raw = a.request(t, http.MethodPut, "/files/"+rec.ID+"/unpublish", "tok", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unpublish status = %d", resp.StatusCode)
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.IsPublic {
		t.Error("record still public after unpublish")
	}

	a.login("other")
	resp, raw = a.request(t, http.MethodPut, "/files/"+rec.ID+"/publish", "other", nil)
	assertError(t, resp, raw, http.StatusNotFound, "Not found")

	resp, raw = a.request(t, http.MethodPut, "/files/"+rec.ID+"/publish", "", nil)
	assertError(t, resp, raw, http.StatusUnauthorized, "Unauthorized")
}

func TestDownload(t *testing.T) {
	a := newAPITest(t)
	a.login("tok")

	rec := a.upload(t, "tok", map[string]any{
		"name": "report.txt",
		"type": "file",
		"data": base64.StdEncoding.EncodeToString([]byte("quarterly numbers")),
	})

	// Private file, owner token.
	resp, raw := a.request(t, http.MethodGet, "/files/"+rec.ID+"/data", "tok", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner download status = %d", resp.StatusCode)
	}
	if string(raw) != "quarterly numbers" {
		t.Errorf("body = %q", raw)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}

	// Private file, no token or wrong token: same 404 as a missing file.
	resp, raw = a.request(t, http.MethodGet, "/files/"+rec.ID+"/data", "", nil)
	assertError(t, resp, raw, http.StatusNotFound, "Not found")
	a.login("other")
	resp, raw = a.request(t, http.MethodGet, "/files/"+rec.ID+"/data", "other", nil)
	assertError(t, resp, raw, http.StatusNotFound, "Not found")

	// Published files are readable without a token.
	if resp, _ := a.request(t, http.MethodPut, "/files/"+rec.ID+"/publish", "tok", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("publish status = %d", resp.StatusCode)
	}
	resp, raw = a.request(t, http.MethodGet, "/files/"+rec.ID+"/data", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public download status = %d", resp.StatusCode)
	}
	if string(raw) != "quarterly numbers" {
		t.Errorf("public body = %q", raw)
	}
}

func TestDownloadFolder(t *testing.T) {
	a := newAPITest(t)
	a.login("tok")

	rec := a.upload(t, "tok", map[string]any{"name": "dir", "type": "folder"})
	resp, raw := a.request(t, http.MethodGet, "/files/"+rec.ID+"/data", "tok", nil)
	assertError(t, resp, raw, http.StatusBadRequest, "A folder doesn't have content")
}

func TestImageUploadQueuesThumbnailJob(t *testing.T) {
	a := newAPITest(t)
	a.login("tok")

	rec := a.upload(t, "tok", map[string]any{
		"name": "cat.png",
		"type": "image",
		"data": base64.StdEncoding.EncodeToString([]byte("not-a-real-png")),
	})
	if a.jobs.Len() != 1 {
		t.Fatalf("queued %d jobs, want 1", a.jobs.Len())
	}
	job, err := a.jobs.Dequeue(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if job.FileID != rec.ID {
		t.Errorf("job fileId = %q, want %q", job.FileID, rec.ID)
	}
}
