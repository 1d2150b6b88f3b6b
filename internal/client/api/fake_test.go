package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/perchworks/perch/internal/cryptox"
	"github.com/perchworks/perch/internal/logging"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "bot@example.net"
	testPassword = "hunter2 but longer"
	testCookie   = "tasty-cookie"
	testProject  = "strudel"
)

// fakeServer implements enough of the perch API to exercise the client:
// salt/login/logout, post CRUD, the attachment protocol, and the status
// endpoint. Counters and per-attachment phase logs let tests assert call
// ordering and idempotency.
type fakeServer struct {
	t      *testing.T
	server *httptest.Server

	mu           sync.Mutex
	salt         string
	expectedHash string

	nextPostID uint64

	startCount  int
	uploadCount int
	finishCount int
	statusCount int

	// uploadFailuresLeft makes that many upload attempts answer 500.
	uploadFailuresLeft int
	// statusPendingLeft makes that many status probes answer "pending".
	statusPendingLeft int
	// statusFinal is what the status endpoint reports once
	// statusPendingLeft runs out. Defaults to "processed".
	statusFinal string

	// phases records, per attachment ID, the order of protocol phases
	// the server observed.
	phases map[string][]string

	// lastPost holds the most recently received create/edit body.
	lastPost map[string]any

	// lastStart holds the most recently received reserve request body.
	lastStart map[string]any

	// pageItems is the canned fetch-posts page.
	pageItems []map[string]any
}

func newFakeServer(t *testing.T) *fakeServer {
	return newFakeServerWithSalt(t, "JGhosofJGYFsyBlZspFVYg")
}

func newFakeServerWithSalt(t *testing.T, salt string) *fakeServer {
	t.Helper()

	decoded, err := cryptox.DecodeSalt(salt)
	require.NoError(t, err)
	expectedHash, err := cryptox.ClientHash([]byte(testPassword), decoded)
	require.NoError(t, err)

	f := &fakeServer{
		t:            t,
		salt:         salt,
		expectedHash: expectedHash,
		statusFinal:  "processed",
		phases:       make(map[string][]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/login/salt", f.handleSalt)
	mux.HandleFunc("POST /api/v1/login", f.handleLogin)
	mux.HandleFunc("POST /api/v1/logout", f.handleLogout)
	mux.HandleFunc("POST /api/v1/project/{project}/posts", f.handleCreatePost)
	mux.HandleFunc("PUT /api/v1/project/{project}/posts/{id}", f.handleEditPost)
	mux.HandleFunc("DELETE /api/v1/project/{project}/posts/{id}", f.handleDeletePost)
	mux.HandleFunc("GET /api/v1/project/{project}/posts", f.handleFetchPosts)
	mux.HandleFunc("POST /api/v1/project/{project}/attachments/start", f.handleAttachStart)
	mux.HandleFunc("POST /api/v1/project/{project}/attachments/finish/{id}", f.handleAttachFinish)
	mux.HandleFunc("GET /api/v1/attachments/{id}", f.handleAttachStatus)
	mux.HandleFunc("POST /upload/{id}", f.handleUpload)

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeServer) newClient(t *testing.T) *Client {
	t.Helper()
	quiet := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	c, err := NewClient(Config{
		BaseURL:      f.server.URL + "/api/v1/",
		Logger:       quiet,
		PollInterval: 2 * time.Millisecond,
		PollTimeout:  time.Second,
	})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// authed rejects requests that do not carry the session cookie.
func (f *fakeServer) authed(w http.ResponseWriter, r *http.Request) bool {
	c, err := r.Cookie("perch_sid")
	if err != nil || c.Value != testCookie {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "not logged in"})
		return false
	}
	return true
}

func (f *fakeServer) handleSalt(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("email") != testEmail {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no such account"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"salt": f.salt})
}

func (f *fakeServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		ClientHash string `json:"clientHash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad body"})
		return
	}
	if req.Email != testEmail || req.ClientHash != f.expectedHash {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "bad credentials"})
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "perch_sid", Value: testCookie, Path: "/"})
	writeJSON(w, http.StatusOK, map[string]any{"userId": 7})
}

func (f *fakeServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !f.authed(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (f *fakeServer) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	if !f.authed(w, r) {
		return
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad body"})
		return
	}
	f.mu.Lock()
	f.nextPostID++
	id := f.nextPostID
	f.lastPost = body
	f.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{"postId": id})
}

func (f *fakeServer) handleEditPost(w http.ResponseWriter, r *http.Request) {
	if !f.authed(w, r) {
		return
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad body"})
		return
	}
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad post id"})
		return
	}
	f.mu.Lock()
	f.lastPost = body
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"postId": id})
}

func (f *fakeServer) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	if !f.authed(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (f *fakeServer) handleFetchPosts(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	items := f.pageItems
	f.mu.Unlock()
	if items == nil {
		items = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"nItems": len(items),
		"nPages": 1,
	})
}

func (f *fakeServer) handleAttachStart(w http.ResponseWriter, r *http.Request) {
	if !f.authed(w, r) {
		return
	}
	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad reserve request"})
		return
	}
	name, _ := req["filename"].(string)
	contentType, _ := req["content_type"].(string)
	if name == "" || contentType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad reserve request"})
		return
	}
	id := uuid.NewString()
	f.mu.Lock()
	f.startCount++
	f.lastStart = req
	f.phases[id] = append(f.phases[id], "reserve")
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"attachmentId": id,
		"url":          f.server.URL + "/upload/" + id,
		"requiredFields": map[string]string{
			"key":    "attachment/" + id,
			"policy": "signed-policy",
		},
	})
}

func (f *fakeServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	f.mu.Lock()
	f.uploadCount++
	fail := f.uploadFailuresLeft > 0
	if fail {
		f.uploadFailuresLeft--
	}
	f.mu.Unlock()

	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad multipart body"})
		return
	}
	if r.FormValue("key") != "attachment/"+id {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing required field"})
		return
	}
	if _, _, err := r.FormFile("file"); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing file part"})
		return
	}

	f.mu.Lock()
	f.phases[id] = append(f.phases[id], "upload")
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeServer) handleAttachFinish(w http.ResponseWriter, r *http.Request) {
	if !f.authed(w, r) {
		return
	}
	id := r.PathValue("id")

	f.mu.Lock()
	f.finishCount++
	uploaded := false
	for _, phase := range f.phases[id] {
		if phase == "upload" {
			uploaded = true
		}
	}
	if uploaded {
		f.phases[id] = append(f.phases[id], "finish")
	}
	f.mu.Unlock()

	if !uploaded {
		writeJSON(w, http.StatusConflict, map[string]any{"error": "bytes not uploaded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"attachmentId": id,
		"url":          "https://cdn.fake/" + id,
	})
}

func (f *fakeServer) handleAttachStatus(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.statusCount++
	pending := f.statusPendingLeft > 0
	if pending {
		f.statusPendingLeft--
	}
	final := f.statusFinal
	f.mu.Unlock()

	state := final
	if pending {
		state = "pending"
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": state})
}

func (f *fakeServer) counts() (start, upload, finish, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startCount, f.uploadCount, f.finishCount, f.statusCount
}

// lastPostBlocks returns the blocks array of the most recent post body.
func (f *fakeServer) lastPostBlocks(t *testing.T) []any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotNil(t, f.lastPost, "no post body received")
	blocks, ok := f.lastPost["blocks"].([]any)
	require.True(t, ok, "post body has no blocks: %v", f.lastPost)
	return blocks
}

func blockAttachmentID(t *testing.T, block any) string {
	t.Helper()
	m, ok := block.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "attachment", m["type"])
	att, ok := m["attachment"].(map[string]any)
	require.True(t, ok)
	id, ok := att["attachmentId"].(string)
	require.True(t, ok)
	return id
}

func (f *fakeServer) phasesFor(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.phases[id]...)
}
