package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/beacon/internal/auth"
	"github.com/btouchard/beacon/internal/event"
	"github.com/btouchard/beacon/internal/hub"
	"github.com/btouchard/beacon/internal/store"
	"github.com/btouchard/beacon/internal/task"
)

const testToken = "bcn_test_token"

func newTestServer(t *testing.T) (http.Handler, *store.SQLiteStore, *hub.Hub) {
	t.Helper()

	db, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := hub.New(0)
	t.Cleanup(h.Close)

	svc := task.NewService(db, h, store.NewRecorder(db))
	verifier := auth.NewVerifier([]auth.Token{{Name: "test", Hash: auth.HashToken(testToken)}})

	return New(&Deps{Service: svc, Store: db, Hub: h, Verifier: verifier}), db, h
}

func seed(t *testing.T, db *store.SQLiteStore) {
	t.Helper()
	now := time.Now().Truncate(time.Second)

	require.NoError(t, db.CreateStory(&store.Story{ID: "story-9f8e7d6c", Title: "Checkout flow", CreatedAt: now}))
	require.NoError(t, db.CreateUser(&store.User{ID: "user-1", Email: "ada@example.com", DisplayName: "Ada", CreatedAt: now}))
	require.NoError(t, db.CreateTask(&task.Task{
		ID:        "task-1a2b3c4d",
		StoryID:   "story-9f8e7d6c",
		Status:    task.StatusAvailable,
		CreatedAt: now,
	}))
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health_NoAuthRequired(t *testing.T) {
	t.Parallel()

	handler, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RejectsMissingOrBadCredentials(t *testing.T) {
	t.Parallel()

	handler, db, _ := newTestServer(t)
	seed(t, db)

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/task-1a2b3c4d", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/tasks/task-1a2b3c4d", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_AcceptsQueryParamCredential(t *testing.T) {
	t.Parallel()

	handler, db, _ := newTestServer(t)
	seed(t, db)

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/task-1a2b3c4d?access_token="+testToken, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ClaimLifecycle(t *testing.T) {
	t.Parallel()

	handler, db, h := newTestServer(t)
	seed(t, db)

	sub := h.Subscribe()
	defer sub.Close()

	rec := doJSON(t, handler, http.MethodPost, "/api/tasks/task-1a2b3c4d/claim", map[string]string{"user_id": "user-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var view map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "owned", view["status"])
	assert.Equal(t, "user-1", view["owner_id"])

	// The mutation fanned out to connected subscribers.
	select {
	case e := <-sub.Events():
		assert.Equal(t, event.TypeOwnershipTaken, e.Type)
		assert.Equal(t, "task-1a2b3c4d", e.TaskID)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}

	// And into the audit trail.
	events, err := db.GetEvents("task-1a2b3c4d", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ownership_taken", events[0].Type)
}

func TestServer_TransitionErrorCodes(t *testing.T) {
	t.Parallel()

	handler, db, _ := newTestServer(t)
	seed(t, db)

	rec := doJSON(t, handler, http.MethodPost, "/api/tasks/task-1a2b3c4d/claim", map[string]string{"user_id": "user-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	tests := []struct {
		name       string
		path       string
		userID     string
		wantStatus int
		wantCode   string
	}{
		{"second claim conflicts", "/api/tasks/task-1a2b3c4d/claim", "user-2", http.StatusConflict, "already_owned"},
		{"non-owner start", "/api/tasks/task-1a2b3c4d/start", "user-2", http.StatusForbidden, "not_owner"},
		{"complete before start", "/api/tasks/task-1a2b3c4d/complete", "user-1", http.StatusUnprocessableEntity, "invalid_transition"},
		{"unknown task", "/api/tasks/task-missing1/claim", "user-1", http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, handler, http.MethodPost, tt.path, map[string]string{"user_id": tt.userID})
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body["error"])
		})
	}
}

func TestServer_TransitionRequiresUserID(t *testing.T) {
	t.Parallel()

	handler, db, _ := newTestServer(t)
	seed(t, db)

	rec := doJSON(t, handler, http.MethodPost, "/api/tasks/task-1a2b3c4d/claim", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ReadAPIs(t *testing.T) {
	t.Parallel()

	handler, db, _ := newTestServer(t)
	seed(t, db)

	rec := doJSON(t, handler, http.MethodGet, "/api/stories/story-9f8e7d6c", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var story map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &story))
	assert.Equal(t, "Checkout flow", story["title"])

	rec = doJSON(t, handler, http.MethodGet, "/api/users/user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var user map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "Ada", user["display_name"])

	rec = doJSON(t, handler, http.MethodGet, "/api/stories/story-missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/tasks?story=story-9f8e7d6c", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Tasks []map[string]any `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Tasks, 1)
}
