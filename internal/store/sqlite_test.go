package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/beacon/internal/task"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedTask(t *testing.T, s *SQLiteStore, id string) {
	t.Helper()
	now := time.Now().Truncate(time.Second)

	require.NoError(t, s.CreateStory(&Story{
		ID:        "story-9f8e7d6c",
		Title:     "Checkout flow",
		CreatedAt: now,
	}))
	require.NoError(t, s.CreateTask(&task.Task{
		ID:        id,
		StoryID:   "story-9f8e7d6c",
		Status:    task.StatusAvailable,
		Estimate:  3,
		Criteria:  []string{"ac-1", "ac-2"},
		CreatedAt: now,
	}))
}

func TestSQLiteStore_Migration_CreatesTablesAndVersion(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	var version int
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)
}

func TestSQLiteStore_CreateAndGetTask(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	seedTask(t, s, "task-1a2b3c4d")

	got, err := s.GetTask("task-1a2b3c4d")
	require.NoError(t, err)
	assert.Equal(t, "task-1a2b3c4d", got.ID)
	assert.Equal(t, "story-9f8e7d6c", got.StoryID)
	assert.Equal(t, task.StatusAvailable, got.Status)
	assert.Equal(t, 3, got.Estimate)
	assert.Equal(t, []string{"ac-1", "ac-2"}, got.Criteria)
}

func TestSQLiteStore_GetTask_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.GetTask("task-missing1")
	assert.ErrorIs(t, err, task.ErrNotFound)
}

func TestSQLiteStore_Transition_Lifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	seedTask(t, s, "task-1a2b3c4d")

	now := time.Now().Truncate(time.Second)

	got, err := s.Transition("task-1a2b3c4d", task.OpClaim, "user-1", now)
	require.NoError(t, err)
	assert.Equal(t, task.StatusOwned, got.Status)
	assert.Equal(t, "user-1", got.OwnerID)

	got, err = s.Transition("task-1a2b3c4d", task.OpStart, "user-1", now)
	require.NoError(t, err)
	assert.Equal(t, task.StatusInProgress, got.Status)

	got, err = s.Transition("task-1a2b3c4d", task.OpComplete, "user-1", now)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, got.Status)
	assert.Equal(t, now, got.CompletedAt)

	// Persisted row matches and still satisfies the invariants
	persisted, err := s.GetTask("task-1a2b3c4d")
	require.NoError(t, err)
	assert.Equal(t, got, persisted)
	assert.NoError(t, persisted.CheckInvariants())
}

func TestSQLiteStore_Transition_RejectionLeavesRowUnchanged(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	seedTask(t, s, "task-1a2b3c4d")

	now := time.Now().Truncate(time.Second)
	_, err := s.Transition("task-1a2b3c4d", task.OpClaim, "user-1", now)
	require.NoError(t, err)

	before, err := s.GetTask("task-1a2b3c4d")
	require.NoError(t, err)

	_, err = s.Transition("task-1a2b3c4d", task.OpClaim, "user-2", now)
	assert.ErrorIs(t, err, task.ErrAlreadyOwned)

	_, err = s.Transition("task-1a2b3c4d", task.OpComplete, "user-1", now)
	assert.ErrorIs(t, err, task.ErrInvalidTransition)

	_, err = s.Transition("task-1a2b3c4d", task.OpStart, "user-2", now)
	assert.ErrorIs(t, err, task.ErrNotOwner)

	after, err := s.GetTask("task-1a2b3c4d")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.NoError(t, after.CheckInvariants())
}

func TestSQLiteStore_Transition_ConcurrentClaims_ExactlyOneWins(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	seedTask(t, s, "task-1a2b3c4d")

	const claimers = 16
	errs := make([]error, claimers)

	var wg sync.WaitGroup
	for i := range claimers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.Transition("task-1a2b3c4d", task.OpClaim, fmt.Sprintf("user-%d", i), time.Now())
		}()
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		default:
			assert.ErrorIs(t, err, task.ErrAlreadyOwned)
			lost++
		}
	}

	assert.Equal(t, 1, won, "exactly one claim must win")
	assert.Equal(t, claimers-1, lost)

	got, err := s.GetTask("task-1a2b3c4d")
	require.NoError(t, err)
	assert.Equal(t, task.StatusOwned, got.Status)
	assert.NoError(t, got.CheckInvariants())
}

func TestSQLiteStore_Transition_UnknownTask(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.Transition("task-missing1", task.OpClaim, "user-1", time.Now())
	assert.ErrorIs(t, err, task.ErrNotFound)
}

func TestSQLiteStore_ListTasks_Filters(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	now := time.Now().Truncate(time.Second)
	require.NoError(t, s.CreateStory(&Story{ID: "story-a", Title: "A", CreatedAt: now}))
	require.NoError(t, s.CreateStory(&Story{ID: "story-b", Title: "B", CreatedAt: now}))

	for i, storyID := range []string{"story-a", "story-a", "story-b"} {
		require.NoError(t, s.CreateTask(&task.Task{
			ID:        fmt.Sprintf("task-0000000%d", i),
			StoryID:   storyID,
			Status:    task.StatusAvailable,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		}))
	}

	_, err := s.Transition("task-00000000", task.OpClaim, "user-1", now)
	require.NoError(t, err)

	byStory, err := s.ListTasks(TaskFilter{StoryID: "story-a"})
	require.NoError(t, err)
	assert.Len(t, byStory, 2)

	owned, err := s.ListTasks(TaskFilter{Status: task.StatusOwned})
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, "task-00000000", owned[0].ID)

	byOwner, err := s.ListTasks(TaskFilter{OwnerID: "user-1"})
	require.NoError(t, err)
	assert.Len(t, byOwner, 1)

	limited, err := s.ListTasks(TaskFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteStore_StoriesAndUsers(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	now := time.Now().Truncate(time.Second)
	require.NoError(t, s.CreateStory(&Story{ID: "story-a", Title: "Checkout flow", Description: "v2", CreatedAt: now}))
	require.NoError(t, s.CreateUser(&User{ID: "user-1", Email: "ada@example.com", DisplayName: "Ada", CreatedAt: now}))

	st, err := s.GetStory("story-a")
	require.NoError(t, err)
	assert.Equal(t, "Checkout flow", st.Title)

	u, err := s.GetUser("user-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.DisplayName)

	_, err = s.GetStory("story-missing")
	assert.ErrorIs(t, err, ErrNoRecord)
	_, err = s.GetUser("user-missing")
	assert.ErrorIs(t, err, ErrNoRecord)
}

func TestSQLiteStore_Events_AppendAndCleanup(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()

	require.NoError(t, s.AddEvent(&EventRecord{Type: "ownership_taken", TaskID: "task-1", CreatedAt: old}))
	require.NoError(t, s.AddEvent(&EventRecord{Type: "ownership_released", TaskID: "task-1", CreatedAt: recent}))

	events, err := s.GetEvents("task-1", 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, "ownership_released", events[0].Type, "newest first")

	require.NoError(t, s.Cleanup(time.Now().Add(-24*time.Hour)))

	events, err = s.GetEvents("task-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ownership_released", events[0].Type)
}
