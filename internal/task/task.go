package task

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"
)

// Status represents the ownership lifecycle state of a task.
type Status string

const (
	StatusAvailable  Status = "available"
	StatusOwned      Status = "owned"
	StatusInProgress Status = "inprogress"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusOwned, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Op is an ownership operation requested by a user.
type Op string

const (
	OpClaim    Op = "claim"
	OpStart    Op = "start"
	OpComplete Op = "complete"
	OpRelease  Op = "release"
)

// Transition outcomes surfaced synchronously to the requesting actor.
// These are authorization-relevant and must never be swallowed or retried.
var (
	ErrAlreadyOwned      = errors.New("task is already owned")
	ErrNotOwner          = errors.New("user is not the task owner")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotFound          = errors.New("task not found")
)

// Task is a shared work item. Tasks are created by external decomposition
// logic; this service only moves them through the ownership lifecycle.
type Task struct {
	ID          string
	StoryID     string
	Status      Status
	OwnerID     string
	ClaimedAt   time.Time
	CompletedAt time.Time
	Estimate    int      // effort estimate, 0 = none
	Criteria    []string // acceptance-criteria references
	CreatedAt   time.Time
}

// GenerateID creates a new task ID in the format task-{8 hex chars}.
func GenerateID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("task-%x", b)
}

// New creates an available task under the given story.
func New(storyID string, estimate int, criteria []string) *Task {
	return &Task{
		ID:        GenerateID(),
		StoryID:   storyID,
		Status:    StatusAvailable,
		Estimate:  estimate,
		Criteria:  criteria,
		CreatedAt: time.Now(),
	}
}

// CheckInvariants verifies the status/owner/timestamp coupling that must hold
// after every transition, including failed ones.
func (t *Task) CheckInvariants() error {
	switch {
	case t.Status == StatusAvailable && (t.OwnerID != "" || !t.ClaimedAt.IsZero()):
		return fmt.Errorf("available task %s has owner or claimed_at set", t.ID)
	case t.Status != StatusAvailable && (t.OwnerID == "" || t.ClaimedAt.IsZero()):
		return fmt.Errorf("%s task %s is missing owner or claimed_at", t.Status, t.ID)
	case (t.Status == StatusCompleted) != !t.CompletedAt.IsZero():
		return fmt.Errorf("task %s completed_at does not match status %s", t.ID, t.Status)
	}
	return nil
}

// Apply validates op against the task's current state and returns the mutated
// copy. On failure the returned task is the unchanged input and the error is
// one of ErrAlreadyOwned, ErrNotOwner or ErrInvalidTransition. Apply is pure;
// the caller must perform the write atomically against the state the decision
// was made on.
func Apply(t Task, op Op, userID string, now time.Time) (Task, error) {
	switch op {
	case OpClaim:
		switch t.Status {
		case StatusAvailable:
			t.Status = StatusOwned
			t.OwnerID = userID
			t.ClaimedAt = now
			return t, nil
		case StatusOwned, StatusInProgress:
			return t, ErrAlreadyOwned
		default:
			return t, ErrInvalidTransition
		}

	case OpStart:
		if t.Status != StatusOwned {
			return t, ErrInvalidTransition
		}
		if t.OwnerID != userID {
			return t, ErrNotOwner
		}
		t.Status = StatusInProgress
		return t, nil

	case OpComplete:
		if t.Status != StatusInProgress {
			return t, ErrInvalidTransition
		}
		if t.OwnerID != userID {
			return t, ErrNotOwner
		}
		t.Status = StatusCompleted
		t.CompletedAt = now
		return t, nil

	case OpRelease:
		if t.Status != StatusOwned && t.Status != StatusInProgress {
			return t, ErrInvalidTransition
		}
		if t.OwnerID != userID {
			return t, ErrNotOwner
		}
		t.Status = StatusAvailable
		t.OwnerID = ""
		t.ClaimedAt = time.Time{}
		return t, nil
	}

	return t, fmt.Errorf("unknown operation %q", op)
}
