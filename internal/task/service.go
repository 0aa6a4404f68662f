package task

import (
	"log/slog"
	"time"

	"github.com/btouchard/beacon/internal/event"
)

// Publisher fans out one event to every connected subscriber.
// Defined consumer-side per Go convention.
type Publisher interface {
	Publish(e event.Event)
}

// Store is the slice of the persistence layer the service needs.
type Store interface {
	Transition(id string, op Op, userID string, now time.Time) (*Task, error)
	GetTask(id string) (*Task, error)
}

// Auditor records published events server-side. Optional.
type Auditor interface {
	Record(e event.Event)
}

// Service performs ownership operations and publishes the resulting events.
// Transition failures are returned to the caller untouched; nothing is
// published for a failed operation.
type Service struct {
	store Store
	hub   Publisher
	audit Auditor
	now   func() time.Time
}

// NewService creates a Service. audit may be nil.
func NewService(store Store, hub Publisher, audit Auditor) *Service {
	return &Service{
		store: store,
		hub:   hub,
		audit: audit,
		now:   time.Now,
	}
}

// Claim makes userID the exclusive owner of the task. Under concurrent claims
// exactly one caller succeeds; the rest receive ErrAlreadyOwned.
func (s *Service) Claim(taskID, userID string) (*Task, error) {
	now := s.now()
	t, err := s.store.Transition(taskID, OpClaim, userID, now)
	if err != nil {
		return nil, err
	}

	s.publish(event.Event{
		Type:        event.TypeOwnershipTaken,
		TaskID:      t.ID,
		StoryID:     t.StoryID,
		Timestamp:   now,
		OwnerUserID: userID,
	})
	return t, nil
}

// Release returns the task to the available pool. Only the current owner may
// release.
func (s *Service) Release(taskID, userID string) (*Task, error) {
	now := s.now()
	t, err := s.store.Transition(taskID, OpRelease, userID, now)
	if err != nil {
		return nil, err
	}

	s.publish(event.Event{
		Type:                event.TypeOwnershipReleased,
		TaskID:              t.ID,
		StoryID:             t.StoryID,
		Timestamp:           now,
		PreviousOwnerUserID: userID,
	})
	return t, nil
}

// Start moves an owned task to inprogress. Owner only.
func (s *Service) Start(taskID, userID string) (*Task, error) {
	return s.advance(taskID, userID, OpStart, StatusOwned)
}

// Complete moves an inprogress task to completed. Owner only.
func (s *Service) Complete(taskID, userID string) (*Task, error) {
	return s.advance(taskID, userID, OpComplete, StatusInProgress)
}

func (s *Service) advance(taskID, userID string, op Op, from Status) (*Task, error) {
	now := s.now()
	t, err := s.store.Transition(taskID, op, userID, now)
	if err != nil {
		return nil, err
	}

	s.publish(event.Event{
		Type:            event.TypeStatusChanged,
		TaskID:          t.ID,
		StoryID:         t.StoryID,
		Timestamp:       now,
		OldStatus:       string(from),
		NewStatus:       string(t.Status),
		ChangedByUserID: userID,
	})
	return t, nil
}

// Get returns the current state of a task.
func (s *Service) Get(taskID string) (*Task, error) {
	return s.store.GetTask(taskID)
}

func (s *Service) publish(e event.Event) {
	s.hub.Publish(e)
	if s.audit != nil {
		s.audit.Record(e)
	}
	slog.Debug("event published",
		"type", e.Type,
		"task_id", e.TaskID,
		"actor", e.Actor())
}
