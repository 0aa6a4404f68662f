package store

import (
	"time"

	"github.com/btouchard/beacon/internal/task"
)

// Store is the persistence interface for Beacon.
// Defined at the consumer side per Go conventions.
type Store interface {
	// Tasks
	CreateTask(t *task.Task) error
	GetTask(id string) (*task.Task, error)
	ListTasks(f TaskFilter) ([]task.Task, error)

	// Transition applies one ownership operation atomically: the read, the
	// rule check and the conditional write happen inside a single
	// transaction, so concurrent claims on the same task serialize and
	// exactly one wins.
	Transition(id string, op task.Op, userID string, now time.Time) (*task.Task, error)

	// Stories and users (resolution collaborators read from these)
	CreateStory(s *Story) error
	GetStory(id string) (*Story, error)
	CreateUser(u *User) error
	GetUser(id string) (*User, error)

	// Event audit trail (server-side only; consumers never read this)
	AddEvent(e *EventRecord) error
	GetEvents(taskID string, limit int) ([]EventRecord, error)

	// Maintenance
	Cleanup(olderThan time.Time) error
	Close() error
}

// TaskFilter specifies criteria for listing tasks.
type TaskFilter struct {
	StoryID string
	Status  task.Status
	OwnerID string
	Limit   int
}

// Story is a persisted story record.
type Story struct {
	ID          string
	Title       string
	Description string
	CreatedAt   time.Time
}

// User is a persisted user record.
type User struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

// EventRecord is one published event kept for operator inspection.
type EventRecord struct {
	ID        int64
	Type      string
	TaskID    string
	StoryID   string
	ActorID   string
	Payload   string // wire-form JSON as published
	CreatedAt time.Time
}
