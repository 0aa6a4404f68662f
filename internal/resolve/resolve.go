// Package resolve turns opaque story and user identifiers into human labels.
// Lookups are best-effort: a failure yields a synthesized fallback label and
// is never memoized, so a later attempt can still succeed. Resolution never
// returns an error to the caller.
package resolve

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// FallbackUserLabel names an actor whose lookup failed or whose id is absent.
const FallbackUserLabel = "Someone"

// Story is the shape returned by the story collaborator.
type Story struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// User is the shape returned by the user collaborator.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// StoryFetcher fetches a story by id. Defined consumer-side.
type StoryFetcher interface {
	FetchStory(ctx context.Context, id string) (*Story, error)
}

// UserFetcher fetches a user by id. Defined consumer-side.
type UserFetcher interface {
	FetchUser(ctx context.Context, id string) (*User, error)
}

// Cache memoizes successful resolutions for the lifetime of one subscription.
// Concurrent lookups for the same identifier are coalesced into a single
// in-flight request.
type Cache struct {
	stories StoryFetcher
	users   UserFetcher

	mu     sync.Mutex
	titles map[string]string
	labels map[string]string
	flight singleflight.Group
}

// NewCache creates an empty Cache backed by the given collaborators.
func NewCache(stories StoryFetcher, users UserFetcher) *Cache {
	return &Cache{
		stories: stories,
		users:   users,
		titles:  make(map[string]string),
		labels:  make(map[string]string),
	}
}

// ResolveStory returns the story's title, performing at most one awaited
// lookup. On failure it returns "Story <last6(id)>" without memoizing.
func (c *Cache) ResolveStory(ctx context.Context, id string) string {
	if id == "" {
		return "Story"
	}

	c.mu.Lock()
	if title, ok := c.titles[id]; ok {
		c.mu.Unlock()
		return title
	}
	c.mu.Unlock()

	v, err, _ := c.flight.Do("story:"+id, func() (any, error) {
		st, err := c.stories.FetchStory(ctx, id)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.titles[id] = st.Title
		c.mu.Unlock()
		return st.Title, nil
	})
	if err != nil {
		slog.Warn("story resolution failed", "story_id", id, "error", err)
		return "Story " + last6(id)
	}
	return v.(string)
}

// ResolveUser returns a display label for the user: display name, else email,
// else the generic fallback. Absent ids and failed lookups both yield the
// fallback.
func (c *Cache) ResolveUser(ctx context.Context, id string) string {
	if id == "" {
		return FallbackUserLabel
	}

	c.mu.Lock()
	if label, ok := c.labels[id]; ok {
		c.mu.Unlock()
		return label
	}
	c.mu.Unlock()

	v, err, _ := c.flight.Do("user:"+id, func() (any, error) {
		u, err := c.users.FetchUser(ctx, id)
		if err != nil {
			return nil, err
		}
		label := u.DisplayName
		if label == "" {
			label = u.Email
		}
		if label == "" {
			label = FallbackUserLabel
		}
		c.mu.Lock()
		c.labels[id] = label
		c.mu.Unlock()
		return label, nil
	})
	if err != nil {
		slog.Warn("user resolution failed", "user_id", id, "error", err)
		return FallbackUserLabel
	}
	return v.(string)
}

func last6(id string) string {
	if len(id) <= 6 {
		return id
	}
	return id[len(id)-6:]
}
