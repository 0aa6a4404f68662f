package hub

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/beacon/internal/event"
)

func testEvent(taskID string) event.Event {
	return event.Event{
		Type:        event.TypeOwnershipTaken,
		TaskID:      taskID,
		StoryID:     "story-9f8e7d6c",
		Timestamp:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		OwnerUserID: "user-1",
	}
}

func TestHub_Publish_ReachesAllConnectedSubscribers(t *testing.T) {
	t.Parallel()

	h := New(0)
	a := h.Subscribe()
	b := h.Subscribe()

	h.Publish(testEvent("task-1"))

	for _, sub := range []*Subscriber{a, b} {
		select {
		case e := <-sub.Events():
			assert.Equal(t, "task-1", e.TaskID)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestHub_LateSubscriber_SeesOnlyFutureEvents(t *testing.T) {
	t.Parallel()

	h := New(0)
	h.Publish(testEvent("task-before"))

	sub := h.Subscribe()
	h.Publish(testEvent("task-after"))

	e := <-sub.Events()
	assert.Equal(t, "task-after", e.TaskID, "no backlog replay")
	assert.Empty(t, sub.Events())
}

func TestHub_ClosedSubscriber_NoLongerReceives(t *testing.T) {
	t.Parallel()

	h := New(0)
	sub := h.Subscribe()
	sub.Close()

	require.Equal(t, 0, h.Len())
	h.Publish(testEvent("task-1"))

	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestHub_SlowSubscriberIsDisconnected(t *testing.T) {
	t.Parallel()

	h := New(1)
	slow := h.Subscribe()

	h.Publish(testEvent("task-1"))
	h.Publish(testEvent("task-2")) // queue full → disconnect

	assert.Equal(t, 0, h.Len())

	// The buffered event is still drained, then the channel closes.
	e, open := <-slow.Events()
	require.True(t, open)
	assert.Equal(t, "task-1", e.TaskID)

	_, open = <-slow.Events()
	assert.False(t, open)
}

func TestHub_Close_DetachesEveryone(t *testing.T) {
	t.Parallel()

	h := New(0)
	sub := h.Subscribe()
	h.Close()

	_, open := <-sub.Events()
	assert.False(t, open)

	late := h.Subscribe()
	_, open = <-late.Events()
	assert.False(t, open, "subscriptions after Close are rejected")
}

func TestSSEHandler_StreamsEventFrames(t *testing.T) {
	t.Parallel()

	h := New(0)
	srv := httptest.NewServer(SSEHandler(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Wait for the subscriber to attach before publishing.
	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)
	h.Publish(testEvent("task-1"))

	reader := bufio.NewReader(resp.Body)
	var data string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
			break
		}
	}

	e, err := event.Decode([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, event.TypeOwnershipTaken, e.Type)
	assert.Equal(t, "task-1", e.TaskID)
}
