package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/beacon/internal/store"
	"github.com/btouchard/beacon/internal/task"
)

// Lister lists tasks. Defined at the consumer side per Go convention.
type Lister interface {
	ListTasks(f store.TaskFilter) ([]task.Task, error)
}

// GetTask returns a handler that reports the current state of one task.
func GetTask(svc Mutator) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, _ := req.GetArguments()["task_id"].(string)
		if taskID == "" {
			return mcp.NewToolResultError("task_id is required"), nil
		}

		t, err := svc.Get(taskID)
		if errors.Is(err, task.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("Task %s does not exist.", taskID)), nil
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Lookup failed: %v", err)), nil
		}

		return mcp.NewToolResultText(formatTask(t)), nil
	}
}

// ListTasks returns a handler that lists tasks with optional filters.
func ListTasks(lister Lister) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		filter := store.TaskFilter{Limit: 20}
		if v, ok := args["story_id"].(string); ok {
			filter.StoryID = v
		}
		if v, ok := args["status"].(string); ok {
			filter.Status = task.Status(v)
		}
		if v, ok := args["owner_id"].(string); ok {
			filter.OwnerID = v
		}
		if v, ok := args["limit"].(float64); ok && v > 0 {
			filter.Limit = int(v)
		}

		tasks, err := lister.ListTasks(filter)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Listing failed: %v", err)), nil
		}

		if len(tasks) == 0 {
			return mcp.NewToolResultText("No tasks match."), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "%d task(s):\n", len(tasks))
		for i := range tasks {
			b.WriteString(formatTask(&tasks[i]))
			b.WriteByte('\n')
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

func formatTask(t *task.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] story=%s", t.ID, t.Status, t.StoryID)
	if t.OwnerID != "" {
		fmt.Fprintf(&b, " owner=%s", t.OwnerID)
	}
	if t.Estimate > 0 {
		fmt.Fprintf(&b, " estimate=%d", t.Estimate)
	}
	return b.String()
}
