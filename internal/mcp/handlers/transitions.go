package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/beacon/internal/task"
)

// Mutator performs ownership operations. Defined at the consumer side per Go
// convention; satisfied by *task.Service.
type Mutator interface {
	Claim(taskID, userID string) (*task.Task, error)
	Release(taskID, userID string) (*task.Task, error)
	Start(taskID, userID string) (*task.Task, error)
	Complete(taskID, userID string) (*task.Task, error)
	Get(taskID string) (*task.Task, error)
}

// ClaimTask returns a handler that claims an available task for a user.
func ClaimTask(svc Mutator) server.ToolHandlerFunc {
	return transitionHandler(svc, task.OpClaim, func(taskID, userID string) (*task.Task, error) {
		return svc.Claim(taskID, userID)
	})
}

// ReleaseTask returns a handler that releases an owned task.
func ReleaseTask(svc Mutator) server.ToolHandlerFunc {
	return transitionHandler(svc, task.OpRelease, func(taskID, userID string) (*task.Task, error) {
		return svc.Release(taskID, userID)
	})
}

// StartTask returns a handler that moves an owned task to inprogress.
func StartTask(svc Mutator) server.ToolHandlerFunc {
	return transitionHandler(svc, task.OpStart, func(taskID, userID string) (*task.Task, error) {
		return svc.Start(taskID, userID)
	})
}

// CompleteTask returns a handler that marks an inprogress task completed.
func CompleteTask(svc Mutator) server.ToolHandlerFunc {
	return transitionHandler(svc, task.OpComplete, func(taskID, userID string) (*task.Task, error) {
		return svc.Complete(taskID, userID)
	})
}

func transitionHandler(svc Mutator, op task.Op, apply func(taskID, userID string) (*task.Task, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		taskID, _ := args["task_id"].(string)
		if taskID == "" {
			return mcp.NewToolResultError("task_id is required"), nil
		}
		userID, _ := args["user_id"].(string)
		if userID == "" {
			return mcp.NewToolResultError("user_id is required"), nil
		}

		t, err := apply(taskID, userID)
		if err != nil {
			// Rejections are authorization-relevant outcomes for the
			// caller, not protocol errors.
			return mcp.NewToolResultError(rejectionMessage(op, taskID, err)), nil
		}

		return mcp.NewToolResultText(formatTask(t)), nil
	}
}

func rejectionMessage(op task.Op, taskID string, err error) string {
	switch {
	case errors.Is(err, task.ErrAlreadyOwned):
		return fmt.Sprintf("Task %s is already owned by someone else.", taskID)
	case errors.Is(err, task.ErrNotOwner):
		return fmt.Sprintf("You are not the owner of task %s.", taskID)
	case errors.Is(err, task.ErrInvalidTransition):
		return fmt.Sprintf("Operation %s is not allowed from the current status of task %s.", op, taskID)
	case errors.Is(err, task.ErrNotFound):
		return fmt.Sprintf("Task %s does not exist.", taskID)
	default:
		return fmt.Sprintf("Operation failed: %v", err)
	}
}
