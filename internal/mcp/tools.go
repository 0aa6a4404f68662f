package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/beacon/internal/mcp/handlers"
)

func registerTools(s *server.MCPServer, deps *Deps) {
	// claim_task — become the exclusive owner of an available task
	s.AddTool(
		mcp.NewTool("claim_task",
			mcp.WithDescription("Claim an available task. Exactly one concurrent claimer wins; everyone else is told the task is already owned."),
			mcp.WithString("task_id",
				mcp.Required(),
				mcp.Description("The task to claim"),
			),
			mcp.WithString("user_id",
				mcp.Required(),
				mcp.Description("The user claiming the task"),
			),
		),
		handlers.ClaimTask(deps.Service),
	)

	// release_task — give an owned task back to the pool
	s.AddTool(
		mcp.NewTool("release_task",
			mcp.WithDescription("Release a task you own back to the available pool."),
			mcp.WithString("task_id",
				mcp.Required(),
				mcp.Description("The task to release"),
			),
			mcp.WithString("user_id",
				mcp.Required(),
				mcp.Description("The current owner"),
			),
		),
		handlers.ReleaseTask(deps.Service),
	)

	// start_task — owned → inprogress
	s.AddTool(
		mcp.NewTool("start_task",
			mcp.WithDescription("Start working on a task you own."),
			mcp.WithString("task_id",
				mcp.Required(),
				mcp.Description("The task to start"),
			),
			mcp.WithString("user_id",
				mcp.Required(),
				mcp.Description("The current owner"),
			),
		),
		handlers.StartTask(deps.Service),
	)

	// complete_task — inprogress → completed
	s.AddTool(
		mcp.NewTool("complete_task",
			mcp.WithDescription("Mark a task you are working on as completed."),
			mcp.WithString("task_id",
				mcp.Required(),
				mcp.Description("The task to complete"),
			),
			mcp.WithString("user_id",
				mcp.Required(),
				mcp.Description("The current owner"),
			),
		),
		handlers.CompleteTask(deps.Service),
	)

	// get_task — current state of one task
	s.AddTool(
		mcp.NewTool("get_task",
			mcp.WithDescription("Get the current state of a task."),
			mcp.WithString("task_id",
				mcp.Required(),
				mcp.Description("The task to inspect"),
			),
		),
		handlers.GetTask(deps.Service),
	)

	// list_tasks — list tasks with optional filters
	s.AddTool(
		mcp.NewTool("list_tasks",
			mcp.WithDescription("List tasks with optional filters."),
			mcp.WithString("story_id",
				mcp.Description("Filter by story"),
			),
			mcp.WithString("status",
				mcp.Description("Filter by status"),
				mcp.Enum("available", "owned", "inprogress", "completed"),
			),
			mcp.WithString("owner_id",
				mcp.Description("Filter by current owner"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of tasks to return (default: 20)"),
			),
		),
		handlers.ListTasks(deps.Store),
	)
}
