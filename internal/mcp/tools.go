package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/foliodesk/folio/internal/backend"
	"github.com/foliodesk/folio/internal/model"
)

const (
	defaultLimit = 25
	maxLimit     = 500
	toolTimeout  = 15 * time.Second
)

// registerTools registers all folio MCP tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Catalog -----

	srv.AddTool(
		mcp.NewTool("folio_list_projects",
			mcp.WithDescription(
				"List portfolio projects, newest first. Returns id, title, description, "+
					"tags, and the image, live, and source URLs.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of projects to return (default 25, max 500)"),
			),
		),
		s.handleListProjects,
	)

	srv.AddTool(
		mcp.NewTool("folio_delete_project",
			mcp.WithDescription(
				"Delete one project by id. The project's stored image is not removed; "+
					"run folio_sweep_images to clear unreferenced images.",
			),
			mcp.WithToolAnnotation(destructiveAnnotation()),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Project id"),
			),
		),
		s.handleDeleteProject,
	)

	// ----- Inbox -----

	srv.AddTool(
		mcp.NewTool("folio_list_messages",
			mcp.WithDescription(
				"List contact messages, newest first, with the current unread count.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithBoolean("unread_only",
				mcp.Description("Return only messages not yet marked read"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of messages to return (default 25, max 500)"),
			),
		),
		s.handleListMessages,
	)

	srv.AddTool(
		mcp.NewTool("folio_unread_count",
			mcp.WithDescription("Return the number of unread contact messages."),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleUnreadCount,
	)

	srv.AddTool(
		mcp.NewTool("folio_mark_message_read",
			mcp.WithDescription("Mark one contact message as read. Messages cannot be marked unread."),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Message id"),
			),
		),
		s.handleMarkRead,
	)

	srv.AddTool(
		mcp.NewTool("folio_delete_message",
			mcp.WithDescription("Delete one contact message by id."),
			mcp.WithToolAnnotation(destructiveAnnotation()),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Message id"),
			),
		),
		s.handleDeleteMessage,
	)

	// ----- Maintenance -----

	if s.deps.Sweeper != nil {
		srv.AddTool(
			mcp.NewTool("folio_sweep_images",
				mcp.WithDescription(
					"Find project images no project references and delete those older "+
						"than the grace period. Use dry_run to list them without deleting.",
				),
				mcp.WithToolAnnotation(destructiveAnnotation()),
				mcp.WithBoolean("dry_run",
					mcp.Description("Report orphans without deleting (default true)"),
				),
			),
			s.handleSweep,
		)
	}
}

// handleListProjects returns projects newest first.
func (s *MCPServer) handleListProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := clamp(optionalInt(request, "limit", defaultLimit), 1, maxLimit)

	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	projects, err := s.deps.Projects.Select(ctx, backend.NewestFirst())
	if err != nil {
		return toolError("failed to list projects: %v", err)
	}
	total := len(projects)
	if len(projects) > limit {
		projects = projects[:limit]
	}
	return successJSON(map[string]interface{}{
		"projects": projects,
		"count":    len(projects),
		"total":    total,
	})
}

// handleDeleteProject removes one project.
func (s *MCPServer) handleDeleteProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireString(request, "id")
	if err != nil {
		return toolError("%v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	if err := s.deps.Projects.Delete(ctx, id); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return toolError("project %q not found", id)
		}
		return toolError("failed to delete project: %v", err)
	}
	s.logger.Info("project deleted via mcp", "id", id)
	return successJSON(map[string]interface{}{"deleted": id})
}

// handleListMessages returns the inbox, newest first.
func (s *MCPServer) handleListMessages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := clamp(optionalInt(request, "limit", defaultLimit), 1, maxLimit)
	q := backend.NewestFirst()
	if optionalBool(request, "unread_only", false) {
		q = q.Where("is_read", false)
	}

	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	msgs, err := s.deps.Messages.Select(ctx, q)
	if err != nil {
		return toolError("failed to list messages: %v", err)
	}
	unread, err := s.deps.Messages.CountUnread(ctx)
	if err != nil {
		return toolError("failed to count unread messages: %v", err)
	}
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return successJSON(map[string]interface{}{
		"messages": msgs,
		"count":    len(msgs),
		"unread":   unread,
	})
}

// handleUnreadCount returns the unread counter.
func (s *MCPServer) handleUnreadCount(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	unread, err := s.deps.Messages.CountUnread(ctx)
	if err != nil {
		return toolError("failed to count unread messages: %v", err)
	}
	return successJSON(map[string]int{"unread": unread})
}

// handleMarkRead marks one message read.
func (s *MCPServer) handleMarkRead(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireString(request, "id")
	if err != nil {
		return toolError("%v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	if err := s.deps.Messages.Update(ctx, id, model.MessagePatch{MarkRead: true}); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return toolError("message %q not found", id)
		}
		return toolError("failed to update message: %v", err)
	}
	return s.unreadResult(ctx, map[string]interface{}{"read": id})
}

// handleDeleteMessage removes one message.
func (s *MCPServer) handleDeleteMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireString(request, "id")
	if err != nil {
		return toolError("%v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	if err := s.deps.Messages.Delete(ctx, id); err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return toolError("message %q not found", id)
		}
		return toolError("failed to delete message: %v", err)
	}
	s.logger.Info("message deleted via mcp", "id", id)
	return s.unreadResult(ctx, map[string]interface{}{"deleted": id})
}

func (s *MCPServer) unreadResult(ctx context.Context, out map[string]interface{}) (*mcp.CallToolResult, error) {
	unread, err := s.deps.Messages.CountUnread(ctx)
	if err != nil {
		return toolError("failed to count unread messages: %v", err)
	}
	out["unread"] = unread
	return successJSON(out)
}

// handleSweep runs the orphan image sweep once.
func (s *MCPServer) handleSweep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	dryRun := optionalBool(request, "dry_run", true)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	res, err := s.deps.Sweeper.Run(ctx, dryRun)
	if err != nil {
		return toolError("sweep failed: %v", err)
	}
	return successJSON(map[string]interface{}{
		"dry_run": dryRun,
		"result":  res,
	})
}
