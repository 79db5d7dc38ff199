package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/foliodesk/folio/internal/backend"
)

const (
	projectsURI        = "folio://projects"
	messageURIPrefix   = "folio://messages/"
	messageURITemplate = messageURIPrefix + "{id}"
)

// registerResources adds MCP resource definitions to the server.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	// -------------------------------------------------------------------
	// folio://projects: the catalog as stored
	// -------------------------------------------------------------------
	srv.AddResource(
		mcp.NewResource(
			projectsURI,
			"Portfolio Projects",
			mcp.WithResourceDescription("All stored projects, newest first."),
			mcp.WithMIMEType("application/json"),
		),
		s.handleProjectsResource,
	)

	// -------------------------------------------------------------------
	// folio://messages/{id}: one contact message (template)
	// -------------------------------------------------------------------
	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			messageURITemplate,
			"Contact Message",
			mcp.WithTemplateDescription("A single contact message with its read flag."),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleMessageResource,
	)
}

func (s *MCPServer) handleProjectsResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	projects, err := s.deps.Projects.Select(ctx, backend.NewestFirst())
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return jsonContents(projectsURI, projects)
}

func (s *MCPServer) handleMessageResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := request.Params.URI
	id := strings.TrimPrefix(uri, messageURIPrefix)
	if id == "" || id == uri {
		return nil, fmt.Errorf("invalid message URI %q: expected %s", uri, messageURITemplate)
	}

	msgs, err := s.deps.Messages.Select(ctx, backend.Query{}.Where("id", id))
	if err != nil {
		return nil, fmt.Errorf("failed to load message: %w", err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("message %q not found", id)
	}
	return jsonContents(uri, msgs[0])
}

func jsonContents(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
