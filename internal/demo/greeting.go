// Package demo holds the sample upstream servers used to exercise the proxy:
// a greeting server with a user directory and a notes server with a canned
// tweet search. Both are served by the "demo" CLI command and double as
// fixtures for integration tests.
package demo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type user struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

var users = []user{
	{ID: "1", Name: "Alice", Active: true},
	{ID: "2", Name: "Bob", Active: true},
	{ID: "3", Name: "Charlie", Active: false},
}

type greetArgs struct {
	Name string `json:"name"`
}

// NewGreetingServer builds the greeting demo server: a greet tool, a static
// user list resource, and a user-by-ID resource template.
func NewGreetingServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "greeting-server",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "greet",
		Description: "Greet someone by name",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"name": {Type: "string"},
			},
			Required: []string{"name"},
		},
	}, func(ctx context.Context, req *mcp.CallToolRequest, args greetArgs) (*mcp.CallToolResult, any, error) {
		if args.Name == "" {
			return nil, nil, fmt.Errorf("missing name argument")
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Hello, %s!", args.Name)}},
		}, nil, nil
	})

	server.AddResource(&mcp.Resource{
		URI:         "data://users",
		Name:        "Users",
		Description: "A list of users.",
		MIMEType:    "application/json",
	}, readUsers)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "data://user/{id}",
		Name:        "User by ID",
		Description: "A single user looked up by ID.",
		MIMEType:    "application/json",
	}, readUser)

	return server
}

func readUsers(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	payload, err := json.Marshal(users)
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(payload),
		}},
	}, nil
}

func readUser(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	id := strings.TrimPrefix(req.Params.URI, "data://user/")
	for _, u := range users {
		if u.ID != id {
			continue
		}
		payload, err := json.Marshal(u)
		if err != nil {
			return nil, err
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(payload),
			}},
		}, nil
	}
	return nil, fmt.Errorf("unknown user %q", id)
}
