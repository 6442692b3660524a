package demo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type tweet struct {
	Author string
	Text   string
	Likes  int
}

var tweets = []tweet{
	{Author: "@gopher", Text: "Generics finally make catalog maps pleasant to write", Likes: 128},
	{Author: "@netops", Text: "One endpoint to front a dozen tool servers, yes please", Likes: 54},
	{Author: "@alice", Text: "Shipping the notes demo server today", Likes: 17},
	{Author: "@bob", Text: "Resource templates are underrated", Likes: 9},
}

type searchTweetsArgs struct {
	Query  string `json:"query"`
	SortBy string `json:"sort_by,omitempty"`
	Count  int    `json:"count,omitempty"`
}

type addNoteArgs struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type notesService struct {
	mu    sync.Mutex
	notes map[string]string
}

// NewNotesServer builds the notes demo server: a canned tweet search, a
// note-taking tool, and a prompt that summarizes the stored notes.
func NewNotesServer() *mcp.Server {
	svc := &notesService{notes: make(map[string]string)}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "notes-server",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search-twitter",
		Description: "Search Twitter with a query. Sort by 'Top' or 'Latest'",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query":   {Type: "string"},
				"sort_by": {Type: "string"},
				"count":   {Type: "integer"},
			},
			Required: []string{"query"},
		},
	}, svc.searchTweets)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add-note",
		Description: "Store a named note on the server",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"name":    {Type: "string"},
				"content": {Type: "string"},
			},
			Required: []string{"name", "content"},
		},
	}, svc.addNote)

	server.AddPrompt(&mcp.Prompt{
		Name:        "summarize-notes",
		Description: "Summarize the current notes",
		Arguments: []*mcp.PromptArgument{
			{Name: "style", Description: "'brief' (default) or 'detailed'"},
		},
	}, svc.summarizeNotes)

	return server
}

func (s *notesService) searchTweets(ctx context.Context, req *mcp.CallToolRequest, args searchTweetsArgs) (*mcp.CallToolResult, any, error) {
	if args.Query == "" {
		return nil, nil, fmt.Errorf("missing query argument")
	}
	matched := make([]tweet, 0, len(tweets))
	query := strings.ToLower(args.Query)
	for _, t := range tweets {
		if strings.Contains(strings.ToLower(t.Text), query) || strings.Contains(strings.ToLower(t.Author), query) {
			matched = append(matched, t)
		}
	}
	if args.SortBy != "Latest" {
		sort.SliceStable(matched, func(i, j int) bool { return matched[i].Likes > matched[j].Likes })
	}
	if args.Count > 0 && args.Count < len(matched) {
		matched = matched[:args.Count]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d result(s) for %q:\n", len(matched), args.Query)
	for _, t := range matched {
		fmt.Fprintf(&b, "%s (%d likes): %s\n", t.Author, t.Likes, t.Text)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: b.String()}},
	}, nil, nil
}

func (s *notesService) addNote(ctx context.Context, req *mcp.CallToolRequest, args addNoteArgs) (*mcp.CallToolResult, any, error) {
	if args.Name == "" || args.Content == "" {
		return nil, nil, fmt.Errorf("missing name or content")
	}
	s.mu.Lock()
	s.notes[args.Name] = args.Content
	s.mu.Unlock()
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{
			Text: fmt.Sprintf("Added note %q with content: %s", args.Name, args.Content),
		}},
	}, nil, nil
}

func (s *notesService) summarizeNotes(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	style := "brief"
	if req.Params != nil {
		if v, ok := req.Params.Arguments["style"]; ok && v != "" {
			style = v
		}
	}
	detail := ""
	if style == "detailed" {
		detail = " Give extensive details."
	}

	s.mu.Lock()
	names := make([]string, 0, len(s.notes))
	for name := range s.notes {
		names = append(names, name)
	}
	sort.Strings(names)
	var lines []string
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("- %s: %s", name, s.notes[name]))
	}
	s.mu.Unlock()

	return &mcp.GetPromptResult{
		Description: "Summarize the current notes",
		Messages: []*mcp.PromptMessage{{
			Role: "user",
			Content: &mcp.TextContent{
				Text: fmt.Sprintf("Here are the current notes to summarize:%s\n\n%s", detail, strings.Join(lines, "\n")),
			},
		}},
	}, nil
}
