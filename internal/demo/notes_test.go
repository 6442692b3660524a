package demo

import (
	"context"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("unexpected content: %+v", res.Content)
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", res.Content[0])
	}
	return text.Text
}

func TestSearchTweetsSortsByLikes(t *testing.T) {
	svc := &notesService{notes: make(map[string]string)}

	res, _, err := svc.searchTweets(context.Background(), nil, searchTweetsArgs{Query: "server", Count: 1})
	if err != nil {
		t.Fatalf("searchTweets: %v", err)
	}
	text := resultText(t, res)
	if !strings.HasPrefix(text, "1 result(s)") {
		t.Fatalf("count limit not applied: %q", text)
	}
	if !strings.Contains(text, "@netops") {
		t.Fatalf("expected the most-liked match first, got %q", text)
	}

	if _, _, err := svc.searchTweets(context.Background(), nil, searchTweetsArgs{}); err == nil {
		t.Fatalf("expected error for missing query")
	}
}

func TestSummarizeNotesIncludesStoredNotes(t *testing.T) {
	svc := &notesService{notes: make(map[string]string)}
	if _, _, err := svc.addNote(context.Background(), nil, addNoteArgs{Name: "a", Content: "first"}); err != nil {
		t.Fatalf("addNote: %v", err)
	}
	if _, _, err := svc.addNote(context.Background(), nil, addNoteArgs{Name: "b", Content: "second"}); err != nil {
		t.Fatalf("addNote: %v", err)
	}

	res, err := svc.summarizeNotes(context.Background(), &mcp.GetPromptRequest{
		Params: &mcp.GetPromptParams{Arguments: map[string]string{"style": "detailed"}},
	})
	if err != nil {
		t.Fatalf("summarizeNotes: %v", err)
	}
	text, ok := res.Messages[0].Content.(*mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", res.Messages[0].Content)
	}
	if !strings.Contains(text.Text, "- a: first") || !strings.Contains(text.Text, "- b: second") {
		t.Fatalf("notes missing from prompt: %q", text.Text)
	}
	if !strings.Contains(text.Text, "Give extensive details.") {
		t.Fatalf("detailed style not applied: %q", text.Text)
	}
}
