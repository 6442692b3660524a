package cmd

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zemskymax/bridge-ai/pkg/upstream"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect URL",
		Short: "List the catalog of an MCP endpoint",
		Long: `Connect to an MCP endpoint (the proxy or any upstream) and print its
tools, prompts, resources, and resource templates.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), args[0])
		},
	}
}

func runInspect(ctx context.Context, endpoint string) error {
	peer, err := upstream.New("endpoint", &upstream.HTTPConfig{Endpoint: endpoint}, &upstream.Options{
		ClientName: "bridge-ai-inspect",
	})
	if err != nil {
		return err
	}
	defer func() { _ = peer.Close(context.Background()) }()

	var (
		tools     []*mcp.Tool
		prompts   []*mcp.Prompt
		resources []*mcp.Resource
		templates []*mcp.ResourceTemplate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { tools, err = peer.ListTools(gctx); return err })
	g.Go(func() (err error) { prompts, err = peer.ListPrompts(gctx); return err })
	g.Go(func() (err error) { resources, err = peer.ListResources(gctx); return err })
	g.Go(func() (err error) { templates, err = peer.ListResourceTemplates(gctx); return err })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("inspect %s: %w", endpoint, err)
	}

	fmt.Printf("Tools (%d):\n", len(tools))
	for _, t := range tools {
		fmt.Printf("  %s: %s\n", t.Name, t.Description)
	}
	fmt.Printf("Prompts (%d):\n", len(prompts))
	for _, p := range prompts {
		fmt.Printf("  %s: %s\n", p.Name, p.Description)
	}
	fmt.Printf("Resources (%d):\n", len(resources))
	for _, r := range resources {
		fmt.Printf("  %s (%s): %s\n", r.URI, r.Name, r.Description)
	}
	fmt.Printf("Resource templates (%d):\n", len(templates))
	for _, t := range templates {
		fmt.Printf("  %s (%s): %s\n", t.URITemplate, t.Name, t.Description)
	}
	return nil
}
