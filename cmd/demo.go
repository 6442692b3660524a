package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/zemskymax/bridge-ai/internal/demo"
)

func newDemoCmd() *cobra.Command {
	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a sample upstream server",
	}
	demoCmd.AddCommand(
		newDemoServerCmd("greeting", "Greeting server with a user directory", demo.NewGreetingServer, ":8003"),
		newDemoServerCmd("notes", "Notes server with a canned tweet search", demo.NewNotesServer, ":8002"),
	)
	return demoCmd
}

func newDemoServerCmd(name, short string, build func() *mcp.Server, defaultAddr string) *cobra.Command {
	var (
		addr  string
		path  string
		stdio bool
	)
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := runDemoServer(cmd.Context(), build(), addr, path, stdio)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "listen address for the Streamable HTTP transport")
	cmd.Flags().StringVar(&path, "path", "/mcp", "HTTP path for the Streamable endpoint")
	cmd.Flags().BoolVar(&stdio, "stdio", false, "speak MCP over stdio instead of HTTP")
	return cmd
}

func runDemoServer(ctx context.Context, server *mcp.Server, addr, path string, stdio bool) error {
	if stdio {
		return server.Run(ctx, &mcp.StdioTransport{})
	}

	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("demo server listening", "addr", addr, "path", path)

	select {
	case <-ctx.Done():
		_ = srv.Shutdown(context.Background())
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
