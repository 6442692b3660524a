package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/zemskymax/bridge-ai/internal/config"
	"github.com/zemskymax/bridge-ai/pkg/proxy"
	"github.com/zemskymax/bridge-ai/pkg/upstream"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the aggregating proxy",
		Long: `Serve a single MCP endpoint that aggregates every upstream listed in the
configuration file. Upstream order in the file decides which server wins when
two of them expose the same tool name, resource URI, or prompt name.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "bridge-ai.yaml", "path to the upstream configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	peers := make([]proxy.Peer, 0, len(cfg.Upstreams))
	for _, u := range cfg.Upstreams {
		peer, err := upstream.New(u.Name, u.PeerConfig(), &upstream.Options{ClientName: "bridge-ai"})
		if err != nil {
			return fmt.Errorf("configure upstream %q: %w", u.Name, err)
		}
		peers = append(peers, peer)
	}

	opts := &proxy.Options{
		Addr: cfg.Proxy.Addr,
		Path: cfg.Proxy.Path,
		CORS: &cors.Options{
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{"Mcp-Session-Id"},
		},
	}
	server := proxy.NewServer(proxy.New(peers, opts), opts)
	if err := server.Sync(ctx); err != nil {
		return fmt.Errorf("initial catalog sync: %w", err)
	}

	slog.Info("proxy serving Streamable MCP", "addr", server.Options().Addr, "path", server.Options().Path, "upstreams", len(peers))
	if err := server.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
