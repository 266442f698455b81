package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/autowriter/internal/mcp"
	"github.com/Aman-CERP/autowriter/internal/retrieve"
	"github.com/Aman-CERP/autowriter/internal/server"
	"github.com/Aman-CERP/autowriter/internal/watcher"
)

type serveOptions struct {
	listen string
	mcp    bool
	watch  bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and, optionally, MCP over stdio",
		Long: `Start the HTTP API:

  POST /v1/retrieve   brochure evidence for a query
  POST /v1/generate   raw generation from supplied evidence
  POST /v1/autowrite  the full listing pipeline
  GET  /healthz       liveness
  GET  /readyz        index loaded

With --mcp the same operations are also exposed as MCP tools on stdin and
stdout; nothing else is printed to stdout in that mode. With --watch the
index is reloaded whenever a completed build rewrites manifest.json.

Examples:
  autowriter serve
  autowriter serve --listen 0.0.0.0:8088 --watch
  autowriter serve --mcp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, root, opts)
		},
	}

	cmd.Flags().StringVar(&opts.listen, "listen", "", "HTTP listen address (default server.listen)")
	cmd.Flags().BoolVar(&opts.mcp, "mcp", false, "Also serve MCP over stdio")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Reload the index when manifest.json changes")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, root *rootOptions, opts serveOptions) error {
	cfg := root.cfg
	if opts.listen == "" {
		opts.listen = cfg.Server.Listen
	}

	s, err := buildStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	scfg := server.Config{
		Listen:         opts.listen,
		Retriever:      s.retriever,
		Writer:         s.writer,
		K:              cfg.Retrieval.K,
		RateLimit:      cfg.Server.RateLimit,
		RateBurst:      cfg.Server.RateBurst,
		RequestTimeout: cfg.Server.RequestTimeout,
	}
	if s.generator != nil {
		scfg.Generator = s.generator
	}
	if s.recorder != nil {
		scfg.Recorder = s.recorder
	}
	httpSrv, err := server.New(scfg)
	if err != nil {
		return err
	}

	var mcpSrv *mcp.Server
	if opts.mcp {
		mcfg := mcp.Config{
			Retriever: s.retriever,
			Assets:    s.loader,
			Writer:    s.writer,
			K:         cfg.Retrieval.K,
		}
		if s.generator != nil {
			mcfg.Generator = s.generator
		}
		if s.recorder != nil {
			mcfg.Recorder = s.recorder
		}
		if mcpSrv, err = mcp.NewServer(mcfg); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s (index %s)\n", opts.listen, cfg.Paths.DataDir)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpSrv.Run(gctx)
	})

	// Warm the assets so the first request does not pay for the load. A
	// missing index is reported by /readyz rather than failing the server.
	g.Go(func() error {
		if _, err := s.loader.Get(gctx); err != nil && gctx.Err() == nil {
			slog.Warn("assets_preload_failed", slog.String("error", err.Error()))
		}
		return nil
	})

	if opts.watch {
		g.Go(func() error {
			return retrieve.WatchManifest(gctx, s.loader, watcher.Options{})
		})
	}

	if mcpSrv != nil {
		g.Go(func() error {
			// The MCP client owns the process lifetime: when stdin closes
			// everything shuts down.
			defer cancel()
			return mcpSrv.Serve(gctx)
		})
	}

	slog.Info("serve_started",
		slog.String("listen", opts.listen),
		slog.Bool("mcp", opts.mcp),
		slog.Bool("watch", opts.watch),
		slog.String("data_dir", cfg.Paths.DataDir))

	err = g.Wait()
	slog.Info("serve_stopped")
	return err
}
