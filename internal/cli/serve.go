package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"snapdiff/internal/grpcserver"
	"snapdiff/internal/server"

	"github.com/spf13/cobra"
)

func newServeCmd(root *Root) *cobra.Command {
	var (
		addr     string
		grpcAddr string
		watch    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve verdict history and live results",
		Long: `Start the HTTP report API and the gRPC history service.

Endpoints:
  /healthz      liveness
  /verdicts     recent verdicts (?identity=&limit=)
  /flaky        identities that did not settle or flipped
  /stream       server-sent events for each finished comparison
  /ws           the same events over a websocket
  /artifacts/   captures and diff renders

Examples:
  snapdiff serve --addr :8080 --grpc-addr :9090
  snapdiff serve --watch   # also compare captures landing in the inbox`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				root.cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("grpc-addr") {
				root.cfg.Server.GRPCAddr = grpcAddr
			}
			ctx := cmd.Context()
			if !watch {
				return root.serveFn(ctx, root)
			}

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			watchErr := make(chan error, 1)
			go func() { watchErr <- root.watch(ctx, cmd, root.cfg.Paths.Inbox, root.cfg.Thresholds()) }()
			err := root.serveFn(ctx, root)
			cancel()
			if werr := <-watchErr; err == nil {
				err = werr
			}
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP address (host:port)")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", ":9090", "gRPC address (host:port), empty disables it")
	cmd.Flags().BoolVar(&watch, "watch", false, "compare captures landing in paths.inbox while serving")
	return cmd
}

// defaultServe runs the HTTP server and, when configured, the gRPC service
// until ctx is done or either fails.
func defaultServe(ctx context.Context, r *Root) error {
	if r.pipeline == nil {
		return fmt.Errorf("pipeline unavailable for server startup")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	area := filepath.Join(r.cfg.Paths.RepoRoot, r.cfg.Paths.ScreenshotArea)
	httpSrv := server.NewServer(r.cfg.Server.Addr, r.store, r.pipeline, area, r.log)

	errs := make(chan error, 2)
	running := 1
	go func() { errs <- httpSrv.Start(ctx) }()
	if r.cfg.Server.GRPCAddr != "" {
		running++
		grpcSrv := grpcserver.NewHistoryServer(r.store, r.log)
		go func() { errs <- grpcSrv.Serve(ctx, r.cfg.Server.GRPCAddr) }()
	}

	r.log.Info("server ready",
		"addr", r.cfg.Server.Addr,
		"grpc_addr", r.cfg.Server.GRPCAddr,
		"artifacts", area,
	)

	var first error
	for i := 0; i < running; i++ {
		if err := <-errs; err != nil && first == nil {
			first = err
			cancel()
		}
	}
	return first
}
