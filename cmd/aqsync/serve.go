package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/ecodata/aqsync/internal/iodb"
	"github.com/ecodata/aqsync/internal/iofetch"
	"github.com/ecodata/aqsync/internal/ioledger"
	"github.com/ecodata/aqsync/internal/iometrics"
	"github.com/ecodata/aqsync/internal/ioparse"
	"github.com/ecodata/aqsync/internal/ioserver"
	"github.com/ecodata/aqsync/internal/iosync"
	"github.com/ecodata/aqsync/internal/ioupsert"
)

func getServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Expose the REST trigger and status API",
		Long: `Run the HTTP server until interrupted.

Endpoints:
  POST /api/v1/sync             trigger a run, answers 202 with the operation id
  GET  /api/v1/sync             list recent operations (?limit=)
  GET  /api/v1/sync/running     list running operations
  GET  /api/v1/sync/:id         one operation
  POST /api/v1/sync/:id/cancel  cooperative cancellation
  GET  /healthz                 liveness and database reachability
  GET  /metrics                 Prometheus metrics

Examples:
  aqsync serve
  AQSYNC_SERVER_PORT=9090 aqsync serve`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := getConfig()

	op := iodb.New()
	if err := op.Connect(ctx, &cfg.Database); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer op.Close()

	clock := clockwork.NewRealClock()
	ledger := ioledger.New(op.Pool(), clock)
	planner := iosync.NewPlanner(&cfg.Sync, &cfg.Source, catalog, ledger, clock)
	orch := iosync.NewOrchestrator(
		planner,
		iofetch.New(&cfg.Source, log),
		ioparse.New(log),
		ioupsert.New(op.Pool(), cfg.Database.BatchSize, log),
		ledger,
		iometrics.New(),
		&cfg.Sync,
		clock,
		log,
	)

	srv := ioserver.New(&cfg.Server, orch, ledger, op, log)
	return srv.Run(ctx)
}
