package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/ecodata/aqsync/internal/iodb"
	"github.com/ecodata/aqsync/internal/ioledger"
	"github.com/ecodata/aqsync/pkg/schema"
)

var (
	statusLimit   int
	statusRunning bool
)

func getStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Inspect recent sync operations",
		Long: `Print recent sync operations from the ledger, newest first.

Examples:
  aqsync status
  aqsync status --limit 50
  aqsync status --running`,
		RunE: runStatus,
	}

	cmd.Flags().IntVar(&statusLimit, "limit", 20, "number of operations to show")
	cmd.Flags().BoolVar(&statusRunning, "running", false, "show only running operations")

	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := getConfig()

	op := iodb.New()
	if err := op.Connect(ctx, &cfg.Database); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer op.Close()

	ledger := ioledger.New(op.Pool(), clockwork.NewRealClock())

	var ops []schema.SyncOperation
	var err error
	if statusRunning {
		ops, err = ledger.Running(ctx)
	} else {
		ops, err = ledger.Recent(ctx, statusLimit)
	}
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}

	if len(ops) == 0 {
		fmt.Println("No sync operations found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OPERATION\tMODE\tSTATUS\tSTARTED\tDURATION\tDOWNLOADED\tINSERTED\tUNITS")
	for _, o := range ops {
		duration := "-"
		if o.EndedAt != nil {
			duration = o.EndedAt.Sub(o.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d/%d\n",
			shortID(o.OperationID),
			o.OperationType,
			o.Status,
			humanize.Time(o.StartedAt),
			duration,
			humanize.Comma(o.RecordsDownloaded),
			humanize.Comma(o.RecordsInserted),
			o.UnitsSucceeded,
			o.UnitsTotal,
		)
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
