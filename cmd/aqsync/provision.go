package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ecodata/aqsync/internal/iodb"
	"github.com/ecodata/aqsync/internal/ioschema"
	"github.com/ecodata/aqsync/pkg/db"
	"github.com/ecodata/aqsync/pkg/schema"
)

var (
	forceProvision bool
)

func getProvisionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Create the store schema and policies",
		Long: `Provision the air quality store from scratch.

This command:
  1. Connects to PostgreSQL using configuration settings
  2. Checks for existing tables and prompts for confirmation if found
  3. Creates all tables using GORM AutoMigrate
  4. Converts measurements into a hypertable, applies the compression
     policy and the hourly/daily rollup views
  5. Seeds the country and pollutant lookup tables

Provisioning is idempotent: running it against an existing store only
applies what is missing. Use --force to drop everything first.

Examples:
  aqsync provision
  aqsync provision --force
  aqsync provision --config custom.yaml`,
		RunE: runProvision,
	}

	cmd.Flags().BoolVar(&forceProvision, "force", false,
		"drop existing tables before provisioning (destructive)")

	return cmd
}

func runProvision(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := getConfig()

	var op db.Operator = iodb.New()
	if err := op.Connect(ctx, &cfg.Database); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer op.Close()

	fmt.Printf("Connected to database: %s@%s:%d/%s\n",
		cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)

	hasTables, err := op.HasTables(ctx)
	if err != nil {
		return fmt.Errorf("failed to check for existing tables: %w", err)
	}

	if hasTables && forceProvision {
		fmt.Println("Dropping all existing tables (--force enabled)...")
		if err := op.DropAllTables(ctx); err != nil {
			return fmt.Errorf("failed to drop tables: %w", err)
		}
		fmt.Println("✓ All tables dropped")
	} else if hasTables && !confirmReprovision() {
		fmt.Println("Aborted. No changes made to the database.")
		return nil
	}

	sm := ioschema.NewManager(op, schema.PoliciesFromConfig(&cfg.Store), catalog, log)

	fmt.Println("Provisioning schema, hypertable and rollup policies...")
	if err := sm.Provision(ctx); err != nil {
		return fmt.Errorf("failed to provision store: %w", err)
	}

	fmt.Println("\n✓ Store provisioning complete!")
	fmt.Println("\nNext steps:")
	fmt.Println("  - Run 'aqsync sync --mode full' for the initial import")
	fmt.Println("  - Run 'aqsync serve' to expose the REST API")
	return nil
}

// confirmReprovision asks before touching a store that already has
// tables. Provisioning is additive, but the checkpoint is cheap.
func confirmReprovision() bool {
	fmt.Println("\nDatabase already contains tables in the airquality schema.")
	fmt.Println("Provisioning will keep data and only apply missing objects.")
	fmt.Print("\nDo you want to continue? (yes/no): ")

	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "yes" || response == "y"
}
