package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/smallbiznis/numberpool/internal/clock"
	"github.com/smallbiznis/numberpool/internal/config"
	"github.com/smallbiznis/numberpool/internal/idgen"
	"github.com/smallbiznis/numberpool/internal/importer"
	"github.com/smallbiznis/numberpool/internal/lifecycle"
	"github.com/smallbiznis/numberpool/internal/migration"
	"github.com/smallbiznis/numberpool/internal/numberhistory"
	"github.com/smallbiznis/numberpool/internal/observability"
	"github.com/smallbiznis/numberpool/internal/phonenumber"
	"github.com/smallbiznis/numberpool/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var actor string

func main() {
	root := &cobra.Command{
		Use:           "importer",
		Short:         "Bulk provision and assign pooled numbers from CSV or XLSX files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&actor, "actor", "importer", "actor recorded on history entries")

	root.AddCommand(
		&cobra.Command{
			Use:   "provision FILE",
			Short: "Create numbers listed in FILE (columns: full_number, is_golden)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd.Context(), args[0], func(ctx context.Context, imp *importer.Importer, rows []importer.Row) (importer.Summary, error) {
					return imp.Provision(ctx, rows)
				})
			},
		},
		&cobra.Command{
			Use:   "assign FILE",
			Short: "Assign numbers listed in FILE (columns: full_number, subscriber_name, company_name, gateway, gateway_username)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd.Context(), args[0], func(ctx context.Context, imp *importer.Importer, rows []importer.Row) (importer.Summary, error) {
					return imp.Assign(ctx, rows, actor)
				})
			},
		},
		&cobra.Command{
			Use:   "unassign FILE",
			Short: "Release numbers listed in FILE into cooloff (columns: full_number, notes)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd.Context(), args[0], func(ctx context.Context, imp *importer.Importer, rows []importer.Row) (importer.Summary, error) {
					return imp.Unassign(ctx, rows, actor)
				})
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type importFunc func(ctx context.Context, imp *importer.Importer, rows []importer.Row) (importer.Summary, error)

func run(ctx context.Context, path string, fn importFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := importer.ReadRows(path, f)
	if err != nil {
		return err
	}

	var imp *importer.Importer
	app := fx.New(
		fx.NopLogger,
		config.Module,
		observability.Module,
		idgen.Module,
		db.Module,
		migration.Module,
		clock.Module,
		phonenumber.Module,
		numberhistory.Module,
		lifecycle.Module,
		importer.Module,
		fx.Populate(&imp),
	)
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = app.Stop(context.Background()) }()

	summary, err := fn(ctx, imp, rows)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d rows failed", summary.Failed, summary.Total)
	}
	return nil
}
