package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/acme-isv/qindex-broker/pkg/config"
	"github.com/acme-isv/qindex-broker/pkg/validate"
)

type checker interface {
	Run(ctx context.Context, cfg *config.FederationConfig) []validate.Result
}

func newValidateCmd(debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the federation configuration against the ISV account",
		Long: `Runs non-fatal sanity checks: ISV credential validity, federation role
existence and policies, and (for the authorization-code flow) redirect
endpoint reachability. Every check reports, even when earlier ones fail.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			logger := newLogger(*debug)
			defer func() { _ = logger.Sync() }()
			logger.Debug("running configuration checks",
				zap.String("flow", cfg.Flow().String()),
				zap.String("region", cfg.IDCRegion()))

			v, err := validate.New(cmd.Context(), cfg.IDCRegion())
			if err != nil {
				return err
			}
			return runValidate(cmd.Context(), cfg, v, os.Stdout)
		},
	}
}

func runValidate(ctx context.Context, cfg *config.FederationConfig, v checker, out io.Writer) error {
	results := v.Run(ctx, cfg)

	table := tablewriter.NewWriter(out)
	table.Options(tablewriter.WithHeader([]string{"Check", "Status", "Detail"}))

	failures := 0
	for _, r := range results {
		status := "PASS"
		if !r.OK {
			status = "FAIL"
			failures++
		}
		if err := table.Append([]string{r.Name, status, r.Detail}); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d checks failed", failures, len(results))
	}
	fmt.Fprintf(out, "All %d checks passed.\n", len(results))
	return nil
}
