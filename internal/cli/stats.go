package cli

import (
	"github.com/spf13/cobra"

	"fixshop/internal/stats"
)

func init() {
	rootCmd.AddCommand(statsCmd)
}

var statsCmd = &cobra.Command{
	Use:   "stats TENANT_ID",
	Short: "Print a tenant's dashboard statistics, revenue included",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		tenant, err := e.repo.GetTenant(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		loc, err := e.cfg.Location()
		if err != nil {
			return err
		}
		svc := stats.NewService(e.repo, nil, nil, e.logger, stats.Options{Location: loc})
		snap, err := svc.Compute(cmd.Context(), *tenant)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), snap)
	},
}
