package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

const serviceName = "equipment-health"

var (
	seedFile string

	rootCmd = &cobra.Command{
		Use:   "equipment-health",
		Short: "Equipment health and maintenance lifecycle engine",
		Long: `equipment-health tracks asset health observations, triages alerts,
converts them into work orders and keeps the spare parts ledger consistent.`,
		SilenceUsage: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, event subscribers and the health aggregator",
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Postgres schema",
		RunE:  runMigrate,
	}

	seedCmd = &cobra.Command{
		Use:   "seed",
		Short: "Onboard assets and register spare parts from a YAML catalog",
		RunE:  runSeed,
	}
)

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "seed.yaml", "catalog file with assets and parts")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}

// Execute - 인자 없이 실행하면 serve
func Execute() {
	if len(os.Args) == 1 {
		rootCmd.SetArgs([]string{"serve"})
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
