package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/verone/backoffice/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "backoffice",
	Short: "Vérone back-office API and jobs",
	Long: `backoffice serves the Vérone back-office HTTP API and runs its maintenance jobs:
database migrations, bank synchronisation and matching-rule application.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(syncBankCmd())
	rootCmd.AddCommand(applyRulesCmd())
	rootCmd.AddCommand(createUserCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		logger.L.Error("command failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
