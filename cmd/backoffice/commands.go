package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	database "github.com/verone/backoffice/db"
	"github.com/verone/backoffice/internal/logger"
)

const sessionCleanupInterval = time.Minute

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the bank sync scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			a.sessions.StartCleanup(ctx, sessionCleanupInterval)

			scheduler, err := StartScheduler(ctx, cfg.QontoSyncSchedule, a.bankingService, a.ruleService)
			if err != nil {
				return fmt.Errorf("start scheduler: %w", err)
			}
			if scheduler != nil {
				defer func() { <-scheduler.Stop().Done() }()
			}

			server := NewServer(a.services())
			server.RegisterRoutes(cfg.AllowedOrigin)

			httpServer := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           server,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.L.Info("Server starting", "port", cfg.Port)
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
				logger.L.Info("Shutting down server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			}
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := database.RunMigrations(cfg.DBConnectionString); err != nil {
				return err
			}
			logger.L.Info("database is up to date")
			return nil
		},
	}
}

func syncBankCmd() *cobra.Command {
	var (
		since      string
		applyRules bool
	)
	cmd := &cobra.Command{
		Use:   "sync-bank",
		Short: "Import bank transactions from Qonto",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var from time.Time
			if since != "" {
				parsed, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("--since must be YYYY-MM-DD: %w", err)
				}
				from = parsed
			}

			a, err := appFromCommand(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if applyRules && from.IsZero() {
				return syncAndApply(cmd.Context(), a.bankingService, a.ruleService)
			}
			result, err := a.bankingService.SyncTransactions(cmd.Context(), from)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fetched %d, inserted %d, updated %d, expenses created %d\n",
				result.Fetched, result.Inserted, result.Updated, result.ExpensesCreated)
			if applyRules {
				_, err = a.ruleService.ApplyAllRules(cmd.Context())
			}
			return err
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "only transactions updated since this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&applyRules, "apply-rules", true, "apply matching rules after the sync")
	return cmd
}

func applyRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply-rules",
		Short: "Classify unclassified expenses with every enabled matching rule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromCommand(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.ruleService.ApplyAllRules(cmd.Context())
			if err != nil {
				return err
			}
			for _, outcome := range result.Outcomes {
				if outcome.Error != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "rule %s failed: %s\n", outcome.RuleID, outcome.Error)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d rules applied, %d expenses classified, %d rules failed\n",
				result.RulesApplied, result.ExpensesClassified, result.FailedRules)
			return nil
		},
	}
}

func createUserCmd() *cobra.Command {
	var emailAddr, fullName, password string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a staff account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromCommand(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			u, err := a.userService.CreateUser(cmd.Context(), emailAddr, fullName, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&emailAddr, "email", "", "login e-mail")
	cmd.Flags().StringVar(&fullName, "name", "", "full name")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func appFromCommand(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(cmd.Context(), cfg)
}
