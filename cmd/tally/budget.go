package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/arnold17091984/accounting-automation/internal/budget"
	"github.com/arnold17091984/accounting-automation/internal/model"
)

func budgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Manage budgets and view variance",
	}
	cmd.AddCommand(budgetSetCmd())
	cmd.AddCommand(budgetShowCmd())
	return cmd
}

func budgetSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <entity> <account-code> <period> <amount>",
		Short: "Set the budgeted amount for a scope",
		Long:  "Set the monthly budget for (entity, account, period). Period is YYYY-MM.",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			period, err := model.ParsePeriod(args[2])
			if err != nil {
				return err
			}
			amount, err := decimal.NewFromString(args[3])
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[3], err)
			}

			cfgStore, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, cfgStore)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entry := &model.BudgetEntry{
				Entity:      args[0],
				AccountCode: args[1],
				Year:        period.Year,
				Month:       period.Month,
				Amount:      amount,
			}
			if err := store.UpsertBudgetEntry(ctx, entry); err != nil {
				return err
			}
			fmt.Printf("Budget set: %s/%s %s = %s\n", args[0], args[1], period, amount.StringFixed(2))
			return nil
		},
	}
}

func budgetShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <entity> <account-code> <period>",
		Short: "Show budget variance for a scope",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			recompute, _ := cmd.Flags().GetBool("recompute")

			period, err := model.ParsePeriod(args[2])
			if err != nil {
				return err
			}

			cfgStore, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, cfgStore)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			engine := budget.NewEngine(store, nil, cfgStore)
			var snap *model.VarianceSnapshot
			if recompute {
				snap, err = engine.Recompute(ctx, args[0], args[1], period)
			} else {
				snap, err = engine.Snapshot(ctx, args[0], args[1], period)
			}
			if err != nil {
				return err
			}

			fmt.Printf("%s / %s / %s\n", snap.Entity, snap.AccountCode, snap.Period)
			fmt.Printf("  budget:   %s\n", snap.Budget.StringFixed(2))
			fmt.Printf("  actual:   %s\n", snap.Actual.StringFixed(2))
			fmt.Printf("  variance: %s\n", snap.Variance.StringFixed(2))
			if snap.Utilization != nil {
				fmt.Printf("  utilization: %.1f%%\n", *snap.Utilization)
			} else {
				fmt.Println("  utilization: n/a (no budget)")
			}
			return nil
		},
	}
	cmd.Flags().Bool("recompute", false, "derive actuals from posted transactions instead of the running total")
	return cmd
}
