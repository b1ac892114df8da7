package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/arnold17091984/accounting-automation/internal/model"
)

func alertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List and acknowledge budget alerts",
	}
	cmd.AddCommand(alertsListCmd())
	cmd.AddCommand(alertsAckCmd())
	return cmd
}

func alertsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <entity> <period>",
		Short: "List budget alerts for an entity and period",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			account, _ := cmd.Flags().GetString("account")

			period, err := model.ParsePeriod(args[1])
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

			alerts, err := store.GetAlerts(ctx, args[0], account, period)
			if err != nil {
				return err
			}
			if len(alerts) == 0 {
				fmt.Println("No alerts.")
				return nil
			}

			for _, a := range alerts {
				ack := " "
				if a.Acknowledged {
					ack = "x"
				}
				fmt.Printf("[%s] #%d %s/%s %s  %d%% threshold  %.1f%% used (%s of %s)\n",
					ack, a.ID, a.Entity, a.AccountCode, a.Period,
					a.ThresholdPct, a.Utilization,
					a.Actual.StringFixed(2), a.Budget.StringFixed(2))
			}
			return nil
		},
	}
	cmd.Flags().String("account", "", "limit to one account code")
	return cmd
}

func alertsAckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ack <alert-id>",
		Short: "Acknowledge an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid alert id %q", args[0])
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

			if err := store.AcknowledgeAlert(ctx, id); err != nil {
				return err
			}
			fmt.Println("Acknowledged.")
			return nil
		},
	}
}
