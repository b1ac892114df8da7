package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arnold17091984/accounting-automation/internal/model"
)

func approvalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "List and decide pending approvals",
	}
	cmd.AddCommand(approvalsListCmd())
	cmd.AddCommand(approvalsDecideCmd())
	return cmd
}

func approvalsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending approval requests",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			entity, _ := cmd.Flags().GetString("entity")

			cfgStore, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, cfgStore)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			reqs, err := store.ListPendingApprovals(ctx, entity)
			if err != nil {
				return err
			}
			if len(reqs) == 0 {
				fmt.Println("No pending approvals.")
				return nil
			}

			for _, req := range reqs {
				fmt.Printf("%s  %-8s %-16s %12s  %s\n",
					req.ID, req.Entity, req.Type, req.Amount.StringFixed(2),
					strings.Join(req.Reasons, "; "))
			}
			return nil
		},
	}
	cmd.Flags().String("entity", "", "limit to one entity")
	return cmd
}

func approvalsDecideCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decide <request-id>",
		Short: "Approve or reject a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			approve, _ := cmd.Flags().GetBool("approve")
			reject, _ := cmd.Flags().GetBool("reject")
			decider, _ := cmd.Flags().GetString("decider")
			notes, _ := cmd.Flags().GetString("notes")
			account, _ := cmd.Flags().GetString("account")
			category, _ := cmd.Flags().GetString("category")

			if approve == reject {
				return fmt.Errorf("exactly one of --approve or --reject is required")
			}

			eng, store, _, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var corrected *model.Classification
			if account != "" {
				corrected = &model.Classification{
					AccountCode: account,
					Category:    category,
					Method:      model.MethodHuman,
					Confidence:  1.0,
				}
			}

			if err := eng.Decide(ctx, args[0], approve, decider, notes, corrected); err != nil {
				return err
			}

			if approve {
				fmt.Println("Approved and posted.")
			} else {
				fmt.Println("Rejected.")
			}
			return nil
		},
	}
	cmd.Flags().Bool("approve", false, "approve the request")
	cmd.Flags().Bool("reject", false, "reject the request")
	cmd.Flags().String("decider", "", "who is deciding (required)")
	cmd.Flags().String("notes", "", "decision notes; required for rejection")
	cmd.Flags().String("account", "", "corrected account code (optional)")
	cmd.Flags().String("category", "", "corrected category (optional)")
	_ = cmd.MarkFlagRequired("decider")
	return cmd
}
