package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfgStore, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, cfgStore)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			fmt.Println("Database is up to date.")
			return nil
		},
	}
}
