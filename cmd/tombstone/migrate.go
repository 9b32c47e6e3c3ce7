package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the shop tables, collections or indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.backend.migrate(cmd.Context()); err != nil {
			return err
		}
		app.logger.Info("schema created", zap.String("backend", app.config.Backend))
		return nil
	},
}
