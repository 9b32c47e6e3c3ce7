package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jacentio/tombstone/internal/shop"
)

var seedFlags struct {
	customers int
	orders    int
	lines     int
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert generated customers with profiles, orders and notes",
	RunE: func(cmd *cobra.Command, args []string) error {
		fixtures := make([]shop.Fixture, 0, seedFlags.customers)
		for i := 0; i < seedFlags.customers; i++ {
			fixtures = append(fixtures, shop.Generate(fmt.Sprintf("customer%d", i+1), seedFlags.orders, seedFlags.lines))
		}
		if err := shop.Seed(cmd.Context(), app.backend, time.Now().UTC(), fixtures...); err != nil {
			return err
		}

		for _, f := range fixtures {
			fmt.Fprintln(cmd.OutOrStdout(), f.Customer.ID)
		}
		app.logger.Info("seeded",
			zap.Int("customers", len(fixtures)),
			zap.Int("orders_per_customer", seedFlags.orders),
		)
		return nil
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedFlags.customers, "customers", 3, "number of customers")
	seedCmd.Flags().IntVar(&seedFlags.orders, "orders", 2, "orders per customer")
	seedCmd.Flags().IntVar(&seedFlags.lines, "lines", 2, "lines per order, at most 4")
}
