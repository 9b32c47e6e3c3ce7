package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jacentio/tombstone/internal/shop"
	"github.com/jacentio/tombstone/store"
)

// deleter loads an entity by key and deletes it.
type deleter func(ctx context.Context, key string, permanent bool) error

func deleteByKey[T store.Entity](entityType string) deleter {
	return func(ctx context.Context, key string, permanent bool) error {
		repo := store.NewRepository[T](entityType, app.backend, app.engine)
		e, err := repo.GetByKey(ctx, key)
		if err != nil {
			return err
		}
		_, err = repo.Delete(ctx, e, permanent)
		return err
	}
}

var deleters = map[string]deleter{
	shop.TypeCustomer:  deleteByKey[*shop.Customer](shop.TypeCustomer),
	shop.TypeProfile:   deleteByKey[*shop.Profile](shop.TypeProfile),
	shop.TypeOrder:     deleteByKey[*shop.Order](shop.TypeOrder),
	shop.TypeOrderLine: deleteByKey[*shop.OrderLine](shop.TypeOrderLine),
	shop.TypeNote:      deleteByKey[*shop.Note](shop.TypeNote),
}

var deletePermanent bool

var deleteCmd = &cobra.Command{
	Use:   "delete <type> <id>",
	Short: "Soft-delete an entity and its dependents",
	Long: `Soft-delete an entity and everything that cascades from it in one commit.
With --permanent the row is removed and the database's own referential
actions apply.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		del, ok := deleters[args[0]]
		if !ok {
			return fmt.Errorf("unknown type %q", args[0])
		}
		if err := del(cmd.Context(), args[1], deletePermanent); err != nil {
			return fmt.Errorf("delete %s/%s: %w", args[0], args[1], err)
		}
		app.logger.Info("deleted",
			zap.String("type", args[0]),
			zap.String("id", args[1]),
			zap.Bool("permanent", deletePermanent),
		)
		return nil
	},
}

func init() {
	deleteCmd.Flags().BoolVar(&deletePermanent, "permanent", false, "remove the row instead of soft-deleting it")
}
