package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacentio/tombstone/internal/shop"
	"github.com/jacentio/tombstone/store"
)

// lister reads one page of an entity type.
type lister func(ctx context.Context, opts store.ListOptions) (any, error)

func listPage[T store.Entity](entityType string) lister {
	return func(ctx context.Context, opts store.ListOptions) (any, error) {
		return store.NewRepository[T](entityType, app.backend, app.engine).List(ctx, opts)
	}
}

var listers = map[string]lister{
	shop.TypeCustomer:  listPage[*shop.Customer](shop.TypeCustomer),
	shop.TypeProfile:   listPage[*shop.Profile](shop.TypeProfile),
	shop.TypeOrder:     listPage[*shop.Order](shop.TypeOrder),
	shop.TypeOrderLine: listPage[*shop.OrderLine](shop.TypeOrderLine),
	shop.TypeNote:      listPage[*shop.Note](shop.TypeNote),
}

var listFlags struct {
	index       int
	size        int
	orderBy     string
	withDeleted bool
	where       []string
}

var listCmd = &cobra.Command{
	Use:       "list <type>",
	Short:     "Print one page of entities as JSON",
	Long:      "Print one page of entities as JSON. Types: customer, profile, order, order_line, note.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{shop.TypeCustomer, shop.TypeProfile, shop.TypeOrder, shop.TypeOrderLine, shop.TypeNote},
	RunE: func(cmd *cobra.Command, args []string) error {
		list, ok := listers[args[0]]
		if !ok {
			return fmt.Errorf("unknown type %q", args[0])
		}
		where, err := parseWhere(listFlags.where)
		if err != nil {
			return err
		}

		page, err := list(cmd.Context(), store.ListOptions{
			Where:       where,
			OrderBy:     listFlags.orderBy,
			Index:       listFlags.index,
			Size:        listFlags.size,
			WithDeleted: listFlags.withDeleted,
		})
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), page)
	},
}

func init() {
	listCmd.Flags().IntVar(&listFlags.index, "page", 0, "zero-based page index")
	listCmd.Flags().IntVar(&listFlags.size, "size", 0, "page size (default from config)")
	listCmd.Flags().StringVar(&listFlags.orderBy, "order-by", "", "column to sort by, prefix with - for descending")
	listCmd.Flags().BoolVar(&listFlags.withDeleted, "with-deleted", false, "include soft-deleted rows")
	listCmd.Flags().StringArrayVar(&listFlags.where, "where", nil, "equality filter as column=value, repeatable")
}

// parseWhere turns column=value pairs into ListOptions conditions.
func parseWhere(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	where := make(map[string]any, len(pairs))
	for _, p := range pairs {
		col, val, ok := strings.Cut(p, "=")
		if !ok || col == "" {
			return nil, fmt.Errorf("invalid filter %q, want column=value", p)
		}
		where[col] = val
	}
	return where, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
