package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewProductsCommand creates the products command, which prints the storefront list.
func NewProductsCommand(rootOpts *RootOptions) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "products",
		Short: "List visible products as the storefront sees them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, rootOpts, func(ctx context.Context, engine Engine) error {
				if engine.Products == nil {
					return NewExitError(ExitCommandError, "product catalog unavailable")
				}
				get := engine.Products.Get
				if refresh {
					get = engine.Products.Refresh
				}
				listing, err := get(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list products", err)
				}
				type productLine struct {
					Slug        string `json:"slug"`
					Title       string `json:"title"`
					Price       string `json:"price"`
					Currency    string `json:"currency"`
					StockStatus string `json:"stockStatus"`
					Quantity    int    `json:"stockQuantity"`
				}
				lines := make([]productLine, 0, len(listing.Products))
				for _, p := range listing.Products {
					lines = append(lines, productLine{
						Slug:        p.Slug,
						Title:       p.Title,
						Price:       p.Price.StringFixed(2),
						Currency:    p.Currency,
						StockStatus: string(p.StockStatus),
						Quantity:    p.StockQuantity,
					})
				}
				return formatter{format: rootOpts.Format, out: cmd.OutOrStdout()}.emit(lines, func(w io.Writer) {
					for _, line := range lines {
						fmt.Fprintf(w, "%-40s %8s %s  %-12s %s\n", line.Slug, line.Price, line.Currency, line.StockStatus, line.Title)
					}
					fmt.Fprintf(w, "%d products (fromCache=%t)\n", len(lines), listing.FromCache)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache")
	return cmd
}
