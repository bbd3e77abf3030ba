package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/sakif/guildgate/internal/model"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema",
		Long: `Open the configured store, applying any pending migrations.

The store is Postgres when DATABASE_URL is set, otherwise the sqlite file
at DB_PATH.`,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			driver := "sqlite " + a.cfg.Database.Path
			if a.cfg.Database.URL != "" {
				driver = "postgres"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", driver)
			return nil
		}),
	}
}

func promoteCmd() *cobra.Command {
	var demote bool

	cmd := &cobra.Command{
		Use:   "promote [profile-id]",
		Short: "Grant admin authority to a profile",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			role := model.RoleAdmin
			if demote {
				role = model.RoleUser
			}
			if err := a.store.SetRole(cmd.Context(), args[0], role); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], role)
			return nil
		}),
	}

	cmd.Flags().BoolVar(&demote, "demote", false, "revoke admin authority instead")

	return cmd
}

func itemsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "Manage the store catalog",
	}
	cmd.AddCommand(itemsListCmd())
	cmd.AddCommand(itemsUpsertCmd())
	return cmd
}

func itemsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog items",
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			items, err := a.store.ListItems(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPRICE USD\tACTIVE")
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", it.ID, it.Name, it.PriceUSD.StringFixed(2), it.Active)
			}
			return tw.Flush()
		}),
	}
}

func itemsUpsertCmd() *cobra.Command {
	var (
		name     string
		price    string
		inactive bool
	)

	cmd := &cobra.Command{
		Use:   "upsert [item-id]",
		Short: "Create or update a catalog item",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			usd, err := decimal.NewFromString(price)
			if err != nil || !usd.IsPositive() {
				return fmt.Errorf("--price must be a positive decimal, got %q", price)
			}
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			item := &model.Item{ID: args[0], Name: name, PriceUSD: usd, Active: !inactive}
			if err := a.store.UpsertItem(cmd.Context(), item); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "item %s saved at %s USD\n", item.ID, usd.StringFixed(2))
			return nil
		}),
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&price, "price", "", "price in USD, e.g. 9.99")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "hide the item from checkout")

	return cmd
}
