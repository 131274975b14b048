package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/config"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/resolve"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/validation"
)

// tenantsPath lists the companies an operator may act for.
const tenantsPath = "/api/companies"

func newTenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tenant",
		Aliases: []string{"tn"},
		Short:   "Show or switch the active tenant",
	}
	cmd.AddCommand(newTenantUseCmd())
	cmd.AddCommand(newTenantShowCmd())
	cmd.AddCommand(newTenantClearCmd())
	return cmd
}

func newTenantUseCmd() *cobra.Command {
	var exact bool

	cmd := &cobra.Command{
		Use:   "use <id|name>",
		Short: "Switch the active tenant and remember it",
		Long: `Switch the active tenant and remember it for this backend.

The argument is matched against the companies listed at /api/companies:
an exact id first, then an exact name, then the closest fuzzy name match.
Use --exact to skip the lookup and take the argument as the id.`,
		Example: `  consolectl tenant use acme
  consolectl tenant use "Acme Corp"
  consolectl tenant use 42 --exact`,
		Args: cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			query := strings.TrimSpace(args[0])

			c, err := getConsole(cmd)
			if err != nil {
				return err
			}
			ctx := cmdContext(cmd)

			id := query
			if !exact {
				items, err := c.List(ctx, tenantsPath, 0)
				if err != nil {
					return err
				}
				id, err = resolve.FuzzyMatch(query, resolve.FromList(items))
				if err != nil {
					var amb *resolve.AmbiguousError
					if errors.As(err, &amb) {
						return fmt.Errorf("%w\nUse the id, or pass --exact", amb)
					}
					return err
				}
			}
			if err := validation.ValidateTenantID(id); err != nil {
				return err
			}

			c.Tenant().Set(id)
			if err := config.SaveTenant(c.Config().BaseURL, id); err != nil {
				return fmt.Errorf("tenant switched for this run only: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Active tenant: %s\n", id)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&exact, "exact", false, "Use the argument as the tenant id without a lookup")
	return cmd
}

func newTenantShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active tenant",
		Args:  cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			c, err := getConsole(cmd)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd, map[string]any{
					"tenant":   c.Tenant().Get(),
					"active":   c.Tenant().Active(),
					"base_url": c.Config().BaseURL,
				})
			}
			if !c.Tenant().Active() {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No active tenant")
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), c.Tenant().Get())
			return nil
		}),
	}
}

func newTenantClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the active tenant",
		Args:  cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			c, err := getConsole(cmd)
			if err != nil {
				return err
			}
			c.Tenant().Clear()
			if err := config.DeleteTenant(c.Config().BaseURL); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Tenant cleared")
			return nil
		}),
	}
}
