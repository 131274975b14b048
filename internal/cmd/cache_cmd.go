package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cache",
		Aliases: []string{"ch"},
		Short:   "Manage the response cache",
	}
	cmd.AddCommand(newCacheClearCmd())
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Invalidate every cached response for this backend",
		Args:  cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			c, err := getConsole(cmd)
			if err != nil {
				return err
			}
			if err := c.Reload(cmdContext(cmd)); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared for %s\n", c.Config().BaseURL)
			return nil
		}),
	}
}
