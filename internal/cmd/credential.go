package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/config"
)

func newCredentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "credential",
		Aliases: []string{"cred"},
		Short:   "Manage the admin credential for privileged endpoints",
	}
	cmd.AddCommand(newCredentialSetCmd())
	cmd.AddCommand(newCredentialClearCmd())
	cmd.AddCommand(newCredentialStatusCmd())
	return cmd
}

func newCredentialSetCmd() *cobra.Command {
	var fromStdin bool

	cmd := &cobra.Command{
		Use:   "set [token]",
		Short: "Store the admin credential in the keychain",
		Example: `  consolectl credential set s3cr3t
  printf '%s' "$ADMIN_KEY" | consolectl credential set --stdin`,
		Args: cobra.MaximumNArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			var token string
			switch {
			case fromStdin && len(args) > 0:
				return fmt.Errorf("--stdin cannot be combined with a token argument")
			case fromStdin:
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read credential from stdin: %w", err)
				}
				token = line
			case len(args) == 1:
				token = args[0]
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return fmt.Errorf("credential is required")
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := config.SaveCredential(cfg.BaseURL, token); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Admin credential stored for %s\n", cfg.BaseURL)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the credential from stdin")
	return cmd
}

func newCredentialClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored admin credential",
		Args:  cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := config.DeleteCredential(cfg.BaseURL); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Admin credential removed")
			return nil
		}),
	}
}

func newCredentialStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether an admin credential is available and where it applies",
		Args:  cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			c, err := getConsole(cmd)
			if err != nil {
				return err
			}
			token, ok := c.Credentials().Get()
			rules := c.Config().Rules()

			if wantJSON(cmd) {
				return printJSON(cmd, map[string]any{
					"base_url":   c.Config().BaseURL,
					"configured": ok,
					"prefixes":   rules.Prefixes,
					"patterns":   rules.Patterns,
				})
			}

			out := cmd.OutOrStdout()
			if ok {
				_, _ = fmt.Fprintf(out, "Admin credential: %s\n", maskToken(token))
			} else {
				_, _ = fmt.Fprintln(out, "Admin credential: not set")
			}
			_, _ = fmt.Fprintln(out, "Privileged paths:")
			for _, p := range rules.Prefixes {
				_, _ = fmt.Fprintf(out, "  %s/...\n", strings.TrimSuffix(p, "/"))
			}
			for _, p := range rules.Patterns {
				_, _ = fmt.Fprintf(out, "  %s\n", p)
			}
			return nil
		}),
	}
}

// maskToken keeps the last four characters of long tokens.
func maskToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", len(token)-4) + token[len(token)-4:]
}
