package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/debug"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/dryrun"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/iocontext"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/outfmt"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/validation"
)

// rootFlags holds global CLI flags
type rootFlags struct {
	BaseURL      string
	Tenant       string
	EnvFile      string
	Color        string
	Debug        bool
	Quiet        bool
	AllowPrivate bool
	NoCache      bool
	JQ           string
	Output       string
	Compact      bool
	Timeout      time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
	MetricsFile  string
	DryRun       bool
}

// flags holds the global command flags. This is package-level mutable state
// that MUST be reset at the start of every Execute() call; tests rely on it.
var flags = rootFlags{Color: "auto"}

// Execute runs the root command
func Execute(ctx context.Context, args []string) error {
	flags = rootFlags{Color: "auto"}
	current = nil
	defer closeSession(ctx)

	root := &cobra.Command{
		Use:                "consolectl",
		Short:              "Call the multi-tenant admin console backend",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableSuggestions: true, // enhanceUnknownError adds its own
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			switch strings.ToLower(strings.TrimSpace(flags.Color)) {
			case "auto", "":
			case "always":
				color.NoColor = false
			case "never":
				color.NoColor = true
			default:
				return fmt.Errorf("invalid --color %q: must be auto, always or never", flags.Color)
			}

			mode, err := outfmt.Parse(strings.ToLower(strings.TrimSpace(flags.Output)))
			if err != nil {
				return fmt.Errorf("invalid --output: %w", err)
			}
			ctx = outfmt.WithMode(ctx, mode)
			ctx = outfmt.WithCompact(ctx, flags.Compact)

			if cmd.Flags().Changed("max-retries") && flags.MaxRetries < 0 {
				return fmt.Errorf("--max-retries must be >= 0")
			}
			if cmd.Flags().Changed("retry-delay") && flags.RetryDelay < 0 {
				return fmt.Errorf("--retry-delay must be >= 0")
			}
			if cmd.Flags().Changed("timeout") && flags.Timeout <= 0 {
				return fmt.Errorf("--timeout must be > 0")
			}
			if err := validation.ValidateTenantID(strings.TrimSpace(flags.Tenant)); err != nil {
				return fmt.Errorf("invalid --tenant: %w", err)
			}

			debug.SetupLogger(cmd.ErrOrStderr(), flags.Debug)
			ctx = debug.WithDebug(ctx, flags.Debug)
			ctx = dryrun.WithDryRun(ctx, flags.DryRun)

			cmd.SetContext(ctx)
			return nil
		},
	}

	streams := iocontext.GetIO(ctx)
	root.SetIn(streams.In)
	root.SetOut(streams.Out)
	root.SetErr(streams.ErrOut)
	root.SetContext(ctx)
	root.SetArgs(args)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.BaseURL, "base-url", "", "Backend base URL (env CONSOLE_BASE_URL)")
	pf.StringVarP(&flags.Tenant, "tenant", "t", "", "Tenant id for this invocation (env CONSOLE_TENANT)")
	pf.StringVar(&flags.EnvFile, "env-file", "", "Dotenv file to read ('-' disables; default .env)")
	pf.StringVar(&flags.Color, "color", flags.Color, "Color output: auto|always|never")
	pf.BoolVar(&flags.Debug, "debug", false, "Enable debug logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "Q", false, "Suppress success notifications")
	pf.BoolVar(&flags.AllowPrivate, "allow-private", false, "Allow private/localhost URLs (unsafe)")
	pf.BoolVar(&flags.NoCache, "no-cache", false, "Bypass the on-disk response cache")
	pf.StringVar(&flags.JQ, "jq", "", "jq expression applied to the JSON response")
	pf.StringVarP(&flags.Output, "output", "o", "text", "Output format: text|json|jsonl")
	pf.BoolVar(&flags.Compact, "compact", false, "Print JSON on a single line")
	pf.DurationVar(&flags.Timeout, "timeout", 0, "HTTP request timeout (e.g., 30s, 2m)")
	pf.IntVar(&flags.MaxRetries, "max-retries", 0, "Retries for network errors and 5xx answers")
	pf.DurationVar(&flags.RetryDelay, "retry-delay", 0, "Initial backoff delay, doubled per retry")
	pf.StringVar(&flags.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	pf.BoolVar(&flags.DryRun, "dry-run", false, "Preview mutating requests without sending them")

	flagAlias(pf, "base-url", "url")
	flagAlias(pf, "debug", "dbg")
	flagAlias(pf, "timeout", "to")
	flagAlias(pf, "allow-private", "ap")
	flagAlias(pf, "max-retries", "retries")
	flagAlias(pf, "output", "out")

	for _, method := range requestMethods {
		root.AddCommand(newRequestCmd(method))
	}
	root.AddCommand(newTenantCmd())
	root.AddCommand(newCredentialCmd())
	root.AddCommand(newCacheCmd())
	root.AddCommand(newBatchCmd())

	targetCmd, err := root.ExecuteC()
	if err != nil {
		if !errors.Is(err, errAlreadyHandled) {
			_, _ = fmt.Fprintln(root.ErrOrStderr(), enhanceUnknownError(err, root, targetCmd))
		}
		return err
	}
	return nil
}

// enhanceUnknownError adds "did you mean?" suggestions to unknown command/flag errors.
func enhanceUnknownError(err error, root *cobra.Command, targetCmd *cobra.Command) string {
	msg := err.Error()

	if strings.Contains(msg, "unknown command") {
		if unknown := extractQuoted(msg); unknown != "" {
			if suggestions := root.SuggestionsFor(unknown); len(suggestions) > 0 {
				return fmt.Sprintf("%s\n\nDid you mean %q?", msg, suggestions[0])
			}
		}
		return msg
	}

	if strings.Contains(msg, "unknown flag") || strings.Contains(msg, "unknown shorthand flag") {
		helpCmd := "consolectl --help"
		if targetCmd != nil {
			helpCmd = targetCmd.CommandPath() + " --help"
		}
		return fmt.Sprintf("%s\n\nRun %q to see supported flags.", msg, helpCmd)
	}

	return msg
}

// extractQuoted extracts the first double-quoted substring from s.
func extractQuoted(s string) string {
	start := strings.IndexByte(s, '"')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(s[start+1:], '"')
	if end < 0 {
		return ""
	}
	return s[start+1 : start+1+end]
}
