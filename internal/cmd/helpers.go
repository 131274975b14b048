package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/filter"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/outfmt"
)

// errAlreadyHandled is a sentinel error indicating the error was already printed to stderr.
// Commands using RunE return this to signal Cobra that an error occurred (for exit code)
// without Cobra printing it again (since SilenceErrors is true on root command).
var errAlreadyHandled = errors.New("error already handled")

type handledError struct {
	err      error
	exitCode int
}

func (e *handledError) Error() string {
	return e.err.Error()
}

func (e *handledError) Unwrap() error {
	return errAlreadyHandled
}

func (e *handledError) ExitCode() int {
	return e.exitCode
}

// RunE wraps a command function with enhanced error handling
func RunE(fn func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if err != nil {
			_, _ = fmt.Fprint(cmd.ErrOrStderr(), HandleError(err))
			// Return a handled error so tests can still inspect the original message.
			return &handledError{err: err, exitCode: ExitCode(err)}
		}
		return nil
	}
}

// aliasBridgeValue wraps a pflag.Value so that Set() on the alias also
// marks the canonical flag as Changed.
type aliasBridgeValue struct {
	pflag.Value
	canonical *pflag.Flag
}

func (v *aliasBridgeValue) Set(s string) error {
	if err := v.Value.Set(s); err != nil {
		return err
	}
	v.canonical.Changed = true
	return nil
}

type aliasBridgeSliceValue struct {
	aliasBridgeValue
	slice pflag.SliceValue
}

func (v *aliasBridgeSliceValue) Append(s string) error     { return v.slice.Append(s) }
func (v *aliasBridgeSliceValue) Replace(ss []string) error { return v.slice.Replace(ss) }
func (v *aliasBridgeSliceValue) GetSlice() []string        { return v.slice.GetSlice() }

// flagAlias registers a hidden alias for an existing flag. Both share the
// same Value, so setting either one sets both.
func flagAlias(fs *pflag.FlagSet, name, alias string) {
	f := fs.Lookup(name)
	if f == nil {
		panic(fmt.Sprintf("flagAlias: flag %q not found", name))
	}
	a := *f
	a.Name = alias
	a.Shorthand = ""
	a.Usage = ""
	a.Hidden = true
	bridge := &aliasBridgeValue{Value: f.Value, canonical: f}
	if sv, ok := f.Value.(pflag.SliceValue); ok {
		a.Value = &aliasBridgeSliceValue{aliasBridgeValue: *bridge, slice: sv}
	} else {
		a.Value = bridge
	}
	a.Annotations = map[string][]string{"alias-of": {name}}
	fs.AddFlag(&a)
}

// printJSON writes v as indented JSON, filtered through --jq when set.
func printJSON(cmd *cobra.Command, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return printRaw(cmd, raw)
}

// printRaw writes a JSON body in the selected output format, filtered
// through --jq when set.
func printRaw(cmd *cobra.Command, raw json.RawMessage) error {
	out := cmd.OutOrStdout()
	if flags.JQ != "" {
		filtered, err := filter.ApplyToJSON(raw, flags.JQ)
		if err != nil {
			return err
		}
		raw = filtered
	}

	ctx := cmdContext(cmd)
	if outfmt.IsJSONL(ctx) {
		return outfmt.WriteLines(out, raw)
	}
	return outfmt.Write(out, raw, outfmt.IsCompact(ctx))
}

// wantJSON reports whether a command with a text rendering should print JSON instead.
func wantJSON(cmd *cobra.Command) bool {
	return flags.JQ != "" || outfmt.IsJSON(cmdContext(cmd))
}

// readArg resolves "@path" to the file's content and "@-" to stdin; any
// other value is returned as is.
func readArg(stdin io.Reader, value string) ([]byte, error) {
	if !strings.HasPrefix(value, "@") {
		return []byte(value), nil
	}
	path := strings.TrimPrefix(value, "@")
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}
	return data, nil
}

// parseField parses a key=value pair.
func parseField(field, sep string) (string, string, error) {
	key, value, ok := strings.Cut(field, sep)
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("invalid value %q: must be key%svalue", field, sep)
	}
	return key, value, nil
}
