package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/api"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/console"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/dryrun"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/validation"
)

var requestMethods = []string{
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

// requestInput is what the request flags collect before a body is built.
type requestInput struct {
	data    string
	form    []string
	files   []string
	headers []string
	query   []string
}

func newRequestCmd(method string) *cobra.Command {
	var (
		in       requestInput
		cacheTTL time.Duration
		list     bool
		listKeys []string
		message  string
	)

	name := strings.ToLower(method)
	cmd := &cobra.Command{
		Use:   name + " <path>",
		Short: fmt.Sprintf("Send a %s request to the backend", method),
		Example: fmt.Sprintf(`  consolectl %[1]s /api/companies
  consolectl %[1]s /api/admin/tenants -d @tenant.json
  consolectl %[1]s /api/documents -F file=@report.pdf -f title=Q3`, name),
		Args: cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if err := validation.ValidatePath(path); err != nil {
				return err
			}
			if cacheTTL < 0 {
				return fmt.Errorf("--cache-ttl must be >= 0")
			}
			if cacheTTL > 0 && method != http.MethodGet {
				return fmt.Errorf("--cache-ttl is only valid for get")
			}

			opts, err := buildOptions(cmd.InOrStdin(), method, in)
			if err != nil {
				return err
			}

			c, err := getConsole(cmd)
			if err != nil {
				return err
			}
			ctx := cmdContext(cmd)

			if method != http.MethodGet && dryrun.IsEnabled(ctx) {
				previewRequest(c, method, path, opts).Write(cmd.OutOrStdout())
				return nil
			}

			var raw json.RawMessage
			switch {
			case cacheTTL > 0:
				if len(opts.Headers) > 0 {
					return fmt.Errorf("--header cannot be combined with --cache-ttl")
				}
				raw, err = c.Get(ctx, withQuery(path, opts.Query), "", cacheTTL)
			case method == http.MethodGet:
				raw, err = c.Execute(ctx, path, opts)
			default:
				if message == "" {
					message = fmt.Sprintf("%s %s succeeded", method, path)
				}
				raw, err = c.Mutate(ctx, path, opts, message)
			}
			if err != nil {
				return err
			}

			if list {
				items, err := api.NormalizeList(raw, listKeys...)
				if err != nil {
					return err
				}
				return printJSON(cmd, items)
			}
			return printRaw(cmd, raw)
		}),
	}

	cmd.Flags().StringArrayVarP(&in.headers, "header", "H", nil, "Request header as key:value (repeatable)")
	cmd.Flags().StringArrayVarP(&in.query, "query", "q", nil, "Query parameter as key=value (repeatable)")
	cmd.Flags().BoolVar(&list, "list", false, "Normalize the response to a JSON array")
	cmd.Flags().StringSliceVar(&listKeys, "list-key", nil, "Collection keys tried by --list (default items,results,companies,tenants)")
	if method == http.MethodGet {
		cmd.Flags().DurationVar(&cacheTTL, "cache-ttl", 0, "Serve from the response cache when younger than this")
		flagAlias(cmd.Flags(), "cache-ttl", "ttl")
	} else {
		cmd.Flags().StringVarP(&in.data, "data", "d", "", "JSON body, or @file / @- for stdin")
		cmd.Flags().StringArrayVarP(&in.form, "field", "f", nil, "Form field as key=value (repeatable)")
		cmd.Flags().StringArrayVarP(&in.files, "file", "F", nil, "Multipart file as field=@path or path (repeatable)")
		cmd.Flags().StringVarP(&message, "message", "m", "", "Success notification text")
		flagAlias(cmd.Flags(), "field", "form")
	}
	return cmd
}

func previewRequest(c *console.Console, method, path string, opts api.Options) *dryrun.Preview {
	p := &dryrun.Preview{
		Method:     method,
		Path:       path,
		Tenant:     c.Tenant().Get(),
		Opts:       opts,
		Privileged: c.Gate().RequiresCredential(path),
	}
	if p.Privileged {
		if _, ok := c.Credentials().Get(); !ok {
			p.Warnings = append(p.Warnings, "no admin credential is stored; the request would be refused (run: consolectl credential set)")
		}
	}
	return p
}

// buildOptions turns request flags into executor options. A JSON body and
// form fields are exclusive; files force a multipart body and form fields
// travel as its text parts.
func buildOptions(stdin io.Reader, method string, in requestInput) (api.Options, error) {
	opts := api.Options{Method: method}

	for _, h := range in.headers {
		key, value, err := parseField(h, ":")
		if err != nil {
			return opts, fmt.Errorf("--header: %w", err)
		}
		if opts.Headers == nil {
			opts.Headers = http.Header{}
		}
		opts.Headers.Add(key, strings.TrimSpace(value))
	}

	for _, q := range in.query {
		key, value, err := parseField(q, "=")
		if err != nil {
			return opts, fmt.Errorf("--query: %w", err)
		}
		if opts.Query == nil {
			opts.Query = url.Values{}
		}
		opts.Query.Add(key, value)
	}

	if in.data != "" && (len(in.form) > 0 || len(in.files) > 0) {
		return opts, fmt.Errorf("--data cannot be combined with --field or --file")
	}

	switch {
	case in.data != "":
		data, err := readArg(stdin, in.data)
		if err != nil {
			return opts, err
		}
		if err := validation.ValidateJSONPayload(string(data)); err != nil {
			return opts, err
		}
		if !json.Valid(data) {
			return opts, fmt.Errorf("--data is not valid JSON")
		}
		opts.Body = json.RawMessage(data)

	case len(in.files) > 0:
		mp := &api.Multipart{Fields: map[string]string{}}
		for _, f := range in.form {
			key, value, err := parseField(f, "=")
			if err != nil {
				return opts, fmt.Errorf("--field: %w", err)
			}
			mp.Fields[key] = value
		}
		for _, arg := range in.files {
			file, err := readFilePart(arg)
			if err != nil {
				return opts, err
			}
			mp.Files = append(mp.Files, file)
		}
		opts.Body = mp

	case len(in.form) > 0:
		body := make(map[string]string, len(in.form))
		for _, f := range in.form {
			key, value, err := parseField(f, "=")
			if err != nil {
				return opts, fmt.Errorf("--field: %w", err)
			}
			body[key] = value
		}
		opts.Body = body
	}
	return opts, nil
}

// readFilePart accepts "field=@path", "field=path" or a bare path.
func readFilePart(arg string) (api.File, error) {
	field, path := "file", arg
	if key, value, ok := strings.Cut(arg, "="); ok && key != "" {
		field, path = key, value
	}
	path = strings.TrimPrefix(path, "@")
	content, err := os.ReadFile(path)
	if err != nil {
		return api.File{}, fmt.Errorf("failed to read file %q: %w", path, err)
	}
	return api.File{Field: field, Name: filepath.Base(path), Content: content}, nil
}

// withQuery folds query parameters into path so cached GETs key on them.
func withQuery(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + query.Encode()
}
