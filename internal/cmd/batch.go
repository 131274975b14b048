package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ghost6760/multibackendopenIA-sub001/internal/api"
	"github.com/ghost6760/multibackendopenIA-sub001/internal/validation"
)

// DefaultConcurrency is the default number of concurrent workers
const DefaultConcurrency = 5

// BatchResult is the outcome of one path in a batch.
type BatchResult struct {
	Path  string          `json:"path"`
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Kind  api.Kind        `json:"kind,omitempty"`

	err error
}

// runBatch calls operation for every path with bounded parallelism. Results
// keep the input order; one failure never stops the others.
func runBatch(
	ctx context.Context,
	paths []string,
	concurrency int64,
	progress bool,
	errOut io.Writer,
	operation func(ctx context.Context, path string) (json.RawMessage, error),
) []BatchResult {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if errOut == nil {
		errOut = io.Discard
	}

	sem := semaphore.NewWeighted(concurrency)
	var mu sync.Mutex
	results := make([]BatchResult, len(paths))
	total := len(paths)
	var done int64

	g, ctx := errgroup.WithContext(ctx)

	for i, path := range paths {
		results[i] = BatchResult{Path: path}

		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i].err = err
				results[i].Error = err.Error()
				return nil
			}
			defer sem.Release(1)

			data, err := operation(ctx, path)
			if err != nil {
				c := api.Classify(err)
				results[i].err = err
				results[i].Error = c.Message
				results[i].Kind = c.Kind
			} else {
				results[i].OK = true
				results[i].Data = data
			}

			if progress && total > 0 {
				current := atomic.AddInt64(&done, 1)
				mu.Lock()
				_, _ = fmt.Fprintf(errOut, "\rProcessed %d/%d", current, total)
				mu.Unlock()
			}
			return nil // don't fail the group on individual errors
		})
	}

	_ = g.Wait()

	if progress && total > 0 {
		_, _ = fmt.Fprintf(errOut, "\rProcessed %d/%d\n", atomic.LoadInt64(&done), total)
	}
	return results
}

// countResults returns success and failure counts from batch results
func countResults(results []BatchResult) (success, failure int) {
	for _, r := range results {
		if r.OK {
			success++
		} else {
			failure++
		}
	}
	return
}

// firstFailure returns the error of the first failed result, if any.
func firstFailure(results []BatchResult) error {
	for _, r := range results {
		if r.err != nil {
			return r.err
		}
	}
	return nil
}

func newBatchCmd() *cobra.Command {
	var (
		concurrency int64
		cacheTTL    time.Duration
		progress    bool
	)

	cmd := &cobra.Command{
		Use:   "batch <path>...",
		Short: "GET several paths concurrently",
		Long: `GET several paths concurrently and print one JSON array of results.

Every path goes through the same retry, cache and credential handling as
"consolectl get". The command fails when any path fails, after all of them
have finished.`,
		Example: `  consolectl batch /api/companies /api/admin/tenants --concurrency 2
  consolectl batch /api/stats/a /api/stats/b --cache-ttl 1m`,
		Args: cobra.MinimumNArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := validation.ValidatePath(path); err != nil {
					return err
				}
			}
			if cacheTTL < 0 {
				return fmt.Errorf("--cache-ttl must be >= 0")
			}

			c, err := getConsole(cmd)
			if err != nil {
				return err
			}
			c.Busy().OnChange(func(busy bool) {
				slog.Debug("batch busy state changed", "busy", busy)
			})

			results := runBatch(cmdContext(cmd), args, concurrency, progress, cmd.ErrOrStderr(),
				func(ctx context.Context, path string) (json.RawMessage, error) {
					if cacheTTL > 0 {
						return c.Get(ctx, path, "", cacheTTL)
					}
					return c.Execute(ctx, path, api.Options{})
				})

			if err := printJSON(cmd, results); err != nil {
				return err
			}
			if success, failure := countResults(results); failure > 0 {
				return fmt.Errorf("%d of %d requests failed: %w", failure, success+failure, firstFailure(results))
			}
			return nil
		}),
	}

	cmd.Flags().Int64VarP(&concurrency, "concurrency", "c", DefaultConcurrency, "Maximum requests in flight")
	cmd.Flags().DurationVar(&cacheTTL, "cache-ttl", 0, "Serve from the response cache when younger than this")
	cmd.Flags().BoolVar(&progress, "progress", false, "Show progress on stderr")
	return cmd
}
