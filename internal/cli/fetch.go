package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rohmanhakim/feed-updater/internal/logger"
	"github.com/rohmanhakim/feed-updater/internal/request"
	"github.com/rohmanhakim/feed-updater/internal/storage"
	"github.com/rohmanhakim/feed-updater/internal/subscription"
	"github.com/rohmanhakim/feed-updater/pkg/failure"
	"github.com/rohmanhakim/feed-updater/pkg/hashutil"
	"github.com/spf13/cobra"
)

var ErrFetchFailed = errors.New("fetch failed")

var (
	filterCmd string
	high      bool
	noRetries bool
	outputDir string
)

// FetchOptions apply to every source of one fetch run.
type FetchOptions struct {
	Filter    string
	High      bool
	NoRetries bool
	// OutputDir receives each payload. Empty discards payloads.
	OutputDir string
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <source>...",
	Short: "Fetch one or more feed sources and report each result.",
	Long: `Fetch submits every source to the update engine and waits until each
one was delivered. A source is an HTTP(S) URL, a local file path, or a
shell command prefixed with "|".`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := InitConfigWithError()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := NewRuntime(ctx, cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		_, err = RunFetch(ctx, rt, args, FetchOptions{
			Filter:    filterCmd,
			High:      high,
			NoRetries: noRetries,
			OutputDir: outputDir,
		}, cmd.OutOrStdout())
		return err
	},
}

func init() {
	fetchCmd.Flags().StringVar(&filterCmd, "filter", "", "conversion command run on each payload (a .xsl file runs through xsltproc)")
	fetchCmd.Flags().BoolVar(&high, "high", false, "submit with high priority")
	fetchCmd.Flags().BoolVar(&noRetries, "no-retries", false, "do not retry transient failures")
	fetchCmd.Flags().StringVar(&outputDir, "output-dir", "", "write each payload into this directory")
}

func resetFetchFlags() {
	filterCmd = ""
	high = false
	noRetries = false
	outputDir = ""
}

// RunFetch updates every source once and prints one line per result to
// out. It returns ErrFetchFailed when at least one source failed.
func RunFetch(
	ctx context.Context,
	rt *Runtime,
	sources []string,
	opts FetchOptions,
	out io.Writer,
) ([]subscription.Result, error) {
	sink := storage.NewLocalSink(rt.Recorder)
	results := make(chan subscription.Result, len(sources))

	updater := subscription.NewUpdater(rt.Scheduler, rt.Store, func(r subscription.Result) {
		line := formatResult(r)
		if opts.OutputDir != "" && len(r.Data) > 0 {
			written, err := sink.Write(opts.OutputDir, storage.Document{
				Source:      r.Subscription.Source,
				Data:        r.Data,
				ContentType: r.ContentType,
			}, hashutil.HashAlgoSHA256)
			if err != nil {
				line += "\twrite-error=" + err.Error()
				logger.Warn("cannot write payload",
					logger.Source(r.Subscription.Source),
					logger.Err(err),
					"retryable", failure.IsRecoverable(err),
				)
			} else {
				line += " -> " + written.Path()
			}
		}
		fmt.Fprintln(out, line)
		results <- r
	}, subscription.WithMetadataSink(rt.Recorder))

	priority := request.PriorityNormal
	if opts.High {
		priority = request.PriorityHigh
	}

	subs := make([]subscription.Subscription, 0, len(sources))
	for i, source := range sources {
		sub := subscription.Subscription{
			ID:     fmt.Sprintf("fetch-%d", i),
			Source: source,
			Filter: opts.Filter,
		}
		subs = append(subs, sub)
		updater.Update(sub, subscription.Flags{
			Priority:     priority,
			AllowRetries: !opts.NoRetries,
		})
	}

	collected := make([]subscription.Result, 0, len(sources))
	for len(collected) < len(sources) {
		select {
		case r := <-results:
			collected = append(collected, r)
		case <-ctx.Done():
			for _, sub := range subs {
				updater.Cancel(sub)
			}
			return collected, ctx.Err()
		}
	}

	failed := 0
	for _, r := range collected {
		if r.Failed() {
			failed++
		}
	}
	if failed > 0 {
		return collected, fmt.Errorf("%w: %d of %d sources", ErrFetchFailed, failed, len(sources))
	}
	return collected, nil
}

func formatResult(r subscription.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\tstatus=%d\tresult=%s\tsize=%d",
		r.Subscription.Source,
		r.HTTPStatus,
		r.ReturnCode.String(),
		len(r.Data),
	)
	if r.RetryCount > 0 {
		fmt.Fprintf(&b, "\tretries=%d", r.RetryCount)
	}
	if r.Unchanged {
		b.WriteString("\tunchanged")
	}
	if r.MovedTo != "" {
		fmt.Fprintf(&b, "\tmoved-to=%s", r.MovedTo)
	}
	if r.FilterErrors != "" {
		fmt.Fprintf(&b, "\tfilter-error=%q", r.FilterErrors)
	}
	return b.String()
}
