package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rohmanhakim/feed-updater/internal/favicon"
	"github.com/rohmanhakim/feed-updater/internal/storage"
	"github.com/rohmanhakim/feed-updater/pkg/hashutil"
	"github.com/spf13/cobra"
)

var ErrFaviconNotFound = errors.New("favicon not found")

var (
	pageURL       string
	faviconOutDir string
)

var faviconCmd = &cobra.Command{
	Use:   "favicon <feed-url>",
	Short: "Discover and download the icon of a feed's website.",
	Args:  cobra.ExactArgs(1),
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

		_, err = RunFavicon(ctx, rt, args[0], pageURL, faviconOutDir, cmd.OutOrStdout())
		return err
	},
}

func init() {
	faviconCmd.Flags().StringVar(&pageURL, "page-url", "", "website of the feed (defaults to the feed server root)")
	faviconCmd.Flags().StringVar(&faviconOutDir, "output-dir", ".", "directory the icon is written to")
}

func resetFaviconFlags() {
	pageURL = ""
	faviconOutDir = "."
}

// RunFavicon runs the discovery chain for feedURL and writes the icon into
// outDir.
func RunFavicon(
	ctx context.Context,
	rt *Runtime,
	feedURL string,
	page string,
	outDir string,
	out io.Writer,
) (favicon.Result, error) {
	results := make(chan favicon.Result, 1)
	downloader := favicon.NewDownloader(rt.Scheduler, rt.Recorder)

	owner := "favicon:" + feedURL
	if discoveryErr := downloader.Download(feedURL, page, owner, func(r favicon.Result) {
		results <- r
	}); discoveryErr != nil {
		return favicon.Result{}, discoveryErr
	}

	var result favicon.Result
	select {
	case result = <-results:
	case <-ctx.Done():
		rt.Scheduler.CancelByOwner(owner)
		return favicon.Result{}, ctx.Err()
	}

	if !result.Found {
		return result, fmt.Errorf("%w for %s", ErrFaviconNotFound, feedURL)
	}

	sink := storage.NewLocalSink(rt.Recorder)
	written, writeErr := sink.Write(outDir, storage.Document{
		Source:      result.IconURL,
		Data:        result.Data,
		ContentType: result.ContentType,
	}, hashutil.HashAlgoSHA256)
	if writeErr != nil {
		return result, writeErr
	}

	fmt.Fprintf(out, "%s\ticon=%s\tsize=%d\t-> %s\n", feedURL, result.IconURL, len(result.Data), written.Path())
	return result, nil
}
