package favicon

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rohmanhakim/feed-updater/internal/logger"
	"github.com/rohmanhakim/feed-updater/internal/metadata"
	"github.com/rohmanhakim/feed-updater/internal/request"
	"github.com/rohmanhakim/feed-updater/pkg/urlutil"
)

// Result is the outcome of one discovery chain. Found is false when every
// candidate failed.
type Result struct {
	FeedURL     string
	IconURL     string
	Data        []byte
	ContentType string
	Found       bool
}

type Sink func(Result)

// Submitter is the part of the update scheduler the downloader needs.
type Submitter interface {
	Submit(req *request.Request)
}

/*
Downloader finds a feed's icon by trying, one request at a time:

 1. the website page, looking for <link rel="icon"> candidates
 2. each discovered link
 3. favicon.ico in the feed's directory
 4. favicon.ico at the server root

Each step is a normal-priority request without retries whose callback
submits the next one. The first non-empty, non-HTML 2xx answer wins.
*/
type Downloader struct {
	submitter    Submitter
	metadataSink metadata.MetadataSink
}

func NewDownloader(submitter Submitter, metadataSink metadata.MetadataSink) *Downloader {
	if metadataSink == nil {
		metadataSink = &metadata.NoopSink{}
	}
	return &Downloader{
		submitter:    submitter,
		metadataSink: metadataSink,
	}
}

// Download starts the chain for feedURL. pageURL is the feed's website and
// may be empty, in which case the feed server's root page is scanned. owner
// tags every request so the whole chain can be cancelled at once. sink is
// called exactly once unless the chain is cancelled.
func (d *Downloader) Download(feedURL string, pageURL string, owner string, sink Sink) *DiscoveryError {
	feed, err := url.Parse(feedURL)
	if err != nil || feed.Host == "" || (feed.Scheme != "http" && feed.Scheme != "https") {
		discoveryErr := &DiscoveryError{
			Message:   feedURL,
			Retryable: false,
			Cause:     ErrCauseInvalidURL,
		}
		d.recordError("Downloader.Download", feedURL, discoveryErr)
		return discoveryErr
	}

	dir := urlutil.Dir(*feed)
	root := urlutil.Root(*feed)
	page := pageURL
	if page == "" {
		page = root.String()
	}

	c := &chain{
		downloader: d,
		feedURL:    feedURL,
		owner:      owner,
		sink:       sink,
		seen:       make(map[string]bool),
	}
	c.fallbacks = []string{
		dir.String() + "favicon.ico",
		root.String() + "favicon.ico",
	}
	c.submit(page, c.onPage)
	return nil
}

// chain is the state carried from one step's callback to the next. Only
// the dispatch goroutine touches it.
type chain struct {
	downloader *Downloader
	feedURL    string
	owner      string
	sink       Sink
	candidates []string
	fallbacks  []string
	seen       map[string]bool
}

func (c *chain) submit(source string, callback request.Callback) {
	c.seen[urlutil.SourceKey(source)] = true
	req := request.New(source, "", request.PriorityNormal, callback, false)
	req.Owner = c.owner
	c.downloader.submitter.Submit(req)
}

func (c *chain) onPage(req *request.Request) {
	if succeeded(req) {
		base, err := url.Parse(req.Source)
		if err == nil {
			links, discoveryErr := DiscoverLinks(*base, req.Data)
			if discoveryErr != nil {
				c.downloader.recordError("chain.onPage", req.Source, discoveryErr)
			}
			c.candidates = append(c.candidates, links...)
		}
	}
	c.candidates = append(c.candidates, c.fallbacks...)
	c.next()
}

func (c *chain) onIcon(req *request.Request) {
	if succeeded(req) && isIcon(req) {
		logger.Info("favicon found",
			logger.Source(c.feedURL),
			"icon", req.Source,
			logger.KeySize, req.Size(),
		)
		c.sink(Result{
			FeedURL:     c.feedURL,
			IconURL:     req.Source,
			Data:        req.Data,
			ContentType: req.ContentType,
			Found:       true,
		})
		return
	}
	c.next()
}

func (c *chain) next() {
	for len(c.candidates) > 0 {
		candidate := c.candidates[0]
		c.candidates = c.candidates[1:]
		if c.seen[urlutil.SourceKey(candidate)] {
			continue
		}
		c.submit(candidate, c.onIcon)
		return
	}

	c.downloader.recordError("chain.next", c.feedURL, &DiscoveryError{
		Message:   "all candidates failed",
		Retryable: false,
		Cause:     ErrCauseNoCandidate,
	})
	c.sink(Result{FeedURL: c.feedURL})
}

func succeeded(req *request.Request) bool {
	return req.ReturnCode == request.ReturnSuccess &&
		req.HTTPStatus >= http.StatusOK &&
		req.HTTPStatus < http.StatusMultipleChoices &&
		len(req.Data) > 0
}

// isIcon rejects HTML error pages served with a 200.
func isIcon(req *request.Request) bool {
	contentType := strings.ToLower(req.ContentType)
	if strings.HasPrefix(contentType, "text/html") {
		return false
	}
	if contentType == "" {
		contentType = strings.ToLower(http.DetectContentType(req.Data))
	}
	return !strings.HasPrefix(contentType, "text/")
}

func (d *Downloader) recordError(action string, source string, err *DiscoveryError) {
	d.metadataSink.RecordError(
		time.Now(),
		"favicon",
		action,
		mapDiscoveryErrorToMetadataCause(err),
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrSource, source),
		},
	)
}
