package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rohmanhakim/feed-updater/internal/request"
	"github.com/rohmanhakim/feed-updater/pkg/limiter"
	"golang.org/x/net/publicsuffix"
)

const maxRedirects = 10

// NetworkTransport performs one HTTP exchange. Implementations report
// transport failures as errors and HTTP statuses as data.
type NetworkTransport interface {
	Fetch(ctx context.Context, req NetworkRequest) (NetworkResponse, error)
}

type HTTPTransportParam struct {
	UserAgent   string
	Timeout     time.Duration
	RateLimiter limiter.RateLimiter
}

// HTTPTransport is the net/http implementation of NetworkTransport.
//
// Cookies are per request: the stored cookie string seeds a fresh jar, the
// jar follows the exchange across redirects, and whatever it holds at the
// end flows back into the update state.
type HTTPTransport struct {
	userAgent   string
	timeout     time.Duration
	rateLimiter limiter.RateLimiter
	proxied     *http.Transport
	direct      *http.Transport
}

func NewHTTPTransport(param HTTPTransportParam) *HTTPTransport {
	proxied := http.DefaultTransport.(*http.Transport).Clone()
	proxied.Proxy = http.ProxyFromEnvironment

	direct := http.DefaultTransport.(*http.Transport).Clone()
	direct.Proxy = nil

	return &HTTPTransport{
		userAgent:   param.UserAgent,
		timeout:     param.Timeout,
		rateLimiter: param.RateLimiter,
		proxied:     proxied,
		direct:      direct,
	}
}

func (t *HTTPTransport) Fetch(ctx context.Context, nreq NetworkRequest) (NetworkResponse, error) {
	target, err := parseNetworkURL(nreq.URL)
	if err != nil {
		return NetworkResponse{}, err
	}

	if t.rateLimiter != nil {
		if err := t.rateLimiter.Wait(ctx, target.Host); err != nil {
			return NetworkResponse{}, err
		}
		defer t.rateLimiter.MarkLastFetchAsNow(target.Host)
	}

	jar, err := newCookieJar(target, nreq.UpdateState.Cookies)
	if err != nil {
		return NetworkResponse{}, err
	}

	redirects := &redirectTracker{}
	client := &http.Client{
		Transport:     t.roundTripper(nreq),
		Jar:           jar,
		Timeout:       t.timeout,
		CheckRedirect: redirects.check,
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return NetworkResponse{}, &FetchError{
			Message:   fmt.Sprintf("failed to create request: %v", err),
			Retryable: false,
			Cause:     ErrCauseInvalidURL,
		}
	}
	for key, value := range requestHeaders(t.userAgent) {
		httpReq.Header.Set(key, value)
	}
	if nreq.UpdateState.LastModified != "" {
		httpReq.Header.Set("If-Modified-Since", nreq.UpdateState.LastModified)
	}
	if nreq.UpdateState.ETag != "" {
		httpReq.Header.Set("If-None-Match", nreq.UpdateState.ETag)
	}
	if nreq.Options.Username != "" || nreq.Options.Password != "" {
		httpReq.SetBasicAuth(nreq.Options.Username, nreq.Options.Password)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return NetworkResponse{}, err
	}
	defer resp.Body.Close()

	t.adjustPoliteness(target.Host, resp)

	result := NetworkResponse{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		UpdateState: nextUpdateState(nreq, resp, jar),
	}
	if redirects.permanent {
		result.MovedTo = redirects.location
	}

	if resp.StatusCode >= http.StatusBadRequest {
		io.Copy(io.Discard, resp.Body)
		return result, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return NetworkResponse{}, err
	}
	result.Body = body
	return result, nil
}

func (t *HTTPTransport) roundTripper(nreq NetworkRequest) http.RoundTripper {
	if nreq.Options.DontUseProxy {
		return t.direct
	}
	return t.proxied
}

// adjustPoliteness backs off a host that asks us to slow down and forgets
// the backoff once it answers normally again. A Retry-After header on a
// 429/503 becomes the host's server delay.
func (t *HTTPTransport) adjustPoliteness(host string, resp *http.Response) {
	if t.rateLimiter == nil {
		return
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		t.rateLimiter.Backoff(host)
		if delay, ok := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
			t.rateLimiter.SetServerDelay(host, delay)
		}
	default:
		t.rateLimiter.ResetBackoff(host)
	}
}

// parseRetryAfter accepts both forms of the header: delta seconds and an
// HTTP date. Dates in the past yield no delay.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	if delay := at.Sub(now); delay > 0 {
		return delay, true
	}
	return 0, false
}

func parseNetworkURL(raw string) (*url.URL, error) {
	target, err := url.Parse(raw)
	if err != nil {
		return nil, &FetchError{
			Message:   fmt.Sprintf("malformed url %q: %v", raw, err),
			Retryable: false,
			Cause:     ErrCauseInvalidURL,
		}
	}
	scheme := strings.ToLower(target.Scheme)
	if (scheme != "http" && scheme != "https") || target.Host == "" {
		return nil, &FetchError{
			Message:   fmt.Sprintf("unsupported url %q", raw),
			Retryable: false,
			Cause:     ErrCauseInvalidURL,
		}
	}
	return target, nil
}

func newCookieJar(target *url.URL, stored string) (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	if stored == "" {
		return jar, nil
	}
	cookies, err := http.ParseCookie(stored)
	if err == nil {
		jar.SetCookies(target, cookies)
	}
	return jar, nil
}

// nextUpdateState keeps the previous values for anything the server did
// not send again.
func nextUpdateState(nreq NetworkRequest, resp *http.Response, jar *cookiejar.Jar) request.UpdateState {
	state := nreq.UpdateState

	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		state.LastModified = lm
	}
	if etag := resp.Header.Get("ETag"); etag != "" {
		state.ETag = etag
	}
	if cookies := serializeCookies(jar.Cookies(resp.Request.URL)); cookies != "" {
		state.Cookies = cookies
	}
	return state
}

func serializeCookies(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// redirectTracker records where a redirect chain ended and whether every hop
// in it was permanent.
type redirectTracker struct {
	permanent bool
	location  string
}

func (r *redirectTracker) check(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return &FetchError{
			Message:   fmt.Sprintf("stopped after %d redirects at %s", maxRedirects, req.URL),
			Retryable: false,
			Cause:     ErrCauseInvalidURL,
		}
	}
	hopPermanent := req.Response != nil &&
		(req.Response.StatusCode == http.StatusMovedPermanently ||
			req.Response.StatusCode == http.StatusPermanentRedirect)
	if len(via) == 1 {
		r.permanent = hopPermanent
	} else {
		r.permanent = r.permanent && hopPermanent
	}
	r.location = req.URL.String()
	return nil
}

// classifyTransportError maps a net/http failure to a FetchError whose
// cause determines the request's return code. Unrecognised failures are
// unknown and therefore retryable.
func classifyTransportError(err error) *FetchError {
	if fetchErr, ok := asFetchError(err); ok {
		return fetchErr
	}

	if errors.Is(err, context.Canceled) {
		return &FetchError{
			Message:   err.Error(),
			Retryable: false,
			Cause:     ErrCauseCancelled,
		}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &FetchError{
			Message:   err.Error(),
			Retryable: true,
			Cause:     ErrCauseTimeout,
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &FetchError{
			Message:   err.Error(),
			Retryable: true,
			Cause:     ErrCauseHostNotFound,
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		cause := ErrCauseSocketError
		if opErr.Op == "dial" {
			cause = ErrCauseConnectionFailed
		}
		return &FetchError{
			Message:   err.Error(),
			Retryable: true,
			Cause:     cause,
		}
	}

	return unknownError(err)
}

func requestHeaders(userAgent string) map[string]string {
	return map[string]string{
		"User-Agent": userAgent,
		"Accept":     "application/rss+xml,application/atom+xml,application/rdf+xml,application/xml;q=0.9,text/xml;q=0.9,*/*;q=0.8",
	}
}
