// Package linkcheck validates external URLs concurrently. Results feed the
// audit report and the stored broken flag on external link edges.
package linkcheck

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency = 5
	defaultTimeout     = 10 * time.Second
	defaultUserAgent   = "confluence-mirror-linkcheck/1.0"
)

// Result is the outcome of validating one URL.
type Result struct {
	StatusCode int
	Err        string
	Broken     bool
}

// Checker validates external links with a bounded number of in-flight
// requests.
type Checker struct {
	client      *http.Client
	concurrency int
	userAgent   string
}

// Options configures New. Zero values select defaults.
type Options struct {
	Concurrency int
	Timeout     time.Duration
	UserAgent   string
	// Client overrides the HTTP client entirely; Timeout is ignored then.
	Client *http.Client
}

// New returns a Checker.
func New(opts Options) *Checker {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Checker{client: client, concurrency: concurrency, userAgent: userAgent}
}

// Check validates the given URLs and returns one Result per distinct URL.
// Duplicates are requested once. Individual failures never abort the batch.
func (c *Checker) Check(ctx context.Context, urls []string) map[string]Result {
	distinct := dedupe(urls)
	results := make(map[string]Result, len(distinct))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, url := range distinct {
		url := url
		g.Go(func() error {
			result := c.checkOne(gctx, url)
			mu.Lock()
			results[url] = result
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return results
}

// checkOne issues a HEAD request, falling back to GET when the server
// rejects HEAD.
func (c *Checker) checkOne(ctx context.Context, url string) Result {
	status, err := c.request(ctx, http.MethodHead, url)
	if err == nil && status == http.StatusMethodNotAllowed {
		status, err = c.request(ctx, http.MethodGet, url)
	}
	if err != nil {
		return Result{Err: classifyError(err), Broken: true}
	}
	return Result{StatusCode: status, Broken: isBrokenStatus(status)}
}

func (c *Checker) request(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// isBrokenStatus treats auth walls as reachable: a 401 or 403 proves the
// host is alive, it just will not talk to us.
func isBrokenStatus(status int) bool {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return false
	}
	return status >= 400 && status <= 599
}

// classifyError maps transport errors to short stable descriptions.
func classifyError(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "DNS lookup failed"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Timeout"
	}
	var tlsErr *tls.CertificateVerificationError
	if errors.As(err, &tlsErr) {
		return "SSL error"
	}

	message := err.Error()
	switch {
	case strings.Contains(message, "context deadline exceeded"):
		return "Timeout"
	case strings.Contains(message, "no such host"):
		return "DNS lookup failed"
	case strings.Contains(message, "connection refused"):
		return "Connection refused"
	case strings.Contains(message, "connection reset"):
		return "Connection reset"
	case strings.Contains(message, "certificate"), strings.Contains(message, "tls:"):
		return "SSL error"
	default:
		return "Connection failed"
	}
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, url := range urls {
		if url == "" {
			continue
		}
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		out = append(out, url)
	}
	return out
}
