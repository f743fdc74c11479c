package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// userAgent identifies the monitor to target sites. Some documentation
	// hosts reject requests without a browser-like UA.
	userAgent = "Mozilla/5.0 (compatible; sourcewatch/1.0)"

	// maxBodyBytes caps how much of a response body is read. Monitored pages
	// are documentation-sized; anything larger is truncated, not an error.
	maxBodyBytes = 4 << 20

	// maxRedirects is the hard stop for redirect following.
	maxRedirects = 10
)

// Response is the outcome of a successful HTTP exchange. Body is empty for
// HEAD requests.
type Response struct {
	StatusCode   int
	Body         []byte
	Header       http.Header
	FinalURL     string
	RedirectHops int
}

// Client is the shared HTTP client used by every check. It tracks redirect
// hops, injects the User-Agent, and enforces a per-request timeout.
type Client struct {
	http *http.Client
}

// uaRoundTripper injects the monitor User-Agent into every outgoing request.
type uaRoundTripper struct {
	base http.RoundTripper
}

func (t *uaRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", userAgent)
	return t.base.RoundTrip(req)
}

// NewClient returns a Client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		http: &http.Client{
			Transport: &uaRoundTripper{base: http.DefaultTransport},
			Timeout:   timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
	}
}

// Get fetches url and returns the response with its body read.
// Non-2xx statuses are not errors; callers decide what a status means.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.do(ctx, http.MethodGet, url)
}

// Head issues a HEAD request to url, following redirects, and reports the
// final URL plus the number of redirect hops taken.
func (c *Client) Head(ctx context.Context, url string) (*Response, error) {
	return c.do(ctx, http.MethodHead, url)
}

func (c *Client) do(ctx context.Context, method, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	hops := 0
	// Count hops on top of the client-level redirect cap.
	clientCopy := *c.http
	clientCopy.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		hops = len(via)
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}

	resp, err := clientCopy.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &Response{
		StatusCode:   resp.StatusCode,
		Header:       resp.Header,
		FinalURL:     resp.Request.URL.String(),
		RedirectHops: hops,
	}

	if method != http.MethodHead {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		out.Body = body
	}
	return out, nil
}

// IsTimeout reports whether err stems from a request deadline or timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "Client.Timeout")
}

// SameURL reports whether two URLs are equal ignoring a trailing slash.
func SameURL(a, b string) bool {
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/")
}
