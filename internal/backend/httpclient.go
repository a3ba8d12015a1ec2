package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nicholasyager/dbt-loom/pkg/core"
)

const (
	// MaxResponseSize is the largest manifest body accepted over HTTP (1 GiB).
	MaxResponseSize = 1 << 30

	// UserAgent is sent with every HTTP request.
	UserAgent = "dbt-loom"
)

// ErrResponseTooLarge is returned while reading a response body that grows
// past the size limit.
var ErrResponseTooLarge = errors.New("response exceeds maximum allowed size")

// HTTPError represents a non-2xx HTTP response.
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// NewHTTPClient returns an *http.Client with the given timeout.
// A zero timeout means no client-side timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// httpGetter performs GET requests and returns the open response on success.
type httpGetter struct {
	client  *http.Client
	maxSize int64
}

func newHTTPGetter(client *http.Client) *httpGetter {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &httpGetter{client: client, maxSize: MaxResponseSize}
}

// get performs a GET request. On a 2xx response the caller owns the body.
// Any other status is returned as *HTTPError with the body already closed.
func (g *httpGetter) get(ctx context.Context, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: url, Message: resp.Status}
	}

	if resp.ContentLength > g.maxSize {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: %d bytes, limit %d bytes", ErrResponseTooLarge, resp.ContentLength, g.maxSize)
	}

	return resp, nil
}

// body returns a reader over resp.Body that fails with ErrResponseTooLarge
// once more than maxSize bytes have been read. Bodies without a declared
// length are only caught here.
func (g *httpGetter) body(resp *http.Response) io.Reader {
	return &limitedBody{r: io.LimitReader(resp.Body, g.maxSize+1), remaining: g.maxSize}
}

type limitedBody struct {
	r         io.Reader
	remaining int64
}

// Read withholds bytes past the limit so a decoder never sees a complete
// document that was cut from a larger body.
func (b *limitedBody) Read(p []byte) (int, error) {
	if b.remaining < 0 {
		return 0, ErrResponseTooLarge
	}
	n, err := b.r.Read(p)
	b.remaining -= int64(n)
	if b.remaining < 0 {
		return n + int(b.remaining), ErrResponseTooLarge
	}
	return n, err
}

// statusReason maps an HTTP failure to a load error reason.
func statusReason(err error) error {
	if errors.Is(err, ErrResponseTooLarge) {
		return core.ErrMalformedPayload
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return core.ErrTransport
	}
	switch httpErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return core.ErrUnauthorized
	case http.StatusNotFound:
		return core.ErrObjectNotFound
	default:
		return core.ErrBadStatus
	}
}
