// Package fetch provides the HTTP transport behind fragment and
// document requests. It implements esi.Fetcher on top of net/http and
// normalizes textual response bodies to UTF-8 before they re-enter the
// parser.
package fetch

import (
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/esiweave/esiweave/internal/logging"
)

// Client wraps an *http.Client with fragment-oriented behavior. One
// Client is shared across all documents; the sub-requests it issues are
// built per directive by the engine.
type Client struct {
	httpClient *http.Client
	logger     logging.Logger
}

// NewClient builds a Client with the given per-request timeout. A zero
// timeout means no limit.
func NewClient(timeout time.Duration, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.WithComponent("fetch"),
	}
}

// Fetch implements esi.Fetcher. Textual bodies are wrapped with a
// charset-aware reader keyed on the Content-Type header, so the parser
// always sees UTF-8 regardless of what the origin emits.
func (c *Client) Fetch(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	c.logger.Debug(req.Context(), "upstream response",
		"url", req.URL.String(),
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	contentType := resp.Header.Get("Content-Type")
	if isTextual(contentType) {
		decoded, err := charset.NewReader(resp.Body, contentType)
		if err != nil {
			resp.Body.Close()
			return nil, err
		}
		resp.Body = &decodedBody{Reader: decoded, closer: resp.Body}
	}
	return resp, nil
}

// isTextual reports whether a Content-Type denotes markup or text worth
// charset normalization. Binary bodies pass through untouched.
func isTextual(contentType string) bool {
	mediaType := contentType
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	mediaType = strings.TrimSpace(strings.ToLower(mediaType))
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case strings.HasSuffix(mediaType, "+xml"):
		return true
	case mediaType == "application/xml", mediaType == "application/xhtml+xml":
		return true
	default:
		return false
	}
}

// decodedBody pairs a transcoding reader with the original body's
// closer so connection reuse still works.
type decodedBody struct {
	io.Reader
	closer io.Closer
}

func (d *decodedBody) Close() error { return d.closer.Close() }
