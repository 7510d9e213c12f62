package esi

import (
	"io"
	"net/http"
	"net/url"

	"github.com/esiweave/esiweave/internal/logging"
)

// Fetcher issues one fragment sub-request and returns the response or a
// transport error. The engine owns no transport of its own: connection
// pooling, timeouts and charset handling belong to the implementation.
type Fetcher interface {
	Fetch(req *http.Request) (*http.Response, error)
}

// FetchFunc adapts a function to the Fetcher interface.
type FetchFunc func(*http.Request) (*http.Response, error)

func (f FetchFunc) Fetch(req *http.Request) (*http.Response, error) { return f(req) }

// Sink receives the composed document as ordered byte chunks. Flush is
// called after every chunk so bytes reach the client without waiting
// for the document to finish.
type Sink interface {
	io.Writer
	Flush() error
}

// Defaults applied by New for zero-valued Config fields.
const (
	DefaultNamespace      = "esi"
	DefaultMaxDepth       = 10
	DefaultFallbackNotice = "\nAn error occurred while constructing this document.\n"
)

// Config holds the per-processor settings. One Config is constructed at
// startup and shared read-only across every document the processor
// handles.
type Config struct {
	// Namespace is the tag prefix recognized as directive markup.
	Namespace string
	// MaxDepth bounds include recursion; a fragment graph with a cycle
	// terminates with a MaxDepthError instead of recursing forever.
	MaxDepth int
	// FallbackNotice is appended, best effort, to a document whose
	// composition fails after streaming has begun.
	FallbackNotice string
}

// Processor is the execution engine: it consumes the event sequence of
// a document and renders it to a sink, recursively resolving include
// directives into fetched fragment content spliced in document order.
type Processor struct {
	cfg    Config
	logger logging.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger attaches a logger; without it the processor is silent.
func WithLogger(l logging.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l.WithComponent("esi")
		}
	}
}

// New constructs a Processor, filling zero-valued Config fields with
// package defaults.
func New(cfg Config, opts ...Option) *Processor {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.FallbackNotice == "" {
		cfg.FallbackNotice = DefaultFallbackNotice
	}
	p := &Processor{cfg: cfg, logger: logging.NewNop()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Execute streams the composed form of doc to sink. req is the original
// client request; its method and headers seed every fragment
// sub-request. Bytes already written when a failure surfaces have been
// delivered and cannot be retracted: on an unrecovered error Execute
// appends the fallback notice (best effort) and reports the error to
// the caller, which owns logging and alerting.
func (p *Processor) Execute(req *http.Request, doc io.Reader, sink Sink, fetch Fetcher) error {
	err := p.executeFragment(req, doc, sink, fetch, 0)
	if err == nil {
		return nil
	}
	p.logger.Error(req.Context(), err, "document composition failed")
	if _, werr := io.WriteString(sink, p.cfg.FallbackNotice); werr == nil {
		_ = sink.Flush()
	}
	return err
}

// executeFragment renders one event stream into sink. It is re-entered
// recursively for every resolved fragment, so a fragment's own includes
// are fully rendered before the parent stream continues; that
// sequencing alone guarantees document order.
func (p *Processor) executeFragment(req *http.Request, doc io.Reader, sink Sink, fetch Fetcher, depth int) error {
	return Parse(p.cfg.Namespace, doc, func(ev Event) error {
		switch ev := ev.(type) {
		case RawEvent:
			if _, err := sink.Write(ev.Bytes); err != nil {
				return err
			}
			return sink.Flush()
		case DirectiveEvent:
			switch tag := ev.Tag.(type) {
			case IncludeTag:
				return p.include(req, tag, sink, fetch, depth)
			case CommentTag:
				p.logger.Debug(req.Context(), "dropping comment directive", "text", tag.Text)
				return nil
			}
		}
		return nil
	})
}

// include resolves one include directive: fetch src, fall back to alt,
// then either splice the fragment recursively or apply the
// continue-on-error policy. The depth guard fires before any fetch and
// is fatal regardless of that policy.
func (p *Processor) include(req *http.Request, tag IncludeTag, sink Sink, fetch Fetcher, depth int) error {
	if depth+1 > p.cfg.MaxDepth {
		return &MaxDepthError{URL: tag.Src, Depth: p.cfg.MaxDepth}
	}

	ctx := req.Context()
	resp, err := p.fetchFragment(req, tag.Src, fetch)
	if err != nil && tag.Alt != "" {
		p.logger.Warn(ctx, err, "fragment request failed, trying alt", "src", tag.Src, "alt", tag.Alt)
		resp, err = p.fetchFragment(req, tag.Alt, fetch)
	}
	if err != nil {
		if tag.ContinueOnError {
			p.logger.Warn(ctx, err, "skipping failed fragment", "src", tag.Src)
			return nil
		}
		return err
	}

	defer resp.Body.Close()
	return p.executeFragment(req, resp.Body, sink, fetch, depth+1)
}

// fetchFragment issues the sub-request for one target URL and enforces
// the 2xx protocol contract on the response.
func (p *Processor) fetchFragment(orig *http.Request, target string, fetch Fetcher) (*http.Response, error) {
	sub, err := buildSubrequest(orig, target)
	if err != nil {
		return nil, err
	}
	p.logger.Debug(orig.Context(), "requesting fragment", "url", sub.URL.String())

	resp, err := fetch.Fetch(sub)
	if err != nil {
		return nil, &FetchError{URL: sub.URL.String(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &UnexpectedStatusError{URL: sub.URL.String(), StatusCode: resp.StatusCode}
	}
	return resp, nil
}

// buildSubrequest derives a fragment request from the original client
// request: same method, cloned headers, no body, cache bypass forced.
// A relative target resolves against the document request's URL, and
// Host follows the resolved target.
func buildSubrequest(orig *http.Request, target string) (*http.Request, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	if orig.URL != nil {
		u = orig.URL.ResolveReference(u)
	}

	sub, err := http.NewRequestWithContext(orig.Context(), orig.Method, u.String(), nil)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	if orig.Header != nil {
		sub.Header = orig.Header.Clone()
	}
	sub.Header.Del("Content-Length")
	sub.Header.Del("Content-Type")
	// Fragments come from the source of truth, never a shared cache.
	sub.Header.Set("Cache-Control", "no-store")
	sub.Header.Set("Pragma", "no-cache")
	sub.Host = u.Host
	return sub, nil
}
