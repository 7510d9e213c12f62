// Package server hosts the esiweave proxy: it resolves each request to
// an origin, fetches the origin document, and streams the composed body
// to the client while the esi engine resolves include directives.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/esiweave/esiweave/internal/config"
	"github.com/esiweave/esiweave/internal/esi"
	"github.com/esiweave/esiweave/internal/fetch"
	"github.com/esiweave/esiweave/internal/logging"
)

// Server ties the route table, the fetch client, and the esi processor
// into one http.Server.
type Server struct {
	cfg        *config.Config
	logger     logging.Logger
	processor  *esi.Processor
	fetcher    esi.Fetcher
	routes     *RouteTable
	httpServer *http.Server
}

// New wires a Server from configuration.
func New(cfg *config.Config, logger logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	routes, err := NewRouteTable(cfg.Routes.File, cfg.Upstream.URL, logger)
	if err != nil {
		return nil, fmt.Errorf("building route table: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		logger: logger.WithComponent("server"),
		processor: esi.New(esi.Config{
			Namespace:      cfg.ESI.Namespace,
			MaxDepth:       cfg.ESI.MaxDepth,
			FallbackNotice: cfg.ESI.FallbackNotice,
		}, esi.WithLogger(logger)),
		fetcher: fetch.NewClient(cfg.Upstream.Timeout, logger),
		routes:  routes,
	}

	handler := Chain(http.HandlerFunc(s.handleRequest), LoggingMiddleware(logger))
	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     handler,
		ReadTimeout: cfg.Server.ReadTimeout,
		// No WriteTimeout: composed documents stream for as long as
		// their fragments take.
	}
	return s, nil
}

// Handler exposes the configured handler chain, mainly for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start runs the server until ctx is cancelled, then shuts down
// gracefully within the configured timeout.
func (s *Server) Start(ctx context.Context) error {
	if err := s.routes.Watch(ctx); err != nil {
		return fmt.Errorf("watching route file: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	s.logger.Info(ctx, "listening", "addr", s.httpServer.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		s.logger.Info(ctx, "shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	origin, ok := s.routes.Resolve(r.URL.Path)
	if !ok {
		http.Error(w, "no route for path", http.StatusBadGateway)
		return
	}

	docReq, err := buildDocumentRequest(r, origin)
	if err != nil {
		s.logger.Error(r.Context(), err, "building document request", "path", r.URL.Path)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	resp, err := s.fetcher.Fetch(docReq)
	if err != nil {
		s.logger.Error(r.Context(), err, "origin unreachable", "url", docReq.URL.String())
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyResponseHeaders(w.Header(), resp.Header)
	// Composition changes the body length; let the response stream.
	w.Header().Del("Content-Length")

	if !isComposable(resp.Header.Get("Content-Type")) {
		w.WriteHeader(resp.StatusCode)
		if _, err := io.Copy(w, resp.Body); err != nil {
			s.logger.Warn(r.Context(), err, "passthrough copy interrupted", "path", r.URL.Path)
		}
		return
	}

	w.WriteHeader(resp.StatusCode)
	sink := newFlushSink(w)
	// The document request carries the absolute origin URL, so relative
	// include targets resolve against the document's own location.
	if err := s.processor.Execute(docReq, resp.Body, sink, s.fetcher); err != nil {
		// Headers and a document prefix are already on the wire; the
		// engine has appended its fallback notice. Nothing to send.
		s.logger.Error(r.Context(), err, "composition failed", "path", r.URL.Path)
	}
}

// buildDocumentRequest rewrites the client request to target the
// resolved origin, preserving method, body, query, and end-to-end
// headers.
func buildDocumentRequest(r *http.Request, origin *url.URL) (*http.Request, error) {
	target := *origin
	target.Path = strings.TrimSuffix(origin.Path, "/") + r.URL.Path
	target.RawQuery = r.URL.RawQuery

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		return nil, err
	}
	copyRequestHeaders(req.Header, r.Header)
	req.Host = target.Host
	return req, nil
}

// hopHeaders are connection-scoped and must not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func copyRequestHeaders(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}

func copyResponseHeaders(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
	for _, h := range hopHeaders {
		dst.Del(h)
	}
}

// isComposable reports whether an origin Content-Type is markup the
// engine should process. Everything else streams through untouched.
func isComposable(contentType string) bool {
	mediaType := contentType
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	mediaType = strings.TrimSpace(strings.ToLower(mediaType))
	switch mediaType {
	case "text/html", "application/xhtml+xml", "text/xml", "application/xml":
		return true
	default:
		return strings.HasSuffix(mediaType, "+xml")
	}
}

// flushSink adapts an http.ResponseWriter to esi.Sink. When the writer
// does not support flushing (buffered test recorders, HTTP/2 push
// writers mid-upgrade), Flush is a no-op and chunks still arrive in
// order.
type flushSink struct {
	w       io.Writer
	flusher http.Flusher
}

func newFlushSink(w http.ResponseWriter) *flushSink {
	f, _ := w.(http.Flusher)
	return &flushSink{w: w, flusher: f}
}

func (s *flushSink) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s *flushSink) Flush() error {
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}
