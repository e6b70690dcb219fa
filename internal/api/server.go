package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
	"github.com/JakeFAU/bundle-archiver/internal/id/uuid"
	"github.com/JakeFAU/bundle-archiver/internal/locate"
	"github.com/JakeFAU/bundle-archiver/internal/metrics"
	"github.com/JakeFAU/bundle-archiver/internal/trace"
	"github.com/JakeFAU/bundle-archiver/internal/versionindex"
)

// maxTraceBody caps pasted trace input.
const maxTraceBody = 1 << 20

// Server wires HTTP handlers to the version index and source resolver.
type Server struct {
	router   chi.Router
	index    *versionindex.Index
	resolver *locate.Resolver
	ids      *uuid.Generator
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(index *versionindex.Index, resolver *locate.Resolver, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		index:    index,
		resolver: resolver,
		ids:      uuid.New(),
		logger:   logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/versions", s.listVersions)
		r.Get("/source/{domain}/{kind}", s.getSource)
		r.Post("/trace/{domain}/{kind}", s.postTrace)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type versionsResponse struct {
	Pointer  string    `json:"pointer,omitempty"`
	Updated  time.Time `json:"updated,omitempty"`
	Versions []string  `json:"versions"`
}

func (s *Server) listVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.index.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := versionsResponse{Versions: make([]string, 0, len(versions))}
	for _, v := range versions {
		resp.Versions = append(resp.Versions, v.String())
	}
	ptr, ok, err := s.index.Pointer(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ok {
		resp.Pointer = ptr.Version.String()
		resp.Updated = ptr.Updated.UTC()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type sourceResponse struct {
	Version string         `json:"version"`
	Domain  string         `json:"domain"`
	Kind    string         `json:"kind"`
	Line    int            `json:"line"`
	Groups  []locate.Group `json:"groups"`
}

func (s *Server) getSource(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	line, err := intParam(q.Get("line"), 0)
	if err != nil || line <= 0 {
		s.writeError(w, http.StatusBadRequest, "line must be a positive integer")
		return
	}
	before, after, err := windowParams(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	src, ok := s.resolve(w, r)
	if !ok {
		return
	}
	metrics.ObserveLookup("line")
	s.writeJSON(w, http.StatusOK, sourceResponse{
		Version: src.Version.String(),
		Domain:  src.Domain,
		Kind:    string(src.Kind),
		Line:    line,
		Groups:  src.Groups(line, before, after),
	})
}

type traceResponse struct {
	Version string       `json:"version"`
	Domain  string       `json:"domain"`
	Kind    string       `json:"kind"`
	Mode    string       `json:"mode"`
	Hits    []locate.Hit `json:"hits"`
}

func (s *Server) postTrace(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := trace.Mode(q.Get("mode"))
	if mode == "" {
		mode = trace.ModeStack
	}
	threshold, err := intParam(q.Get("threshold"), -1)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "threshold must be an integer")
		return
	}
	extractor, err := trace.ForMode(mode, q.Get("separator"), q.Get("prefix"), threshold)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	before, after, err := windowParams(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTraceBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	src, ok := s.resolve(w, r)
	if !ok {
		return
	}
	metrics.ObserveLookup(string(mode))
	s.writeJSON(w, http.StatusOK, traceResponse{
		Version: src.Version.String(),
		Domain:  src.Domain,
		Kind:    string(src.Kind),
		Mode:    string(mode),
		Hits:    src.Trace(extractor.Extract(string(body)), before, after),
	})
}

// resolve reads the artifact named by the route and writes an error response
// when it cannot.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) (locate.Source, bool) {
	kind, err := archive.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return locate.Source{}, false
	}
	src, err := s.resolver.Resolve(r.Context(), locate.Selector{
		Tag:    r.URL.Query().Get("version"),
		Domain: chi.URLParam(r, "domain"),
		Kind:   kind,
	})
	switch {
	case errors.Is(err, archive.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
		return locate.Source{}, false
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return locate.Source{}, false
	}
	return src, true
}

func windowParams(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	before, err := intParam(q.Get("before"), locate.DefaultBefore)
	if err != nil || before < 0 {
		return 0, 0, errors.New("before must be a non-negative integer")
	}
	after, err := intParam(q.Get("after"), locate.DefaultAfter)
	if err != nil || after < 0 {
		return 0, 0, errors.New("after must be a non-negative integer")
	}
	return before, after, nil
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", raw, err)
	}
	return n, nil
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = s.ids.MustID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
