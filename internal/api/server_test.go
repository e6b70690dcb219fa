package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/bundle-archiver/internal/archive"
	"github.com/JakeFAU/bundle-archiver/internal/locate"
	"github.com/JakeFAU/bundle-archiver/internal/storage/memory"
	"github.com/JakeFAU/bundle-archiver/internal/versionindex"
)

var (
	older = archive.Version{Timestamp: 1700000000, Semver: "5.1"}
	newer = archive.Version{Timestamp: 1700600000, Semver: "5.2"}
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore(fixedClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	for _, v := range []archive.Version{older, newer} {
		_, err := store.CreateVersion(ctx, v)
		require.NoError(t, err)
		main := fmt.Sprintf("line one\nline two %s\nline three\nline four\nline five", v.Semver)
		require.NoError(t, store.Write(ctx, archive.Ref{Version: v, Domain: "meganz", Kind: archive.KindMain}, []byte(main), archive.WriteOptions{}))
	}
	require.NoError(t, store.Write(ctx, archive.Ref{Version: newer, Domain: "meganz", Kind: archive.KindChat}, []byte("chat one\nchat two"), archive.WriteOptions{}))
	require.NoError(t, store.WritePointer(ctx, newer))

	index := versionindex.New(store, store, zap.NewNop())
	return NewServer(index, locate.NewResolver(index, store, zap.NewNop()), zap.NewNop())
}

func serve(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(t), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	serve(t, s, http.MethodGet, "/v1/source/meganz/main?line=1", "")
	rec := serve(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "bundlearchiver_lookups_total")
}

func TestListVersions(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(t), http.MethodGet, "/v1/versions", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp versionsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, []string{older.String(), newer.String()}, resp.Versions)
	require.Equal(t, newer.String(), resp.Pointer)
}

func TestGetSourceUsesPointer(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(t), http.MethodGet, "/v1/source/meganz/main?line=2&before=1&after=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp sourceResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, newer.String(), resp.Version)
	require.Len(t, resp.Groups, 1)
	rows := resp.Groups[0].Rows
	require.Len(t, rows, 3)
	require.Equal(t, 2, rows[1].Number)
	require.True(t, rows[1].Target)
	require.Equal(t, "line two 5.2", rows[1].Text)
}

func TestGetSourceVersionTag(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(t), http.MethodGet, "/v1/source/mega.nz/main?line=2&version=v5.1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp sourceResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, older.String(), resp.Version)
	require.Equal(t, "meganz", resp.Domain)
}

func TestGetSourceWildcard(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(t), http.MethodGet, "/v1/source/meganz/all?line=1&before=0&after=0", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp sourceResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Groups, 2)
	require.Equal(t, "meganz.chat.js", resp.Groups[0].Name)
	require.Equal(t, "chat one", resp.Groups[0].Rows[0].Text)
}

func TestGetSourceErrors(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	tests := []struct {
		target string
		status int
	}{
		{"/v1/source/meganz/main", http.StatusBadRequest},
		{"/v1/source/meganz/main?line=zero", http.StatusBadRequest},
		{"/v1/source/meganz/main?line=1&before=-1", http.StatusBadRequest},
		{"/v1/source/meganz/styles?line=1", http.StatusBadRequest},
		{"/v1/source/meganz/pwm?line=1", http.StatusNotFound},
		{"/v1/source/megaio/main?line=1", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := serve(t, s, http.MethodGet, tt.target, "")
		require.Equal(t, tt.status, rec.Code, tt.target)
		require.Contains(t, rec.Body.String(), "error")
	}
}

func TestPostTraceStack(t *testing.T) {
	t.Parallel()

	body := "TypeError: x is undefined\n    at foo (blob:https://mega.nz/abc:2:7)\n    at bar (blob:https://mega.nz/abc:4:1)\n"
	rec := serve(t, newTestServer(t), http.MethodPost, "/v1/trace/meganz/main?before=0&after=0", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp traceResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "stack", resp.Mode)
	require.Len(t, resp.Hits, 2)
	require.Equal(t, 2, resp.Hits[0].Entry.Line)
	require.Equal(t, "line two 5.2", resp.Hits[0].Groups[0].Rows[0].Text)
	require.Equal(t, "line four", resp.Hits[1].Groups[0].Rows[0].Text)
}

func TestPostTraceScan(t *testing.T) {
	t.Parallel()

	body := "noise handler|3 more|12 tail"
	rec := serve(t, newTestServer(t), http.MethodPost, "/v1/trace/meganz/main?mode=scan&separator=%7C&threshold=2", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp traceResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Hits, 2)
	require.Equal(t, "handler", resp.Hits[0].Entry.Label)
	require.Equal(t, 3, resp.Hits[0].Entry.Line)
	require.Equal(t, 12, resp.Hits[1].Entry.Line)
	for _, row := range resp.Hits[1].Groups[0].Rows {
		require.False(t, row.Target, "line 12 is past the end of the artifact")
	}
}

func TestPostTraceBadMode(t *testing.T) {
	t.Parallel()

	rec := serve(t, newTestServer(t), http.MethodPost, "/v1/trace/meganz/main?mode=json", "x")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	s := newTestServer(t)
	rec := serve(t, s, http.MethodGet, "/healthz", "")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "caller-id")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, "caller-id", rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
