package syncproxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestProxy(t *testing.T, upstreamURL, sourceID, secret string) *Proxy {
	t.Helper()
	p, err := New(upstreamURL, sourceID, secret, zap.NewNop().Sugar())
	require.NoError(t, err)
	return p
}

func TestProxyInjectsTableAndFilter(t *testing.T) {
	var gotQuery url.Values
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`[]`))
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream.URL, "", "")

	req := httptest.NewRequest(http.MethodGet, "/api/chat-messages?offset=-1&live=true&handle=abc", nil)
	rec := httptest.NewRecorder()
	p.Serve(rec, req, "messages", "thread_id IN (1,2)")

	require.NotNil(t, gotQuery)
	assert.Equal(t, "messages", gotQuery.Get("table"))
	assert.Equal(t, "thread_id IN (1,2)", gotQuery.Get("where"))
	// Client continuation params pass through.
	assert.Equal(t, "-1", gotQuery.Get("offset"))
	assert.Equal(t, "true", gotQuery.Get("live"))
	assert.Equal(t, "abc", gotQuery.Get("handle"))
}

func TestProxyServerControlsTableAndWhere(t *testing.T) {
	var gotQuery url.Values
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`[]`))
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream.URL, "", "")

	// A client trying to smuggle its own table/where loses to the server.
	req := httptest.NewRequest(http.MethodGet, "/api/chat-threads?table=users&where=TRUE", nil)
	rec := httptest.NewRecorder()
	p.Serve(rec, req, "threads", "FALSE")

	require.NotNil(t, gotQuery)
	assert.Equal(t, "threads", gotQuery.Get("table"))
	assert.Equal(t, "FALSE", gotQuery.Get("where"))
}

func TestProxyAttachesSourceCredentials(t *testing.T) {
	var gotQuery url.Values
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`[]`))
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream.URL, "src-1", "topsecret")

	req := httptest.NewRequest(http.MethodGet, "/api/chat-threads?offset=-1", nil)
	rec := httptest.NewRecorder()
	p.Serve(rec, req, "threads", "FALSE")

	require.NotNil(t, gotQuery)
	assert.Equal(t, "src-1", gotQuery.Get("source_id"))
	assert.Equal(t, "topsecret", gotQuery.Get("secret"))
}

func TestProxyRelaysHeadersStatusAndBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Electric-Handle", "9987-0")
		w.Header().Set("Electric-Offset", "0_42")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`[{"value":{"id":1}}]`))
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream.URL, "", "")

	req := httptest.NewRequest(http.MethodGet, "/api/chat-threads?offset=-1", nil)
	rec := httptest.NewRecorder()
	p.Serve(rec, req, "threads", "id IN (1)")

	resp := rec.Result()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	// Cursor headers the client library resumes from must survive the relay.
	assert.Equal(t, "9987-0", resp.Header.Get("Electric-Handle"))
	assert.Equal(t, "0_42", resp.Header.Get("Electric-Offset"))
	assert.JSONEq(t, `[{"value":{"id":1}}]`, string(body))
}

func TestProxySurfacesUpstreamStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "shape gone", http.StatusConflict)
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream.URL, "", "")

	req := httptest.NewRequest(http.MethodGet, "/api/chat-threads", nil)
	rec := httptest.NewRecorder()
	p.Serve(rec, req, "threads", "FALSE")

	// Upstream errors pass through as-is; retry is the client's job.
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestProxyUnreachableUpstream(t *testing.T) {
	p := newTestProxy(t, "http://127.0.0.1:1", "", "")

	req := httptest.NewRequest(http.MethodGet, "/api/chat-threads", nil)
	rec := httptest.NewRecorder()
	p.Serve(rec, req, "threads", "FALSE")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
