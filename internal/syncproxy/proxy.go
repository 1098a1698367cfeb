package syncproxy

import (
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// hop-by-hop headers are not forwarded; everything else, including the
// replication cursor/offset headers the client library resumes from, is
// relayed untouched.
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// Proxy forwards shape-subscription requests to the external replication
// service with a server-controlled table and row filter, and relays the
// streamed response without buffering it.
type Proxy struct {
	upstream *url.URL
	sourceID string
	secret   string
	client   *http.Client
	log      *zap.SugaredLogger
}

func New(syncURL, sourceID, secret string, log *zap.SugaredLogger) (*Proxy, error) {
	u, err := url.Parse(syncURL)
	if err != nil {
		return nil, fmt.Errorf("invalid sync URL: %w", err)
	}
	return &Proxy{
		upstream: u,
		sourceID: sourceID,
		secret:   secret,
		// No client timeout: live subscriptions hold the connection open
		// and cancellation comes from the inbound request context.
		client: &http.Client{},
		log:    log,
	}, nil
}

// Serve forwards the inbound subscription for table, constrained to where.
// The client's own continuation parameters (offset, handle, live, cursor)
// pass through; table and where always come from the server. The upstream
// request shares the inbound request context, so a client disconnect
// cancels the upstream subscription instead of leaving it orphaned.
func (p *Proxy) Serve(w http.ResponseWriter, r *http.Request, table, where string) {
	u := *p.upstream
	q := u.Query()
	for key, values := range r.URL.Query() {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	q.Set("table", table)
	q.Set("where", where)
	if p.sourceID != "" {
		q.Set("source_id", p.sourceID)
		q.Set("secret", p.secret)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, u.String(), nil)
	if err != nil {
		http.Error(w, "failed to build upstream request", http.StatusInternalServerError)
		return
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Warnw("sync upstream request failed", "table", table, "error", err)
		http.Error(w, "upstream sync request failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		if _, skip := hopByHopHeaders[http.CanonicalHeaderKey(key)]; skip {
			continue
		}
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				// Client went away; the deferred Body.Close and the shared
				// context stop the upstream read.
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			return
		}
	}
}
