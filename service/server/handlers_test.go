package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/zviewer/service/config"
	"github.com/brojonat/zviewer/service/db"
	"github.com/brojonat/zviewer/service/metrics"
	natspkg "github.com/brojonat/zviewer/service/nats"
	"github.com/brojonat/zviewer/service/privacy"
	"github.com/brojonat/zviewer/service/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExplorer implements privacy.Explorer for testing.
// It's behavior-focused: we set what it should return, not verify call sequences.
type fakeExplorer struct {
	ids     map[string][]string
	txs     map[string]*privacy.Transaction
	err     error
	release chan struct{} // if set, AddressTransactionIDs blocks until closed
}

func (f *fakeExplorer) AddressTransactionIDs(ctx context.Context, address string) ([]string, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.ids[address], nil
}

func (f *fakeExplorer) Transaction(ctx context.Context, id string) (*privacy.Transaction, error) {
	tx, ok := f.txs[id]
	if !ok {
		return nil, errors.New("502 bad gateway")
	}
	return tx, nil
}

// fakeHistory implements LookupRecorder for testing.
type fakeHistory struct {
	mu      sync.Mutex
	records []db.RecordLookupParams
	err     error
}

func (f *fakeHistory) RecordLookup(ctx context.Context, params db.RecordLookupParams) (*db.Lookup, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.records = append(f.records, params)
	return &db.Lookup{RequestedAddress: params.RequestedAddress, Score: params.Score}, nil
}

func (f *fakeHistory) Records() []db.RecordLookupParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]db.RecordLookupParams(nil), f.records...)
}

func strPtr(s string) *string { return &s }

// threeTxExplorer knows t1abc with three transactions, one of which fails.
func threeTxExplorer() *fakeExplorer {
	return &fakeExplorer{
		ids: map[string][]string{
			"t1abc": {"aaaaaaaaaaaaaaaaaaaa", "bbbb", "cccc"},
		},
		txs: map[string]*privacy.Transaction{
			"aaaaaaaaaaaaaaaaaaaa": {ID: "aaaaaaaaaaaaaaaaaaaa", TotalOutputValue: 150000000, Outputs: []privacy.Output{
				{Address: strPtr("zs1shieldedaddress"), Value: 100000000},
			}},
			"cccc": {ID: "cccc", Outputs: []privacy.Output{
				{Address: strPtr("t1transparent"), Value: 50000000},
			}},
		},
	}
}

type testServer struct {
	srv       *Server
	handler   http.Handler
	publisher *natspkg.MockPublisher
	history   *fakeHistory
}

func newTestServer(t *testing.T, explorer privacy.Explorer) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	cfg := &config.Config{
		PublicURL:     "https://zviewer.example/",
		LookupTimeout: 5 * time.Second,
		SessionTTL:    time.Hour,
	}

	acquirer := privacy.NewAcquirer(explorer, 10, cfg.LookupTimeout, m, logger)
	publisher := natspkg.NewMockPublisher()
	history := &fakeHistory{}

	srv := New(":0", cfg, acquirer, session.NewRegistry(cfg.SessionTTL, m, logger), m, logger).
		WithHistory(history).
		WithPublisher(publisher).
		WithGatherer(reg)
	require.NoError(t, srv.WithTemplates())

	handler := srv.Handler()
	t.Cleanup(srv.lookups.Stop)

	return &testServer{srv: srv, handler: handler, publisher: publisher, history: history}
}

func (ts *testServer) do(t *testing.T, method, path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie set", session.CookieName)
	return nil
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, threeTxExplorer())

	rec := ts.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, threeTxExplorer())

	rec := ts.do(t, http.MethodOptions, "/api/v1/score/t1abc", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestScoreAPI_PartialFailure(t *testing.T) {
	ts := newTestServer(t, threeTxExplorer())

	rec := ts.do(t, http.MethodGet, "/api/v1/score/t1abc", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeJSON[scoreResponse](t, rec)
	assert.Equal(t, "t1abc", resp.Address)
	assert.Equal(t, "t1abc", resp.Requested)
	assert.Equal(t, 50, resp.Score)
	assert.Equal(t, privacy.SourceLive, resp.Source)
	assert.Empty(t, resp.FallbackReason)
	assert.Empty(t, resp.Notice)
	assert.Equal(t, privacy.TierPoor, resp.Tier)
	assert.Equal(t, "Use shielded addresses (zs1...) for max privacy", resp.Verdict)

	require.Len(t, resp.Transactions, 2)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "aaaaaaaaaaaaaaaa...", resp.Rows[0].Hash)
	assert.Equal(t, "1.5000", resp.Rows[0].Value)
	assert.Equal(t, privacy.ChipShielded, resp.Rows[0].Chips[0].Tier)
	assert.Equal(t, privacy.ChipTransparent, resp.Rows[1].Chips[0].Tier)

	assert.Equal(t, []int{50, 50}, resp.Chart.Data)
	assert.Equal(t, "#f59e0b", resp.Chart.BorderColor)
	assert.True(t, strings.HasPrefix(resp.ShareURL, "https://twitter.com/intent/tweet?text=My%20Zcash%20Privacy%20Score%3A%2050%25%20shielded!"))
}

func TestScoreAPI_RecordsLookup(t *testing.T) {
	ts := newTestServer(t, threeTxExplorer())

	rec := ts.do(t, http.MethodGet, "/api/v1/score/t1abc", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	events := ts.publisher.GetPublishedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "t1abc", events[0].Requested)
	assert.Equal(t, 50, events[0].Score)
	assert.Equal(t, 3, events[0].TransactionsRequested)
	assert.Equal(t, 2, events[0].TransactionsFetched)

	records := ts.history.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "live", records[0].Source)
	assert.Equal(t, 2, records[0].TotalOutputs)
}

func TestScoreAPI_SinkFailuresDoNotFailLookup(t *testing.T) {
	ts := newTestServer(t, threeTxExplorer())
	ts.history.err = errors.New("db down")
	ts.publisher.SetPublishError(errors.New("nats down"))

	rec := ts.do(t, http.MethodGet, "/api/v1/score/t1abc", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestScoreAPI_EmptyAddress(t *testing.T) {
	ts := newTestServer(t, threeTxExplorer())

	for _, path := range []string{"/api/v1/score", "/api/v1/score?address=", "/api/v1/score/%20%20"} {
		rec := ts.do(t, http.MethodGet, path, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)

		resp := decodeJSON[map[string]string](t, rec)
		assert.Equal(t, "Enter a Zcash address!", resp["error"], path)
	}
	assert.Zero(t, ts.publisher.GetPublishedEventCount())
}

func TestScoreAPI_QueryParameter(t *testing.T) {
	ts := newTestServer(t, threeTxExplorer())

	rec := ts.do(t, http.MethodGet, "/api/v1/score?address=t1abc", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50, decodeJSON[scoreResponse](t, rec).Score)
}

func TestScoreAPI_UnusualAddressFallsBack(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		reason privacy.FallbackReason
	}{
		{"inner space", "/api/v1/score?address=t1%20abc", privacy.ReasonNoTransactions},
		{"slash", "/api/v1/score?address=t1%2F..%2Fabc", privacy.ReasonNoTransactions},
		{"too long", "/api/v1/score/" + strings.Repeat("t", privacy.MaxAddressLength+1), privacy.ReasonInvalidAddress},
		{"control character", "/api/v1/score?address=t1%00abc", privacy.ReasonInvalidAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, threeTxExplorer())

			rec := ts.do(t, http.MethodGet, tt.path, nil, nil)
			require.Equal(t, http.StatusOK, rec.Code)

			resp := decodeJSON[scoreResponse](t, rec)
			assert.Equal(t, privacy.SourceDemo, resp.Source)
			assert.Equal(t, tt.reason, resp.FallbackReason)
			assert.Equal(t, privacy.FallbackNotice, resp.Notice)
			assert.Equal(t, 100, resp.Score)
		})
	}
}

func TestScoreAPI_Fallback(t *testing.T) {
	tests := []struct {
		name     string
		explorer *fakeExplorer
		reason   privacy.FallbackReason
	}{
		{"explorer down", &fakeExplorer{err: errors.New("connection refused")}, privacy.ReasonExplorerUnavailable},
		{"no transactions", &fakeExplorer{ids: map[string][]string{"t1empty": {}}}, privacy.ReasonNoTransactions},
		{"unknown address", &fakeExplorer{}, privacy.ReasonNoTransactions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.explorer)

			rec := ts.do(t, http.MethodGet, "/api/v1/score/t1empty", nil, nil)
			require.Equal(t, http.StatusOK, rec.Code)

			resp := decodeJSON[scoreResponse](t, rec)
			assert.Equal(t, privacy.DemoAddress, resp.Address)
			assert.Equal(t, "t1empty", resp.Requested)
			assert.Equal(t, 100, resp.Score)
			assert.Equal(t, privacy.SourceDemo, resp.Source)
			assert.Equal(t, tt.reason, resp.FallbackReason)
			assert.Equal(t, privacy.FallbackNotice, resp.Notice)
			assert.Len(t, resp.Transactions, 10)
		})
	}
}

func TestDemoAPI(t *testing.T) {
	ts := newTestServer(t, threeTxExplorer())

	rec := ts.do(t, http.MethodGet, "/api/v1/demo", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[scoreResponse](t, rec)
	assert.Equal(t, privacy.DemoAddress, resp.Address)
	assert.Equal(t, 100, resp.Score)
	assert.Equal(t, "Excellent privacy!", resp.Verdict)
	assert.Len(t, resp.Rows, 10)
	assert.Equal(t, "demo-1...", resp.Rows[0].Hash)
	assert.Equal(t, "0.0000", resp.Rows[0].Value)
	assert.Len(t, resp.Chart.Data, 10)
	assert.Equal(t, "#10b981", resp.Chart.BorderColor)
}

func TestIndexPage_InitialDemo(t *testing.T) {
	ts := newTestServer(t, threeTxExplorer())

	rec := ts.do(t, http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	sessionCookie(t, rec)

	body := rec.Body.String()
	assert.Contains(t, body, "Privacy Score: <strong>100% Shielded</strong>")
	assert.Contains(t, body, "Excellent privacy!")
	assert.Contains(t, body, "panel-good")
	assert.Contains(t, body, "demo-1...")
	assert.Contains(t, body, `value="`+privacy.DemoAddress+`"`)
	assert.Contains(t, body, `href="/share" target="_blank"`)
	assert.Contains(t, body, "View Privacy")
	assert.NotContains(t, body, "Loading...")
}

func TestIndexPage_UnknownPath(t *testing.T) {
	ts := newTestServer(t, threeTxExplorer())

	rec := ts.do(t, http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLookupFlow(t *testing.T) {
	ts := newTestServer(t, threeTxExplorer())

	cookie := sessionCookie(t, ts.do(t, http.MethodGet, "/", nil, nil))

	rec := ts.do(t, http.MethodPost, "/lookup", url.Values{"address": {"  t1abc "}}, cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	ts.srv.lookups.Wait()

	rec = ts.do(t, http.MethodGet, "/api/v1/session", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[sessionResponse](t, rec)
	assert.False(t, resp.Loading)
	assert.Equal(t, uint64(1), resp.Generation)
	assert.Equal(t, "t1abc", resp.Address)
	assert.Equal(t, 50, resp.Score)
	assert.Len(t, resp.Transactions, 2)
	assert.Nil(t, resp.Notice)

	page := ts.do(t, http.MethodGet, "/", nil, cookie).Body.String()
	assert.Contains(t, page, "Privacy Score: <strong>50% Shielded</strong>")
	assert.Contains(t, page, "panel-poor")
	assert.Contains(t, page, "chip-shielded")
	assert.Contains(t, page, "chip-transparent")
}

func TestLookupFlow_ShowsLoading(t *testing.T) {
	explorer := threeTxExplorer()
	explorer.release = make(chan struct{})
	ts := newTestServer(t, explorer)

	cookie := sessionCookie(t, ts.do(t, http.MethodGet, "/", nil, nil))
	ts.do(t, http.MethodPost, "/lookup", url.Values{"address": {"t1abc"}}, cookie)

	page := ts.do(t, http.MethodGet, "/", nil, cookie).Body.String()
	assert.Contains(t, page, "Loading...")
	assert.Contains(t, page, `http-equiv="refresh"`)
	assert.NotContains(t, page, "Privacy Score:", "results are cleared while loading")

	close(explorer.release)
	ts.srv.lookups.Wait()

	page = ts.do(t, http.MethodGet, "/", nil, cookie).Body.String()
	assert.NotContains(t, page, "Loading...")
	assert.Contains(t, page, "50% Shielded")
}

func TestLookupFlow_EmptyAddress(t *testing.T) {
	ts := newTestServer(t, threeTxExplorer())

	cookie := sessionCookie(t, ts.do(t, http.MethodGet, "/", nil, nil))

	rec := ts.do(t, http.MethodPost, "/lookup", url.Values{"address": {"   "}}, cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	resp := decodeJSON[sessionResponse](t, ts.do(t, http.MethodGet, "/api/v1/session", nil, cookie))
	assert.False(t, resp.Loading)
	assert.Equal(t, uint64(0), resp.Generation)
	assert.Equal(t, 100, resp.Score)
	assert.Len(t, resp.Transactions, 10)
	require.NotNil(t, resp.Notice)
	assert.Equal(t, session.NoticeError, resp.Notice.Level)
	assert.Equal(t, "Enter a Zcash address!", resp.Notice.Message)

	rec = ts.do(t, http.MethodPost, "/notice/dismiss", url.Values{}, cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	resp = decodeJSON[sessionResponse](t, ts.do(t, http.MethodGet, "/api/v1/session", nil, cookie))
	assert.Nil(t, resp.Notice)
}

func TestLookupFlow_UnusualAddressFallsBack(t *testing.T) {
	ts := newTestServer(t, threeTxExplorer())

	cookie := sessionCookie(t, ts.do(t, http.MethodGet, "/", nil, nil))
	rec := ts.do(t, http.MethodPost, "/lookup", url.Values{"address": {strings.Repeat("t", privacy.MaxAddressLength+1)}}, cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	ts.srv.lookups.Wait()

	resp := decodeJSON[sessionResponse](t, ts.do(t, http.MethodGet, "/api/v1/session", nil, cookie))
	assert.False(t, resp.Loading)
	assert.Equal(t, uint64(1), resp.Generation)
	assert.Equal(t, privacy.SourceDemo, resp.Source)
	assert.Equal(t, privacy.ReasonInvalidAddress, resp.FallbackReason)
	require.NotNil(t, resp.Notice)
	assert.Equal(t, session.NoticeWarning, resp.Notice.Level)
	assert.Equal(t, privacy.FallbackNotice, resp.Notice.Message)
}

func TestLookupFlow_FallbackNotice(t *testing.T) {
	ts := newTestServer(t, &fakeExplorer{err: errors.New("timeout")})

	cookie := sessionCookie(t, ts.do(t, http.MethodGet, "/", nil, nil))
	ts.do(t, http.MethodPost, "/lookup", url.Values{"address": {"t1abc"}}, cookie)
	ts.srv.lookups.Wait()

	page := ts.do(t, http.MethodGet, "/", nil, cookie).Body.String()
	assert.Contains(t, page, "notice-warning")
	assert.Contains(t, page, "Live data unavailable")
	assert.Contains(t, page, "100% Shielded")
}

func TestDemoAction(t *testing.T) {
	ts := newTestServer(t, threeTxExplorer())

	cookie := sessionCookie(t, ts.do(t, http.MethodGet, "/", nil, nil))
	ts.do(t, http.MethodPost, "/lookup", url.Values{"address": {"t1abc"}}, cookie)
	ts.srv.lookups.Wait()

	rec := ts.do(t, http.MethodPost, "/demo", url.Values{}, cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	resp := decodeJSON[sessionResponse](t, ts.do(t, http.MethodGet, "/api/v1/session", nil, cookie))
	assert.Equal(t, privacy.DemoAddress, resp.Address)
	assert.Equal(t, 100, resp.Score)
	assert.Equal(t, privacy.SourceDemo, resp.Source)
}

func TestDemoAction_DiscardsRunningLookup(t *testing.T) {
	explorer := threeTxExplorer()
	explorer.release = make(chan struct{})
	ts := newTestServer(t, explorer)

	cookie := sessionCookie(t, ts.do(t, http.MethodGet, "/", nil, nil))
	ts.do(t, http.MethodPost, "/lookup", url.Values{"address": {"t1abc"}}, cookie)
	ts.do(t, http.MethodPost, "/demo", url.Values{}, cookie)

	resp := decodeJSON[sessionResponse](t, ts.do(t, http.MethodGet, "/api/v1/session", nil, cookie))
	assert.False(t, resp.Loading)
	assert.Equal(t, uint64(2), resp.Generation)

	close(explorer.release)
	ts.srv.lookups.Wait()

	resp = decodeJSON[sessionResponse](t, ts.do(t, http.MethodGet, "/api/v1/session", nil, cookie))
	assert.Equal(t, privacy.DemoAddress, resp.Address)
	assert.Equal(t, privacy.SourceDemo, resp.Source)
	assert.Equal(t, 100, resp.Score)
	assert.False(t, resp.Loading)
}

func TestShareRedirect(t *testing.T) {
	ts := newTestServer(t, threeTxExplorer())

	rec := ts.do(t, http.MethodGet, "/share", nil, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	location := rec.Header().Get("Location")
	assert.Equal(t, privacy.ShareURL(100, "https://zviewer.example/"), location)

	u, err := url.Parse(location)
	require.NoError(t, err)
	assert.Equal(t, "My Zcash Privacy Score: 100% shielded! Check yours at https://zviewer.example/ #ZViewer @Zcash @Gemini",
		u.Query().Get("text"))
}

func TestSessionsAreIsolated(t *testing.T) {
	ts := newTestServer(t, threeTxExplorer())

	alice := sessionCookie(t, ts.do(t, http.MethodGet, "/", nil, nil))
	bob := sessionCookie(t, ts.do(t, http.MethodGet, "/", nil, nil))
	require.NotEqual(t, alice.Value, bob.Value)

	ts.do(t, http.MethodPost, "/lookup", url.Values{"address": {"t1abc"}}, alice)
	ts.srv.lookups.Wait()

	assert.Equal(t, 50, decodeJSON[sessionResponse](t, ts.do(t, http.MethodGet, "/api/v1/session", nil, alice)).Score)
	assert.Equal(t, 100, decodeJSON[sessionResponse](t, ts.do(t, http.MethodGet, "/api/v1/session", nil, bob)).Score)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, threeTxExplorer())

	ts.do(t, http.MethodGet, "/api/v1/score/t1abc", nil, nil)

	rec := ts.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `privacy_lookups_total{outcome="live",reason=""} 1`)
	assert.Contains(t, body, `http_requests_total{handler="/api/v1/score",method="GET",status="2xx"} 1`)
}

func TestPageURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/share", nil)
	req.Host = "localhost:8080"
	assert.Equal(t, "http://localhost:8080/", pageURL(&config.Config{}, req))

	req.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https://localhost:8080/", pageURL(&config.Config{}, req))

	assert.Equal(t, "https://zviewer.example/", pageURL(&config.Config{PublicURL: "https://zviewer.example/"}, req))
}
