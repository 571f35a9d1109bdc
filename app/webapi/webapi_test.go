package webapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-pkgz/routegroup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailsift/mailsift/lib/scorecheck"
)

type mockScorer struct {
	prob  float64
	calls int
}

func (m *mockScorer) Score(string) float64 {
	m.calls++
	return m.prob
}

func testServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	if cfg.History == nil {
		cfg.History = scorecheck.NewHistory(100)
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 0.5
	}
	srv := NewServer(cfg)
	router := routegroup.New(http.NewServeMux())
	srv.routes(router)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts
}

func TestServer_CheckJSON(t *testing.T) {
	tests := []struct {
		name string
		prob float64
		spam bool
	}{
		{"spam verdict", 0.83, true},
		{"ham verdict", 0.12, false},
		{"exact threshold is spam", 0.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scorer := &mockScorer{prob: tt.prob}
			ts := testServer(t, Config{Scorer: scorer, Source: "builtin demo model"})

			body, err := json.Marshal(map[string]string{"subject": "hello", "body": "world"})
			require.NoError(t, err)
			resp, err := http.Post(ts.URL+"/check", "application/json", bytes.NewReader(body))
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var res scorecheck.Result
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
			assert.Equal(t, tt.spam, res.Spam)
			assert.InDelta(t, tt.prob, res.Probability, 1e-12)
			assert.InDelta(t, 0.5, res.Threshold, 1e-12)
			assert.Equal(t, "builtin demo model", res.Source)
			assert.Equal(t, 1, scorer.calls)
		})
	}
}

func TestServer_CheckJSONBadRequest(t *testing.T) {
	ts := testServer(t, Config{Scorer: &mockScorer{}})
	resp, err := http.Post(ts.URL+"/check", "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_CheckEmptyInput(t *testing.T) {
	scorer := &mockScorer{prob: 0.9}
	history := scorecheck.NewHistory(10)
	ts := testServer(t, Config{Scorer: scorer, History: history})

	body := `{"subject": "  ", "body": "\n"}`
	resp, err := http.Post(ts.URL+"/check", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, scorer.calls, "pipeline not invoked for empty input")
	assert.Empty(t, history.Last(10), "nothing recorded for empty input")
}

func TestServer_CheckHtmxForm(t *testing.T) {
	ts := testServer(t, Config{Scorer: &mockScorer{prob: 0.9}})

	form := url.Values{"subject": {"Trúng thưởng"}, "body": {"bấm link ngay"}, "threshold": {"0.5"}}
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/check", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "SPAM")
	assert.Contains(t, string(body), "0.900")
}

func TestServer_CheckHtmxEmptyInput(t *testing.T) {
	ts := testServer(t, Config{Scorer: &mockScorer{prob: 0.9}})

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/check", strings.NewReader("subject=&body="))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "info")
}

func TestServer_CheckThresholdOverride(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		expected  float64
	}{
		{"in range", 0.7, 0.7},
		{"too high clamped", 0.95, 0.9},
		{"too low clamped", 0.01, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := testServer(t, Config{Scorer: &mockScorer{prob: 0.5}})

			body, err := json.Marshal(scorecheck.Request{Subject: "x", Body: "y", Threshold: tt.threshold})
			require.NoError(t, err)
			resp, err := http.Post(ts.URL+"/check", "application/json", bytes.NewReader(body))
			require.NoError(t, err)
			defer resp.Body.Close()

			var res scorecheck.Result
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
			assert.InDelta(t, tt.expected, res.Threshold, 1e-12)
		})
	}
}

func TestServer_Reporter(t *testing.T) {
	var reported []scorecheck.Entry
	ts := testServer(t, Config{
		Scorer:   &mockScorer{prob: 0.8},
		Reporter: ReporterFunc(func(e scorecheck.Entry) { reported = append(reported, e) }),
	})

	body := `{"subject": "spam subject", "body": "spam body"}`
	resp, err := http.Post(ts.URL+"/check", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, reported, 1)
	assert.True(t, reported[0].Spam)
	assert.Equal(t, "spam subject", reported[0].Subject)
}

func TestServer_History(t *testing.T) {
	history := scorecheck.NewHistory(10)
	ts := testServer(t, Config{Scorer: &mockScorer{prob: 0.8}, History: history})

	for _, subj := range []string{"first", "second"} {
		body, err := json.Marshal(map[string]string{"subject": subj, "body": "text"})
		require.NoError(t, err)
		resp, err := http.Post(ts.URL+"/check", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
	}

	resp, err := http.Get(ts.URL + "/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res struct {
		Entries []scorecheck.Entry `json:"entries"`
		Count   int                `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	require.Equal(t, 2, res.Count)
	assert.Equal(t, "second", res.Entries[0].Subject, "newest first")
	assert.Equal(t, "first", res.Entries[1].Subject)
}

func TestServer_HistoryHtmx(t *testing.T) {
	ts := testServer(t, Config{Scorer: &mockScorer{prob: 0.8}})

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/history", http.NoBody)
	require.NoError(t, err)
	req.Header.Set("HX-Request", "true")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Chưa có lịch sử", "empty history message")
}

func TestServer_HistoryCSV(t *testing.T) {
	history := scorecheck.NewHistory(10)
	ts := testServer(t, Config{Scorer: &mockScorer{prob: 0.8}, History: history})

	body := `{"subject": "csv subject", "body": "csv body"}`
	resp, err := http.Post(ts.URL+"/check", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/download/history.csv")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "time,verdict,probability,subject,excerpt", lines[0])
	assert.Contains(t, lines[1], "spam")
	assert.Contains(t, lines[1], "csv subject")
}

func TestServer_Examples(t *testing.T) {
	ts := testServer(t, Config{Scorer: &mockScorer{}})

	resp, err := http.Get(ts.URL + "/examples")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var examples []Example
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&examples))
	require.Len(t, examples, 2)
	assert.False(t, examples[0].Spam)
	assert.True(t, examples[1].Spam)
}

func TestServer_IndexPage(t *testing.T) {
	ts := testServer(t, Config{Scorer: &mockScorer{}, Source: "builtin demo model", Threshold: 0.5})

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "builtin demo model")
	assert.Contains(t, string(body), `hx-post="/check"`)
	assert.Contains(t, string(body), "threshold")
}

func TestServer_Styles(t *testing.T) {
	ts := testServer(t, Config{Scorer: &mockScorer{}})

	resp, err := http.Get(ts.URL + "/styles.css")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/css")
}

func TestClampThreshold(t *testing.T) {
	tests := []struct {
		name     string
		in       float64
		expected float64
	}{
		{"below range", 0.05, 0.1},
		{"lower bound", 0.1, 0.1},
		{"inside range", 0.42, 0.42},
		{"upper bound", 0.9, 0.9},
		{"above range", 0.99, 0.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, clampThreshold(tt.in), 1e-12)
		})
	}
}
