package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestRecorderCounts(t *testing.T) {
	t.Parallel()

	r := New("https://www.clarence.nsw.gov.au/Development/DAs")
	r.ItemFound()
	r.ItemFound()
	r.ItemFound()
	r.RecordSaved()
	r.ItemSkipped(SkipNoLink)
	r.ItemSkipped(SkipMissingField)
	r.RecordsDeleted(4)
	r.RecordsDeleted(0)
	r.Compacted("backlog")
	r.ObserveFetch(1200*time.Millisecond, 1700*time.Millisecond)
	r.MarkSuccess(time.Unix(1700000000, 0))

	assert.InDelta(t, 3, testutil.ToFloat64(r.itemsFound), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.recordsSaved), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.itemsSkipped.WithLabelValues(SkipNoLink)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.itemsSkipped.WithLabelValues(SkipMissingField)), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(r.deleted), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.compactions.WithLabelValues("backlog")), 0)
	assert.InDelta(t, 1.7, testutil.ToFloat64(r.pause), 1e-9)
	assert.InDelta(t, 1700000000, testutil.ToFloat64(r.lastSuccess), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(r.fetchDuration, "da_fetch_duration_seconds"))
	assert.Equal(t, "www.clarence.nsw.gov.au", r.site)
}

func TestRecordersAreIndependent(t *testing.T) {
	t.Parallel()

	a := New("https://a.example")
	b := New("https://b.example")
	a.RecordSaved()

	assert.InDelta(t, 1, testutil.ToFloat64(a.recordsSaved), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(b.recordsSaved), 0)
}

func TestNilRecorderIsNoop(t *testing.T) {
	t.Parallel()

	var r *Recorder
	assert.NotPanics(t, func() {
		r.ItemFound()
		r.RecordSaved()
		r.ItemSkipped(SkipNoLink)
		r.RecordsDeleted(1)
		r.Compacted("forced")
		r.ObserveFetch(time.Second, time.Second)
		r.MarkSuccess(time.Now())
	})
	assert.Nil(t, r.Registry())
	require.NoError(t, r.Push(context.Background(), "http://unused", "job"))
}

func TestPush(t *testing.T) {
	t.Parallel()

	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		b, _ := io.ReadAll(req.Body)
		mu.Lock()
		method, path, body = req.Method, req.URL.Path, string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	r := New("https://council.example/das")
	r.RecordSaved()

	require.NoError(t, r.Push(context.Background(), gateway.URL, "da_scraper"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.True(t, strings.HasPrefix(path, "/metrics/job/da_scraper"), path)
	assert.Contains(t, path, "/site/council.example")
	assert.NotEmpty(t, body)
}

func TestPushDisabledAndFailing(t *testing.T) {
	t.Parallel()

	r := New("https://council.example")
	require.NoError(t, r.Push(context.Background(), "", "da_scraper"))

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gateway.Close()

	require.Error(t, r.Push(context.Background(), gateway.URL, "da_scraper"))
}
