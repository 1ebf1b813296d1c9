package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCountersAreExposed(t *testing.T) {
	before := testutil.ToFloat64(PlaybackEvents.WithLabelValues("like"))
	PlaybackEvents.WithLabelValues("like").Inc()
	EnrichmentJobs.WithLabelValues("dropped").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(PlaybackEvents.WithLabelValues("like")))

	body := scrape(t)
	assert.Contains(t, body, `reelstream_playback_events_total{kind="like"}`)
	assert.Contains(t, body, `reelstream_enrichment_jobs_total{result="dropped"}`)
}

func TestWatchPool(t *testing.T) {
	WatchPool(func() PoolStats { return PoolStats{Total: 5, Idle: 3, Acquired: 2} })
	// ignored: the first pool stays registered
	WatchPool(func() PoolStats { return PoolStats{Total: 99} })

	body := scrape(t)
	assert.Contains(t, body, "reelstream_db_pool_conns 5")
	assert.Contains(t, body, "reelstream_db_pool_idle_conns 3")
	assert.Contains(t, body, "reelstream_db_pool_acquired_conns 2")
}
