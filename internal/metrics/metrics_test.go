package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMetrics(t *testing.T) {
	m := New()

	m.BuildFinished("compiled", 2*time.Second)
	m.BuildFinished("compiled", time.Second)
	m.BuildFinished("schema_mismatch", time.Millisecond)
	m.RewriteFailed("tf2_msgs/TFMessage")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.builds.WithLabelValues("compiled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.builds.WithLabelValues("schema_mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rewriteFailures.WithLabelValues("tf2_msgs/TFMessage")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.buildDuration))
}

func TestRelayMetrics(t *testing.T) {
	m := New()

	m.MessageSent("/tf", 100)
	m.MessageSent("/tf", 50)
	m.MessageReceived("/tf", 150)
	m.MessageDropped("/camera/image", "rate_limited")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messages.WithLabelValues("/tf", "sent")))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.bytes.WithLabelValues("/tf", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("/tf", "received")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues("/camera/image", "rate_limited")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.BuildFinished("compiled", time.Second)
		m.RewriteFailed("tf2_msgs/TFMessage")
		m.MessageSent("/tf", 1)
		m.MessageReceived("/tf", 1)
		m.MessageDropped("/tf", "decode")
	})
	assert.Nil(t, m.Registry())
}

func TestHandler(t *testing.T) {
	m := New()
	m.BuildFinished("cached", time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `topicrelay_rewriter_builds_total{outcome="cached"} 1`), string(body))
}
