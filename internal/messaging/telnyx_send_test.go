package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/callback-scheduler/internal/observability/metrics"
)

func TestTelnyxSenderPostsMessage(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":{"id":"msg-1","status":"queued"}}`))
	}))
	defer srv.Close()

	s := NewTelnyxSender("key", "profile", "+15550001111", nil).WithBaseURL(srv.URL)
	require.NoError(t, s.Send(context.Background(), "+15552223333", "hello"))

	assert.Equal(t, map[string]string{
		"from":                 "+15550001111",
		"to":                   "+15552223333",
		"text":                 "hello",
		"messaging_profile_id": "profile",
	}, got)
}

func TestTelnyxSenderRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelnyxSender("key", "", "+15550001111", nil).WithBaseURL(srv.URL)
	var slept []time.Duration
	s.sleep = func(d time.Duration) { slept = append(slept, d) }

	require.NoError(t, s.Send(context.Background(), "+15552223333", "hi"))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Len(t, slept, 2)
}

func TestTelnyxSenderGivesUp(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"errors":[{"code":"40310"}]}`))
	}))
	defer srv.Close()

	s := NewTelnyxSender("key", "", "+15550001111", nil).WithBaseURL(srv.URL)
	s.sleep = func(time.Duration) {}

	err := s.Send(context.Background(), "+15552223333", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 422")
	assert.Equal(t, int32(telnyxSendAttempts), atomic.LoadInt32(&calls))
}

func TestTelnyxSenderValidates(t *testing.T) {
	assert.Error(t, NewTelnyxSender("", "", "", nil).Send(context.Background(), "+1555", "x"))
	assert.ErrorIs(t, NewTelnyxSender("k", "", "", nil).Send(context.Background(), "", "x"), ErrEmptyMessage)
	assert.ErrorIs(t, NewLogSender(nil).Send(context.Background(), "+1555", "  "), ErrEmptyMessage)
}

func TestBuildSender(t *testing.T) {
	s, provider, reason := BuildSender(ProviderSelectionConfig{}, nil)
	assert.IsType(t, &LogSender{}, s)
	assert.Equal(t, ProviderLog, provider)
	assert.Contains(t, reason, "TELNYX_API_KEY")

	s, provider, reason = BuildSender(ProviderSelectionConfig{TelnyxAPIKey: "k", TelnyxFrom: "+15550001111"}, nil)
	assert.IsType(t, &TelnyxSender{}, s)
	assert.Equal(t, ProviderTelnyx, provider)
	assert.Empty(t, reason)
}

type failingSender struct{ err error }

func (f failingSender) Send(context.Context, string, string) error { return f.err }

func TestMeteredSender(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewSchedulerMetrics(reg)

	ok := NewMeteredSender(failingSender{}, m)
	require.NoError(t, ok.Send(context.Background(), "a", "b"))
	bad := NewMeteredSender(failingSender{err: errors.New("down")}, m)
	require.Error(t, bad.Send(context.Background(), "a", "b"))

	assert.Equal(t, 1.0, counterValue(t, reg, "scheduler_messaging_outbound_total", "sent"))
	assert.Equal(t, 1.0, counterValue(t, reg, "scheduler_messaging_outbound_total", "failed"))
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, status string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "status" && label.GetValue() == status {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
