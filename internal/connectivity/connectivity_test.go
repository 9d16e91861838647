package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonitorSetReportsChanges(t *testing.T) {
	m := NewMonitor(false)
	require.False(t, m.IsOnline())

	require.True(t, m.Set(true))
	require.False(t, m.Set(true))
	require.True(t, m.IsOnline())
	require.True(t, m.Set(false))
	require.False(t, m.State().Online)
}

func TestMonitorSubscribeReceivesTransitions(t *testing.T) {
	m := NewMonitor(false)
	ch, cancel := m.Subscribe()
	defer cancel()

	m.Set(false)
	m.Set(true)

	select {
	case tr := <-ch:
		require.True(t, tr.Online)
	case <-time.After(time.Second):
		t.Fatal("expected transition")
	}

	select {
	case tr := <-ch:
		t.Fatalf("unexpected transition %+v", tr)
	default:
	}
}

func TestMonitorCancelClosesChannel(t *testing.T) {
	m := NewMonitor(true)
	ch, cancel := m.Subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	require.False(t, ok)
	require.True(t, m.Set(false), "setting after cancel must not panic")
}

func TestProberUpdatesMonitor(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	m := NewMonitor(false)
	p, err := NewProber(srv.URL+"/health", m, time.Second)
	require.NoError(t, err)

	require.NoError(t, p.Probe(context.Background()))
	require.True(t, m.IsOnline())

	status.Store(http.StatusBadGateway)
	require.Error(t, p.Probe(context.Background()))
	require.False(t, m.IsOnline())

	status.Store(http.StatusNotFound)
	require.NoError(t, p.Probe(context.Background()))
	require.True(t, m.IsOnline())
}

func TestProberMarksOfflineOnTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	m := NewMonitor(true)
	p, err := NewProber(url, m, 200*time.Millisecond)
	require.NoError(t, err)

	require.Error(t, p.Probe(context.Background()))
	require.False(t, m.IsOnline())
}

func TestNewProberValidates(t *testing.T) {
	_, err := NewProber("", NewMonitor(true), 0)
	require.Error(t, err)
	_, err = NewProber("http://x", nil, 0)
	require.Error(t, err)
}
