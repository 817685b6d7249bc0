package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/fleetwatch/internal/metrics"
	"github.com/JakeFAU/fleetwatch/internal/notify"
)

func dialStream(t *testing.T, srv *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/notifications/stream"
	return websocket.DefaultDialer.Dial(url, header)
}

func readFrame(t *testing.T, conn *websocket.Conn) StreamMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestStreamSendsSnapshotThenEvents(t *testing.T) {
	t.Parallel()

	store := seedStore()
	srv := httptest.NewServer(newTestServer(t, Options{Store: store}).Handler())
	defer srv.Close()

	conn, _, err := dialStream(t, srv, nil)
	require.NoError(t, err)
	defer conn.Close()

	snap := readFrame(t, conn)
	require.Equal(t, StreamSnapshot, snap.Type)
	require.Len(t, snap.Notifications, 3)
	require.Equal(t, 3, snap.UnreadCount)

	store.MarkAsRead("n1")
	store.Add(notify.Draft{Title: "Backup Completed", Severity: notify.SeveritySuccess, Category: "backup"})

	evt := readFrame(t, conn)
	require.Equal(t, StreamEvent, evt.Type)
	require.Equal(t, notify.EventRead, evt.Event.Kind)
	require.Equal(t, 2, evt.UnreadCount)

	evt = readFrame(t, conn)
	require.Equal(t, notify.EventAdded, evt.Event.Kind)
	require.Equal(t, "Backup Completed", evt.Event.Notification.Title)
	require.Equal(t, 4, evt.Event.Total)
}

func TestStreamClosesWithStore(t *testing.T) {
	t.Parallel()

	store := newTestStore()
	reg := prometheus.NewRegistry()
	m := metrics.NewHTTP(reg)
	srv := httptest.NewServer(newTestServer(t, Options{Store: store, Metrics: m}).Handler())
	defer srv.Close()

	conn, _, err := dialStream(t, srv, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, StreamSnapshot, readFrame(t, conn).Type)

	store.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error %v", err)

	const want = `
# HELP fleetwatch_stream_connections Open notification stream connections.
# TYPE fleetwatch_stream_connections gauge
fleetwatch_stream_connections 0
`
	require.Eventually(t, func() bool {
		return testutil.GatherAndCompare(reg, strings.NewReader(want), "fleetwatch_stream_connections") == nil
	}, time.Second, 10*time.Millisecond)
}

func TestStreamRequiresAPIKey(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(newTestServer(t, Options{APIKey: "secret"}).Handler())
	defer srv.Close()

	_, resp, err := dialStream(t, srv, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dialStream(t, srv, http.Header{"X-API-Key": {"secret"}})
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, StreamSnapshot, readFrame(t, conn).Type)
}
