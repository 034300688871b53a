package livepush

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/brightline-ops/bookcore/internal/store/memory"
)

func TestTransportServeWSDeliversConnectedEvent(t *testing.T) {
	m := memory.New()
	hub := NewHub(4)
	agg := NewAggregator(hub, m, nil, nil, time.Hour, nil)
	transport := NewTransport(agg, nil, nil)

	srv := httptest.NewServer(http.HandlerFunc(transport.ServeWS))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(payload), `"connected"`)

	_, payload, err = conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(payload), `"snapshot"`)
}
