package livepush

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brightline-ops/bookcore/pkg/logger"
)

const (
	writeDeadline  = 10 * time.Second
	pingInterval   = 20 * time.Second
	pongWait       = 25 * time.Second
	maxMessageSize = 512
)

// Transport upgrades HTTP connections to WebSocket and pumps Aggregator
// events to them. Grounded on NevzatMmc-updown/internal/ws's writePump /
// readPump split: one goroutine drains the subscriber's channel toward the
// socket and sends pings, another reads (and discards) inbound frames
// solely to detect client-initiated close.
type Transport struct {
	aggregator *Aggregator
	upgrader   websocket.Upgrader
	log        *logger.Logger
}

// NewTransport builds a Transport. allowedOrigins empty means allow all
// (suitable for same-origin operator UIs behind a reverse proxy).
func NewTransport(a *Aggregator, allowedOrigins []string, log *logger.Logger) *Transport {
	if log == nil {
		log = logger.NewFromEnv("livepush-transport")
	}
	return &Transport{
		aggregator: a,
		log:        log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, o := range allowedOrigins {
					if o == "*" || o == origin {
						return true
					}
				}
				return false
			},
		},
	}
}

// ServeWS upgrades r and streams Aggregator events to the caller until the
// connection drops, at which point the subscriber is unregistered and its
// buffer released. Suitable for mounting at a gorilla/mux route.
func (t *Transport) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	sub, err := t.aggregator.Connect(r.Context())
	if err != nil {
		t.log.WithError(err).Warn("failed to build initial snapshot for subscriber")
		_ = conn.Close()
		return
	}

	go t.readPump(conn, sub)
	t.writePump(conn, sub)
}

func (t *Transport) writePump(conn *websocket.Conn, sub *Subscriber) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		t.aggregator.Disconnect(sub)
		_ = conn.Close()
	}()

	for {
		select {
		case evt, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				t.log.WithError(err).Warn("failed to marshal live-push event")
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
			if evt.Type == EventTerminal {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; this is a server-push-only protocol.
// Its only job is to notice the connection dropping and unregister.
func (t *Transport) readPump(conn *websocket.Conn, sub *Subscriber) {
	defer t.aggregator.Disconnect(sub)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
