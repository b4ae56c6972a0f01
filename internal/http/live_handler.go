package httpapi

import (
	"net/http"
	"time"

	"wisefido-power/internal/telemetry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = (wsPongWait * 9) / 10
	wsMaxReadBytes = 512
)

// LiveHandler streams every sampled LiveEvent to a WebSocket viewer as JSON
type LiveHandler struct {
	hub          *telemetry.Hub
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
	logger       *zap.Logger
}

func NewLiveHandler(hub *telemetry.Hub, writeTimeout time.Duration, logger *zap.Logger) *LiveHandler {
	return &LiveHandler{
		hub:          hub,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeWS one writer loop per viewer; a reader goroutine only watches for
// close frames and pongs. Any write failure or timeout disconnects the viewer.
func (h *LiveHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)

	log := h.logger.With(zap.String("subscriber_id", sub.ID), zap.String("remote_addr", r.RemoteAddr))
	log.Info("Live viewer connected")

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		conn.SetReadLimit(wsMaxReadBytes)
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				// dropped by the hub or shutting down
				conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				log.Info("Live viewer disconnected by hub")
				return
			}
			conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				log.Info("Live viewer send failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Info("Live viewer ping failed", zap.Error(err))
				return
			}
		case <-readerDone:
			log.Info("Live viewer closed connection")
			return
		}
	}
}
