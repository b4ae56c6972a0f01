package httpapi

import (
	"net/http"
	"time"
)

// SubscriberCounter live viewer count
type SubscriberCounter interface {
	Count() int
}

// BrokerStatus ingest broker connection
type BrokerStatus interface {
	IsConnected() bool
}

type HealthHandler struct {
	hub    SubscriberCounter
	latest LatestSource
	broker BrokerStatus
}

func NewHealthHandler(hub SubscriberCounter, latest LatestSource) *HealthHandler {
	return &HealthHandler{hub: hub, latest: latest}
}

// WithBroker reports the MQTT connection; a lost broker makes the service unhealthy
func (h *HealthHandler) WithBroker(broker BrokerStatus) *HealthHandler {
	h.broker = broker
	return h
}

func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":           "ok",
		"live_subscribers": h.hub.Count(),
	}
	if ev, ok := h.latest.Latest(); ok {
		body["last_sample"] = ev.SampledAt.UTC().Format(time.RFC3339)
	}
	if h.broker != nil {
		connected := h.broker.IsConnected()
		body["mqtt_connected"] = connected
		if !connected {
			body["status"] = "degraded"
			writeJSON(w, http.StatusServiceUnavailable, FailWith("mqtt broker disconnected", body))
			return
		}
	}
	writeJSON(w, http.StatusOK, Ok(body))
}
