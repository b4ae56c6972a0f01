package httpapi

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"wisefido-power/internal/models"
	"wisefido-power/internal/telemetry"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startLiveServer(t *testing.T, hub *telemetry.Hub) string {
	router := NewRouter(zap.NewNop())
	router.RegisterLiveRoutes(NewLiveHandler(hub, time.Second, zap.NewNop()))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/power"
}

func dial(t *testing.T, url string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, hub *telemetry.Hub, n int) {
	require.Eventually(t, func() bool { return hub.Count() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestLiveHandler_EveryViewerGetsEveryEvent(t *testing.T) {
	hub := telemetry.NewHub(16, zap.NewNop(), nil)
	url := startLiveServer(t, hub)

	a, b := dial(t, url), dial(t, url)
	waitForSubscribers(t, hub, 2)

	for _, watts := range []int64{1500, 6500} {
		hub.Publish(models.NewLiveEvent(models.Reading{PowerWatts: watts}, time.Unix(1476000000, 0), models.DefaultMaxScale))
	}

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))

		var first, second map[string]any
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &first))
		_, data, err = conn.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &second))

		assert.Equal(t, float64(1500), first["power"])
		assert.Equal(t, "normal", first["band"])
		assert.Equal(t, float64(25), first["gauge_percent"])
		assert.Equal(t, float64(1476000000), first["time"])
		assert.Equal(t, "critical", second["band"])
		assert.Equal(t, float64(100), second["gauge_percent"])
	}
}

func TestLiveHandler_DisconnectUnsubscribes(t *testing.T) {
	hub := telemetry.NewHub(16, zap.NewNop(), nil)
	url := startLiveServer(t, hub)

	a, b := dial(t, url), dial(t, url)
	waitForSubscribers(t, hub, 2)

	require.NoError(t, a.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	a.Close()
	waitForSubscribers(t, hub, 1)

	// remaining viewer unaffected
	hub.Publish(models.NewLiveEvent(models.Reading{PowerWatts: 300}, time.Unix(1, 0), models.DefaultMaxScale))
	b.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := b.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"power":300`)
}

func TestLiveHandler_HubCloseEndsStream(t *testing.T) {
	hub := telemetry.NewHub(16, zap.NewNop(), nil)
	url := startLiveServer(t, hub)

	conn := dial(t, url)
	waitForSubscribers(t, hub, 1)

	hub.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
