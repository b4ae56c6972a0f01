package redis

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPublishJSONToStream_RoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	id, err := PublishJSONToStream(ctx, client, "power:live:stream", 0, map[string]interface{}{
		"power": 1500,
		"band":  "normal",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs, err := ReadRange(ctx, client, "power:live:stream", "-", "+")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &decoded))
	assert.Equal(t, float64(1500), decoded["power"])
	assert.Equal(t, "normal", decoded["band"])
}

func TestPublishToStream_StringifiesScalars(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	_, err := PublishToStream(ctx, client, "s", 0, map[string]interface{}{
		"i":   int64(42),
		"f":   2.5,
		"b":   true,
		"raw": []byte("x"),
	})
	require.NoError(t, err)

	msgs, err := ReadRange(ctx, client, "s", "-", "+")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "42", msgs[0].Values["i"])
	assert.Equal(t, "2.5", msgs[0].Values["f"])
	assert.Equal(t, "true", msgs[0].Values["b"])
	assert.Equal(t, "x", msgs[0].Values["raw"])
}
