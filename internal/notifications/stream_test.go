package notifications

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/0xPuncker/batch-registry/internal/testutil"
	"github.com/0xPuncker/batch-registry/pkg/types"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamListener(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	listener := NewStreamListener(client, testutil.NewTestLogger(), "")
	event := testEvent(types.EventRegistered)
	require.NoError(t, listener.OnEvent(context.Background(), event))

	messages, err := client.XRange(context.Background(), DefaultStreamName, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, event.ID.String(), messages[0].Values["event_id"])
	assert.Equal(t, string(types.EventRegistered), messages[0].Values["event_type"])

	var decoded types.RegistrationEvent
	require.NoError(t, json.Unmarshal([]byte(messages[0].Values["event"].(string)), &decoded))
	assert.Equal(t, "abc123", decoded.Application.ID)
}

func TestStreamListenerWithoutClient(t *testing.T) {
	listener := NewStreamListener(nil, testutil.NewTestLogger(), "")
	assert.Nil(t, listener)
	assert.NoError(t, listener.OnEvent(context.Background(), testEvent(types.EventRegistered)))
}
