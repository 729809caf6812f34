package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBusyGroup(t *testing.T) {
	assert.True(t, isBusyGroup(errors.New("BUSYGROUP Consumer Group name already exists")))
	assert.True(t, isBusyGroup(errors.New("BUSYGROUP Consumer Group name 'crawl' already exists")))
	assert.False(t, isBusyGroup(errors.New("NOGROUP No such consumer group")))
	assert.False(t, isBusyGroup(nil))
}

func TestDecodeSessionCompleted(t *testing.T) {
	payload, err := DecodeSessionCompleted(map[string]any{
		"event_type": "SESSION_COMPLETED",
		"session_id": "run-1",
		"payload":    `{"session_id":"run-1","marketplace":"danawa","listings":7,"reviews":42,"failed":false}`,
	})
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, "run-1", payload.SessionID)
	assert.Equal(t, "danawa", payload.Marketplace)
	assert.Equal(t, 7, payload.Listings)
	assert.Equal(t, 42, payload.Reviews)
}

func TestDecodeSkipsOtherEventTypes(t *testing.T) {
	payload, err := DecodeSessionCompleted(map[string]any{
		"event_type": "SOMETHING_ELSE",
		"payload":    `{}`,
	})
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestDecodeRejectsMalformedMessages(t *testing.T) {
	_, err := DecodeSessionCompleted(map[string]any{
		"event_type": "SESSION_COMPLETED",
	})
	assert.Error(t, err)

	_, err = DecodeSessionCompleted(map[string]any{
		"event_type": "SESSION_COMPLETED",
		"payload":    "{not json",
	})
	assert.Error(t, err)
}
