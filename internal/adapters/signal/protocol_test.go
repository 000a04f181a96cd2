package signal

import (
	"encoding/json"
	"testing"

	"github.com/dkeye/roomcast/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeResponseKeepsEntityIDs(t *testing.T) {
	payloads := map[string]any{
		"transportId": domain.TransportParams{ID: "t-1", Direction: domain.DirectionSend},
		"producerId":  produceResponse{ProducerID: "p-1"},
		"consumerId":  domain.ConsumerInfo{ID: "c-1", ProducerID: "p-1", Kind: domain.KindVideo, Paused: true},
	}
	for key, payload := range payloads {
		frame, err := encodeResponse(42, payload)
		require.NoError(t, err, key)

		var got map[string]any
		require.NoError(t, json.Unmarshal(frame, &got))
		assert.Equal(t, float64(42), got["id"], key)
		assert.Equal(t, "response", got["type"], key)
		assert.Equal(t, true, got["success"], key)
		assert.IsType(t, "", got[key], key)
		assert.NotEmpty(t, got[key], key)
	}
}

func TestEncodeResponseRejectsEnvelopeKeys(t *testing.T) {
	for _, key := range envelopeKeys {
		_, err := encodeResponse(1, map[string]any{key: "x"})
		assert.Error(t, err, key)
	}

	_, err := encodeResponse(1, []int{1})
	assert.Error(t, err)

	frame, err := encodeResponse(7, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"response","id":7,"success":true}`, string(frame))
}
