package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	userID := uuid.New()
	env, err := NewEnvelope(EventToggleVideo, TogglePayload{UserID: userID, Enabled: true})
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var back Envelope
	require.NoError(t, json.Unmarshal(raw, &back))
	require.Equal(t, EventToggleVideo, back.Event)

	var p TogglePayload
	require.NoError(t, back.Decode(&p))
	require.Equal(t, userID, p.UserID)
	require.True(t, p.Enabled)
}

func TestEnvelopeWithoutPayload(t *testing.T) {
	env, err := NewEnvelope(EventRoomLeft, nil)
	require.NoError(t, err)
	require.Empty(t, env.Payload)

	var p TogglePayload
	require.Error(t, env.Decode(&p))
}

func TestNewErrorEnvelopeCarriesCode(t *testing.T) {
	env := NewErrorEnvelope(ErrRoomFull)
	require.Equal(t, EventError, env.Event)

	var p ErrorPayload
	require.NoError(t, env.Decode(&p))
	require.Equal(t, CodeRoomFull, p.Code)
	require.NotEmpty(t, p.Message)
}
