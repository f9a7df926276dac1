package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandshakeAppendAndRecent(t *testing.T) {
	s := NewHandshakeStore(newTestDB(t))
	ctx := context.Background()

	for _, status := range []string{StatusPendingConfirmation, StatusAutoCommitted, StatusFailed} {
		id, err := s.Append(ctx, HandshakeEvent{
			SignalID: "sig-" + status,
			UserID:   "u1",
			Module:   "finance",
			Status:   status,
			Payload:  map[string]any{"confidence": 0.93},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, id)
	}
	_, err := s.Append(ctx, HandshakeEvent{SignalID: "sig-x", UserID: "u2", Module: "todo", Status: StatusApproved})
	require.NoError(t, err)

	events, err := s.Recent(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, events, 3)

	statuses := make(map[string]bool)
	for _, ev := range events {
		assert.Equal(t, "u1", ev.UserID)
		assert.False(t, ev.CreatedAt.IsZero())
		statuses[ev.Status] = true
	}
	assert.True(t, statuses[StatusAutoCommitted])
	assert.True(t, statuses[StatusPendingConfirmation])
	assert.True(t, statuses[StatusFailed])
}

func TestHandshakePayloadRoundtrip(t *testing.T) {
	s := NewHandshakeStore(newTestDB(t))
	ctx := context.Background()

	_, err := s.Append(ctx, HandshakeEvent{
		SignalID: "sig-1",
		UserID:   "u1",
		Module:   "crypto",
		Status:   StatusPendingConfirmation,
		Payload:  map[string]any{"risk_tier": "high", "dynamic_threshold": 0.97},
	})
	require.NoError(t, err)

	events, err := s.Recent(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "high", events[0].Payload["risk_tier"])
	assert.InDelta(t, 0.97, events[0].Payload["dynamic_threshold"].(float64), 0.001)
}

func TestHandshakeRecentRespectsLimit(t *testing.T) {
	s := NewHandshakeStore(newTestDB(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.Append(ctx, HandshakeEvent{
			SignalID: "sig", UserID: "u1", Module: "todo", Status: StatusPendingConfirmation,
		})
		require.NoError(t, err)
	}
	events, err := s.Recent(ctx, "u1", 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
