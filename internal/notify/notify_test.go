package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/langchou/drivewayhub/internal/models"
)

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	err := n.Notify(context.Background(), models.NotificationPayload{
		Event:     "booking_confirmed",
		UserID:    3,
		Reference: "DH-ABC123",
		Message:   "Your booking is confirmed",
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("Booking notification").All()
	require.Len(t, entries, 1)
	require.Equal(t, "DH-ABC123", entries[0].ContextMap()["booking_reference"])
}

func TestRabbitMQ_NotAliveWithoutConnection(t *testing.T) {
	r := &RabbitMQ{ctx: context.Background(), logger: zap.NewNop()}
	require.False(t, r.IsAlive())
	require.NoError(t, r.Close())
}
