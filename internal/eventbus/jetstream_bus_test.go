package eventbus

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Требует запущенный NATS с JetStream: SHIPGRID_TEST_NATS=nats://localhost:4222
func TestJetStreamBusRoundTrip(t *testing.T) {
	url := os.Getenv("SHIPGRID_TEST_NATS")
	if url == "" {
		t.Skip("SHIPGRID_TEST_NATS не задан")
	}

	bus, err := NewJetStreamBus(url, "SHIPGRID_TEST", time.Minute)
	require.NoError(t, err)
	defer bus.Close()

	got := make(chan *Envelope, 1)
	sub, err := bus.Subscribe(context.Background(), Filter{Types: []string{EventGridSaved}}, func(ctx context.Context, ev *Envelope) {
		got <- ev
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	ev, err := NewEnvelope(EventGridSaved, "test", 5, GridPersisted{ShipID: "s1", Blocks: 3})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(context.Background(), ev))

	select {
	case recv := <-got:
		var payload GridPersisted
		require.NoError(t, recv.Decode(&payload))
		require.Equal(t, 3, payload.Blocks)
	case <-time.After(5 * time.Second):
		t.Fatal("событие из JetStream не получено")
	}
}
