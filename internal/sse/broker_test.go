package sse

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/familycare/checkin-dispatch/internal/redis"
)

func setupTestBroker(t *testing.T) *Broker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := &redisclient.Client{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { client.Close() })

	broker := NewBroker(client)
	t.Cleanup(broker.Close)
	return broker
}

func TestBroker_PublishReachesHouseholdSubscribers(t *testing.T) {
	broker := setupTestBroker(t)

	client := broker.Subscribe("household-1")
	other := broker.Subscribe("household-2")

	event, err := NewEvent(EventCallScheduled, map[string]string{"sessionId": "s1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_ = broker.Publish(context.Background(), "household-1", event)
		select {
		case got := <-client.Events:
			assert.Equal(t, EventCallScheduled, got.Type)
			assert.JSONEq(t, `{"sessionId":"s1"}`, string(got.Data))
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case <-other.Events:
		t.Fatal("event leaked to another household")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroker_SubscribeUnsubscribe(t *testing.T) {
	broker := setupTestBroker(t)

	c1 := broker.Subscribe("household-1")
	c2 := broker.Subscribe("household-1")
	assert.Equal(t, 2, broker.ClientCount("household-1"))
	assert.Equal(t, 2, broker.TotalClients())

	broker.Unsubscribe(c1)
	assert.Equal(t, 1, broker.ClientCount("household-1"))

	select {
	case <-c1.Done:
	default:
		t.Fatal("unsubscribed client should be done")
	}

	broker.Unsubscribe(c2)
	assert.Equal(t, 0, broker.TotalClients())

	// unsubscribing twice must not panic on a closed channel
	broker.Unsubscribe(c2)
}
