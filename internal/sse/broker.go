package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	redisclient "github.com/familycare/checkin-dispatch/internal/redis"
)

const (
	HeartbeatInterval = 30 * time.Second
)

// Household broadcast event types.
const (
	EventCallScheduled = "call_scheduled"
	EventCallStarted   = "call_started"
	EventCallCompleted = "call_completed"
	EventCallMissed    = "call_missed"
)

type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEvent marshals data into an Event of the given type.
func NewEvent(eventType string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Data: raw}, nil
}

type Client struct {
	HouseholdID string
	Events      chan Event
	Done        chan struct{}
}

type Broker struct {
	redis   *redisclient.Client
	clients map[string]map[*Client]bool // householdID -> set of clients
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewBroker(redisClient *redisclient.Client) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		redis:   redisClient,
		clients: make(map[string]map[*Client]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (b *Broker) Subscribe(householdID string) *Client {
	client := &Client{
		HouseholdID: householdID,
		Events:      make(chan Event, 100),
		Done:        make(chan struct{}),
	}

	b.mu.Lock()
	if b.clients[householdID] == nil {
		b.clients[householdID] = make(map[*Client]bool)
		go b.subscribeToRedis(householdID)
	}
	b.clients[householdID][client] = true
	clientCount := len(b.clients[householdID])
	b.mu.Unlock()

	log.Info().
		Str("householdId", householdID).
		Int("clientCount", clientCount).
		Msg("sse client subscribed")

	return client
}

func (b *Broker) Unsubscribe(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if clients, ok := b.clients[client.HouseholdID]; ok {
		if _, present := clients[client]; !present {
			return
		}
		delete(clients, client)
		close(client.Done)

		if len(clients) == 0 {
			delete(b.clients, client.HouseholdID)
		}

		log.Info().
			Str("householdId", client.HouseholdID).
			Int("clientCount", len(clients)).
			Msg("sse client unsubscribed")
	}
}

// Publish fans event out to every process subscribed to the household channel.
func (b *Broker) Publish(ctx context.Context, householdID string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	channel := redisclient.HouseholdChannel(householdID)
	return b.redis.Publish(ctx, channel, data).Err()
}

func (b *Broker) subscribeToRedis(householdID string) {
	channel := redisclient.HouseholdChannel(householdID)
	pubsub := b.redis.Subscribe(b.ctx, channel)
	defer pubsub.Close()

	log.Debug().
		Str("householdId", householdID).
		Str("channel", channel).
		Msg("redis pubsub subscribed")

	ch := pubsub.Channel()

	for {
		select {
		case <-b.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal event")
				continue
			}

			b.broadcast(householdID, event)
		}
	}
}

func (b *Broker) broadcast(householdID string, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients[householdID] {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("householdId", householdID).
				Msg("client event buffer full, dropping event")
		}
	}
}

func (b *Broker) Close() {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, clients := range b.clients {
		for client := range clients {
			close(client.Done)
		}
	}
	b.clients = make(map[string]map[*Client]bool)
}

func (b *Broker) ClientCount(householdID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[householdID])
}

func (b *Broker) TotalClients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, clients := range b.clients {
		total += len(clients)
	}
	return total
}
