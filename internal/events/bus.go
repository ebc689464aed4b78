package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventSignalGenerated EventType = "SIGNAL_GENERATED"
	EventOrderPlaced     EventType = "ORDER_PLACED"
	EventPositionClosed  EventType = "POSITION_CLOSED"
	EventStopMoved       EventType = "STOP_MOVED"
	EventRiskBlocked     EventType = "RISK_BLOCKED"
	EventConfigUpdated   EventType = "CONFIG_UPDATED"
	EventEngineStarted   EventType = "ENGINE_STARTED"
	EventEngineStopped   EventType = "ENGINE_STOPPED"
	EventError           EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// Bus manages event publishing and subscriptions
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (b *Bus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (b *Bus) SubscribeAll(subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.allSubs = append(b.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Subscribers run on their own
// goroutines so a slow consumer never stalls the trading loop.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if subs, ok := b.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishSignal publishes a signal generated event
func (b *Bus) PublishSignal(side, reason string, stc, confidence float64) {
	b.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"side":       side,
			"reason":     reason,
			"stc":        stc,
			"confidence": confidence,
		},
	})
}

// PublishOrderPlaced publishes an order placed event
func (b *Bus) PublishOrderPlaced(ticket int64, side string, price, volume, stopLoss, takeProfit float64) {
	b.Publish(Event{
		Type: EventOrderPlaced,
		Data: map[string]interface{}{
			"ticket":      ticket,
			"side":        side,
			"price":       price,
			"volume":      volume,
			"stop_loss":   stopLoss,
			"take_profit": takeProfit,
		},
	})
}

// PublishPositionClosed publishes a position closed event
func (b *Bus) PublishPositionClosed(ticket int64, side string, entryPrice, closePrice, volume, profit float64) {
	b.Publish(Event{
		Type: EventPositionClosed,
		Data: map[string]interface{}{
			"ticket":      ticket,
			"side":        side,
			"entry_price": entryPrice,
			"close_price": closePrice,
			"volume":      volume,
			"profit":      profit,
		},
	})
}

// PublishStopMoved publishes a protective level change
func (b *Bus) PublishStopMoved(ticket int64, phase string, stopLoss, takeProfit float64) {
	b.Publish(Event{
		Type: EventStopMoved,
		Data: map[string]interface{}{
			"ticket":      ticket,
			"phase":       phase,
			"stop_loss":   stopLoss,
			"take_profit": takeProfit,
		},
	})
}

// PublishRiskBlocked publishes a trade blocked by the risk gate
func (b *Bus) PublishRiskBlocked(reason string) {
	b.Publish(Event{
		Type: EventRiskBlocked,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishError publishes an error event
func (b *Bus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
