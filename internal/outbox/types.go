// Package outbox stores side effects in the same transaction as the state
// change that causes them and relays them to dispatchers in the background.
package outbox

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// Message is the unit stored in outbox_messages.
type Message struct {
	Topic   string
	Payload json.RawMessage
	// OwnerID is the user the message was queued for; zero means none.
	OwnerID int
}

// Meta is the dispatch metadata handed to a Dispatcher.
type Meta struct {
	ID       uuid.UUID
	Topic    string
	Attempts int
}

// DispatchedMessage is the unit delivered by Relay to Dispatcher.
type DispatchedMessage struct {
	Meta    Meta
	Payload json.RawMessage
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg DispatchedMessage) error
}

type DispatcherFunc func(ctx context.Context, msg DispatchedMessage) error

func (f DispatcherFunc) Dispatch(ctx context.Context, msg DispatchedMessage) error {
	return f(ctx, msg)
}

// Mux routes messages to the dispatcher registered for their topic.
type Mux struct {
	routes map[string]Dispatcher
}

func NewMux() *Mux {
	return &Mux{routes: map[string]Dispatcher{}}
}

func (m *Mux) Handle(topic string, d Dispatcher) {
	m.routes[topic] = d
}

func (m *Mux) Dispatch(ctx context.Context, msg DispatchedMessage) error {
	d, ok := m.routes[msg.Meta.Topic]
	if !ok {
		return unknownTopic(msg.Meta.Topic)
	}
	return d.Dispatch(ctx, msg)
}
