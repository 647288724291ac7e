// Copyright (C) 2025 Mudde Labs (dev@muddelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package bus provides the cross-instance notification channel.
//
// A message carries no state payload: receivers always re-read the
// durable store instead of trusting an embedded snapshot, which keeps
// sender and receiver free of any serialization-format coupling.
package bus

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DefaultChannelName names the banking sync channel.
const DefaultChannelName = "mudde_banking_sync"

// TypeUpdate signals that shared state changed and should be re-read.
const TypeUpdate = "UPDATE"

// SyncMessage is the single message shape carried on the channel.
type SyncMessage struct {
	Type   string `json:"type"`
	Source string `json:"source"`
}

// Handler processes a received message.
type Handler func(msg SyncMessage)

// Bus is the abstract publish/subscribe contract the coordinator
// depends on. The core never assumes a concrete transport.
type Bus interface {
	// Publish broadcasts msg to all subscribers, including ones
	// registered by the publishing instance. Receivers filter on
	// Source themselves.
	Publish(msg SyncMessage)

	// Subscribe registers a handler and returns a subscription ID
	// for Unsubscribe.
	Subscribe(handler Handler) string

	// Unsubscribe removes a subscription. Returns true if it existed.
	Unsubscribe(id string) bool
}

// ChannelBus is the in-process Bus implementation shared by all node
// instances attached to the same store.
//
// Thread Safety: safe for concurrent use.
type ChannelBus struct {
	name string

	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewChannelBus creates a named in-process bus.
func NewChannelBus(name string) *ChannelBus {
	if name == "" {
		name = DefaultChannelName
	}
	return &ChannelBus{
		name:     name,
		handlers: make(map[string]Handler),
	}
}

// Name returns the channel name.
func (b *ChannelBus) Name() string { return b.name }

// Publish delivers msg to every subscriber synchronously. Handler
// panics are recovered so one misbehaving subscriber cannot stop the
// rest from seeing the message.
func (b *ChannelBus) Publish(msg SyncMessage) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.safeInvoke(h, msg)
	}
}

func (b *ChannelBus) safeInvoke(h Handler, msg SyncMessage) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sync handler panicked",
				"channel", b.name,
				"type", msg.Type,
				"source", msg.Source,
				"panic", r,
			)
		}
	}()
	h(msg)
}

// Subscribe registers a handler for all messages on the channel.
func (b *ChannelBus) Subscribe(handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	b.handlers[id] = handler
	return id
}

// Unsubscribe removes a subscription.
func (b *ChannelBus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.handlers[id]; ok {
		delete(b.handlers, id)
		return true
	}
	return false
}

// SubscriberCount returns the number of active subscriptions.
func (b *ChannelBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

// MockBus records published messages for tests.
//
// Thread Safety: safe for concurrent use.
type MockBus struct {
	mu       sync.RWMutex
	Messages []SyncMessage
	handlers map[string]Handler
}

// NewMockBus creates an empty mock bus.
func NewMockBus() *MockBus {
	return &MockBus{handlers: make(map[string]Handler)}
}

// Publish records the message and delivers it to subscribers.
func (m *MockBus) Publish(msg SyncMessage) {
	m.mu.Lock()
	m.Messages = append(m.Messages, msg)
	handlers := make([]Handler, 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}

// Subscribe registers a handler.
func (m *MockBus) Subscribe(handler Handler) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.handlers[id] = handler
	return id
}

// Unsubscribe removes a subscription.
func (m *MockBus) Unsubscribe(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handlers[id]; ok {
		delete(m.handlers, id)
		return true
	}
	return false
}

// Published returns a copy of all recorded messages.
func (m *MockBus) Published() []SyncMessage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SyncMessage, len(m.Messages))
	copy(out, m.Messages)
	return out
}
