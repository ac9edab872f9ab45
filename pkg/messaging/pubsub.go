// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package messaging defines the broker-facing publish/subscribe
// contract (spec.md §6 "Broker client"). A concrete implementation
// backed by github.com/eclipse/paho.mqtt.golang lives in
// pkg/messaging/mqtt.
package messaging

import "context"

// Message is the MQTT frame a Publisher/Subscriber exchanges with the
// broker. It is deliberately a plain struct rather than the teacher's
// protobuf-generated type: the gateway only ever treats the payload as
// an opaque byte slice (spec.md §3), so no schema/codegen is needed.
type Message struct {
	Topic     string
	Payload   []byte
	QoS       byte
	Retain    bool
	Publisher string
}

// MessageHandler represents a message handler for a Subscriber.
type MessageHandler interface {
	// Handle handles messages passed by the underlying implementation.
	Handle(msg *Message) error

	// Cancel is used for cleanup during unsubscribing; optional.
	Cancel() error
}

// SubscriberConfig defines the configuration for a subscriber.
type SubscriberConfig struct {
	// ID identifies the subscription for later Unsubscribe calls.
	ID string
	// ClientID is the MQTT-SN ClientId that owns this subscription.
	ClientID string
	Topic    string
	Handler  MessageHandler
}

// Publisher specifies the message publishing API.
type Publisher interface {
	// Publish publishes a message to the broker.
	Publish(ctx context.Context, topic string, msg *Message) error

	// Close gracefully closes the publisher's connection.
	Close() error
}

// Subscriber specifies the message subscription API.
type Subscriber interface {
	// Subscribe subscribes to the message stream and consumes messages.
	Subscribe(ctx context.Context, cfg SubscriberConfig) error

	// Unsubscribe stops consuming messages for id on topic.
	Unsubscribe(ctx context.Context, id, topic string) error

	// Close gracefully closes the subscriber's connection.
	Close() error
}

// PubSub aggregates the Publisher and Subscriber APIs; a single broker
// connection implements both, mirroring Client.broker_link (spec.md §3).
type PubSub interface {
	Publisher
	Subscriber
}
