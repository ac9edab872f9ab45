// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package mqtt implements messaging.PubSub over a single upstream MQTT
// broker connection, the concrete form of spec.md §6's "Broker client".
package mqtt

import (
	"context"
	"log/slog"
	"time"

	"github.com/absmach/mqttsn-gateway/pkg/errors"
	"github.com/absmach/mqttsn-gateway/pkg/messaging"
	MQTT "github.com/eclipse/paho.mqtt.golang"
)

var (
	// ErrConnect indicates the broker connection attempt failed.
	ErrConnect = errors.New("failed to connect to mqtt broker")
	// ErrNotConnected indicates an operation was attempted on a closed client.
	ErrNotConnected = errors.New("not connected to mqtt broker")
)

// Config holds the upstream broker connection parameters (spec.md §6).
type Config struct {
	URL            string
	ClientID       string
	Username       string
	Password       string
	ConnectTimeout time.Duration
	QoS            byte
}

type pubsub struct {
	client MQTT.Client
	qos    byte
	logger *slog.Logger
}

// New dials the upstream broker and returns a messaging.PubSub backed by
// it. One instance exists per transparent-mode client, or one shared
// instance in aggregator mode (spec.md §6).
func New(cfg Config, logger *slog.Logger) (messaging.PubSub, error) {
	opts := MQTT.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.ConnectTimeout)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := MQTT.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrap(ErrConnect, token.Error())
	}

	return &pubsub{client: client, qos: cfg.QoS, logger: logger}, nil
}

func (p *pubsub) Publish(ctx context.Context, topic string, msg *messaging.Message) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}

	qos := msg.QoS
	token := p.client.Publish(topic, qos, msg.Retain, msg.Payload)

	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()

	select {
	case <-done:
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pubsub) Subscribe(ctx context.Context, cfg messaging.SubscriberConfig) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}

	handler := func(_ MQTT.Client, m MQTT.Message) {
		msg := &messaging.Message{
			Topic:   m.Topic(),
			Payload: m.Payload(),
			QoS:     m.Qos(),
			Retain:  m.Retained(),
		}
		if err := cfg.Handler.Handle(msg); err != nil {
			p.logger.Warn("subscriber handler failed", "topic", m.Topic(), "error", err)
		}
	}

	token := p.client.Subscribe(cfg.Topic, p.qos, handler)
	token.Wait()
	return token.Error()
}

func (p *pubsub) Unsubscribe(ctx context.Context, id, topic string) error {
	token := p.client.Unsubscribe(topic)
	token.Wait()
	return token.Error()
}

func (p *pubsub) Close() error {
	p.client.Disconnect(250)
	return nil
}
