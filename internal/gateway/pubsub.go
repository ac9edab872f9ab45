// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"

	"github.com/absmach/mqttsn-gateway/internal/client"
	"github.com/absmach/mqttsn-gateway/internal/events"
	"github.com/absmach/mqttsn-gateway/pkg/messaging"
	"github.com/absmach/mqttsn-gateway/pkg/snproto"
)

// handleRegister answers a client-initiated topic-id registration.
// Topic-id allocation itself (picking the numeric id) is outside this
// spec's scope (spec.md §1 "the topic-id table" is an external
// collaborator); this gateway assigns ids sequentially per client.
func (g *Gateway) handleRegister(ctx context.Context, h client.Handle, c *client.Client, p *snproto.RegisterPacket) {
	id := nextTopicID(c)
	c.NormalTopics[id] = p.Topic
	g.ClientSendQ.Post(events.ClientSend(h, &snproto.RegackPacket{TopicID: snproto.TopicID(id), MsgID: p.MsgID, ReturnCode: snproto.RCAccepted}))
}

func nextTopicID(c *client.Client) uint16 {
	var max uint16
	for id := range c.NormalTopics {
		if id > max {
			max = id
		}
	}
	for id := range c.PredefinedTopics {
		if id > max {
			max = id
		}
	}
	return max + 1
}

func (g *Gateway) topicName(c *client.Client, idType snproto.TopicIDType, id snproto.TopicID) (string, bool) {
	if idType == snproto.TopicIDPredefined {
		name, ok := c.PredefinedTopics[uint16(id)]
		return name, ok
	}
	name, ok := c.NormalTopics[uint16(id)]
	return name, ok
}

// subscriberID derives a stable per-client-per-topic subscription id
// for later Unsubscribe calls.
func subscriberID(clientID, topic string) string {
	return clientID + "\x00" + topic
}

// handlePublish translates an upstream PUBLISH into a BrokerRequest and
// hands it to broker-send (spec.md §4.4 "handler → broker sender");
// the handler itself never calls the broker link, only packet-events
// take/two-queue-post suspension points (spec.md §5). The QoS-m1 path
// reaches here too, since the proxy's synthetic client is a normal
// *client.Client. That client is created with empty topic tables and
// nothing fills them, so a QoS -1 publish finds no topic name here and
// is dropped without a reply; no QoS -1 publish reaches broker-send.
func (g *Gateway) handlePublish(ctx context.Context, h client.Handle, c *client.Client, p *snproto.PublishPacket) {
	topic, ok := g.topicName(c, p.TopicIDType, p.TopicID)
	if !ok {
		if c.Kind != client.QoSm1 {
			g.ClientSendQ.Post(events.ClientSend(h, &snproto.PubackPacket{TopicID: p.TopicID, MsgID: p.MsgID, ReturnCode: snproto.RCInvalidTopicID}))
		}
		return
	}

	qos := p.QoS
	if qos < 0 {
		qos = 0
	}
	req := &events.BrokerRequest{
		Op:         events.OpPublish,
		Message:    &events.MqttMessage{Topic: topic, Payload: p.Data, QoS: byte(qos), Retain: p.Retain},
		AckMsgID:   p.MsgID,
		AckTopicID: p.TopicID,
		SkipAck:    p.QoS < 0 || c.Kind == client.QoSm1,
	}
	g.BrokerSendQ.Post(events.BrokerSend(h, req))
}

func (g *Gateway) handleSubscribe(ctx context.Context, h client.Handle, c *client.Client, p *snproto.SubscribePacket) {
	if c.Kind == client.QoSm1 {
		g.Logger.Warn("rejecting SUBSCRIBE from QoS(-1) proxy sender", "clientId", c.ID)
		return
	}

	topic := p.TopicName
	if p.TopicIDType == snproto.TopicIDPredefined {
		topic = c.PredefinedTopics[uint16(p.TopicID)]
	}

	id := nextTopicID(c)
	c.NormalTopics[id] = topic
	c.WaitedSubMsgIDs[p.MsgID] = id

	req := &events.BrokerRequest{
		Op:           events.OpSubscribe,
		SubscriberID: subscriberID(c.ID, topic),
		Topic:        topic,
		AckMsgID:     p.MsgID,
		AckTopicID:   snproto.TopicID(id),
		AckQoS:       p.QoS,
	}
	g.BrokerSendQ.Post(events.BrokerSend(h, req))
}

func (g *Gateway) handleUnsubscribe(ctx context.Context, h client.Handle, c *client.Client, p *snproto.UnsubscribePacket) {
	topic := p.TopicName
	if p.TopicIDType == snproto.TopicIDPredefined {
		topic = c.PredefinedTopics[uint16(p.TopicID)]
	}
	req := &events.BrokerRequest{
		Op:           events.OpUnsubscribe,
		SubscriberID: subscriberID(c.ID, topic),
		Topic:        topic,
		AckMsgID:     p.MsgID,
	}
	g.BrokerSendQ.Post(events.BrokerSend(h, req))
}

// handleBrokerRecv delivers a broker-sourced message to its client: if
// the client is asleep it is queued (spec.md §4.2, I3); otherwise it is
// translated into a PUBLISH and posted to client-send.
func (g *Gateway) handleBrokerRecv(ctx context.Context, h client.Handle, m *events.MqttMessage) {
	c, err := g.Registry.Resolve(h)
	if err != nil {
		return
	}

	if c.Status == client.Asleep || c.Status == client.Awake {
		c.EnqueueSleep(client.SleepQueue{Topic: m.Topic, Payload: m.Payload, QoS: m.QoS, Retain: m.Retain})
		return
	}

	id, topicType := resolveOutboundTopicID(c, m.Topic)
	g.ClientSendQ.Post(events.ClientSend(h, &snproto.PublishPacket{
		QoS:         snproto.QoS(m.QoS),
		Retain:      m.Retain,
		TopicIDType: topicType,
		TopicID:     id,
		Data:        m.Payload,
	}))
}

func resolveOutboundTopicID(c *client.Client, topic string) (snproto.TopicID, snproto.TopicIDType) {
	for id, name := range c.PredefinedTopics {
		if name == topic {
			return snproto.TopicID(id), snproto.TopicIDPredefined
		}
	}
	for id, name := range c.NormalTopics {
		if name == topic {
			return snproto.TopicID(id), snproto.TopicIDNormal
		}
	}
	id := nextTopicID(c)
	c.NormalTopics[id] = topic
	return snproto.TopicID(id), snproto.TopicIDNormal
}

// subscription adapts a broker-side subscription into packet-events so
// incoming messages take the single consumer path through the handler
// (spec.md §5 "Per-client mutable state... is mutated only by the
// handler").
type subscription struct {
	gw     *Gateway
	client client.Handle
}

func (s *subscription) Handle(msg *messaging.Message) error {
	s.gw.PacketEvents.Post(events.BrokerRecv(s.client, &events.MqttMessage{
		Topic:   msg.Topic,
		Payload: msg.Payload,
		QoS:     msg.QoS,
		Retain:  msg.Retain,
	}))
	return nil
}

func (s *subscription) Cancel() error { return nil }
