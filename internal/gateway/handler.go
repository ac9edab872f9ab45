// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"

	"github.com/absmach/mqttsn-gateway/internal/client"
	"github.com/absmach/mqttsn-gateway/internal/events"
	"github.com/absmach/mqttsn-gateway/pkg/errors"
	"github.com/absmach/mqttsn-gateway/pkg/snproto"
)

// handlerLoop is the PacketHandler task (spec.md §2, §4.2): the task
// that advances each client's session state. Registry entries are not
// written by it alone: ClientRecv also creates, rebinds and forgets
// them (under the Registry's own lock). It takes events off
// packet-events until stopped.
func (g *Gateway) handlerLoop(ctx context.Context) error {
	for {
		ev, ok := g.PacketEvents.Take()
		if !ok {
			return nil
		}
		g.handleEvent(ctx, ev)
	}
}

func (g *Gateway) handleEvent(ctx context.Context, ev events.Event) {
	switch ev.Kind {
	case events.KindClientRecv:
		g.handleClientRecv(ctx, ev.Client, ev.SnPacket)
	case events.KindBrokerRecv:
		g.handleBrokerRecv(ctx, ev.Client, ev.MqttPacket)
	case events.KindBroadcast:
		g.handleBroadcast(ctx, ev.SnPacket)
	case events.KindTimeout:
		g.handleTimeout(ctx, ev.Client, ev.Timeout)
	}
}

func (g *Gateway) handleBroadcast(ctx context.Context, pkt snproto.Packet) {
	if pkt.Type() != snproto.SEARCHGW {
		return
	}
	info := &snproto.GwInfoPacket{GatewayID: g.Config.GatewayID}
	// GWINFO answers go out on the sensor network, not the broker link;
	// broker-send is reserved for real MQTT traffic (spec.md §4.4).
	g.ClientSendQ.Post(events.Broadcast(info))
}

// handleClientRecv dispatches an inbound MQTT-SN packet through the
// connection state machine (spec.md §4.2).
func (g *Gateway) handleClientRecv(ctx context.Context, h client.Handle, pkt snproto.Packet) {
	c, err := g.Registry.Resolve(h)
	if err != nil {
		g.Logger.Debug("event for vanished client, ignoring", "error", err)
		return
	}

	g.armKeepAlive(h, c)

	switch p := pkt.(type) {
	case *snproto.ConnectPacket:
		g.handleConnect(ctx, h, c, p)
	case *snproto.WillTopicPacket:
		g.handleWillTopic(ctx, h, c, p)
	case *snproto.WillMsgPacket:
		g.handleWillMsg(ctx, h, c, p)
	case *snproto.WillTopicUpdPacket:
		g.ClientSendQ.Post(events.ClientSend(h, &snproto.WillTopicRespPacket{ReturnCode: snproto.RCNotSupported}))
	case *snproto.WillMsgUpdPacket:
		g.ClientSendQ.Post(events.ClientSend(h, &snproto.WillMsgRespPacket{ReturnCode: snproto.RCNotSupported}))
	case *snproto.DisconnectPacket:
		g.handleDisconnect(ctx, h, c, p)
	case *snproto.PingreqPacket:
		g.handlePingreq(ctx, h, c, p)
	case *snproto.PublishPacket:
		if g.requireActive(h, c, pkt.Type()) {
			g.handlePublish(ctx, h, c, p)
		}
	case *snproto.RegisterPacket:
		if g.requireActive(h, c, pkt.Type()) {
			g.handleRegister(ctx, h, c, p)
		}
	case *snproto.SubscribePacket:
		if g.requireActive(h, c, pkt.Type()) {
			g.handleSubscribe(ctx, h, c, p)
		}
	case *snproto.UnsubscribePacket:
		if g.requireActive(h, c, pkt.Type()) {
			g.handleUnsubscribe(ctx, h, c, p)
		}
	default:
		g.Logger.Debug("unhandled packet type from client", "type", pkt.Type())
	}
}

// requireActive enforces spec.md §7's ProtocolViolation policy: a
// data-plane packet (PUBLISH/REGISTER/SUBSCRIBE/UNSUBSCRIBE) from a
// client that has not completed the CONNECT handshake is answered with
// DISCONNECT and a transition to Disconnected, rather than processed
// against a half-initialized session.
func (g *Gateway) requireActive(h client.Handle, c *client.Client, pktType snproto.MsgType) bool {
	if c.Status == client.Active {
		return true
	}
	g.Logger.Warn("protocol violation", "clientId", c.ID, "packetType", pktType, "status", c.Status, "error", ErrProtocolViolation)
	c.Status = client.Disconnected
	g.ClientSendQ.Post(events.ClientSend(h, &snproto.DisconnectPacket{}))
	return false
}

// handleConnect implements spec.md §4.2 "CONNECT handling".
func (g *Gateway) handleConnect(ctx context.Context, h client.Handle, c *client.Client, p *snproto.ConnectPacket) {
	if c.Status == client.Asleep || c.Status == client.Awake {
		c.Status = client.Active
		g.ClientSendQ.Post(events.ClientSend(h, &snproto.ConnackPacket{ReturnCode: snproto.RCAccepted}))
		g.flushSleepQueue(h, c)
		return
	}

	if p.CleanSession {
		c.ClearSession()
	}

	c.PendingConnect = &client.PendingConnect{
		ClientID:     string(p.ClientID),
		KeepAlive:    p.Duration,
		CleanSession: p.CleanSession,
		Will:         p.Will,
	}
	c.KeepAlive = durationFromSeconds(p.Duration)

	if p.Will {
		c.Status = client.AwaitingWillTopic
		g.ClientSendQ.Post(events.ClientSend(h, &snproto.WillTopicReqPacket{}))
		return
	}

	c.Status = client.AwaitingBrokerConnack
	g.connectToBroker(ctx, h, c)
}

func (g *Gateway) handleWillTopic(ctx context.Context, h client.Handle, c *client.Client, p *snproto.WillTopicPacket) {
	if c.Status != client.AwaitingWillTopic || c.PendingConnect == nil {
		return
	}
	c.PendingConnect.WillTopic = p.Topic
	c.PendingConnect.WillQoS = int8(p.QoS)
	c.PendingConnect.WillRetain = p.Retain
	c.WaitingWillMsg = true
	c.Status = client.AwaitingWillMsg
	g.ClientSendQ.Post(events.ClientSend(h, &snproto.WillMsgReqPacket{}))
}

func (g *Gateway) handleWillMsg(ctx context.Context, h client.Handle, c *client.Client, p *snproto.WillMsgPacket) {
	if !c.WaitingWillMsg || c.Status != client.AwaitingWillMsg {
		// WILLMSG outside the window is silently ignored (spec.md §4.2
		// "Will sequence").
		return
	}
	c.PendingConnect.WillMessage = p.Message
	c.WaitingWillMsg = false
	g.connectToBroker(ctx, h, c)
}

// connectToBroker composes and sends the MQTT CONNECT (spec.md §4.2
// "Will sequence": "On WILLMSG receipt, compose the MQTT CONNECT... and
// emit BrokerSend"), satisfying P4: a will CONNECT is never forwarded
// before WILLMSG arrives, since this is the only call site.
func (g *Gateway) connectToBroker(ctx context.Context, h client.Handle, c *client.Client) {
	pc := c.PendingConnect
	login, password := resolveCredentials(pc.ClientID, g.Config.ClientIDToUserPassword, g.Config.IMEILen, g.Config.PasswordLen, g.Config.LoginID, g.Config.Password)

	link, err := g.Dial(ctx, pc.ClientID, login, password)
	if err != nil {
		g.Logger.Warn("broker unavailable during handshake", "clientId", pc.ClientID, "error", errors.Wrap(ErrBrokerUnavailable, err))
		g.ClientSendQ.Post(events.ClientSend(h, &snproto.ConnackPacket{ReturnCode: snproto.RCCongestion}))
		c.Status = client.Disconnected
		return
	}

	if !g.Config.Aggregator {
		c.BrokerLink = link
	}
	c.Status = client.Active
	g.ClientSendQ.Post(events.ClientSend(h, &snproto.ConnackPacket{ReturnCode: snproto.RCAccepted}))
}

func (g *Gateway) handleDisconnect(ctx context.Context, h client.Handle, c *client.Client, p *snproto.DisconnectPacket) {
	if p.HasDuration && p.Duration > 0 {
		c.Status = client.Asleep
	} else {
		if link := g.brokerLinkFor(c); link != nil && !g.Config.Aggregator {
			link.Close()
		}
		c.Status = client.Disconnected
		c.BrokerLink = nil
	}
	g.ClientSendQ.Post(events.ClientSend(h, &snproto.DisconnectPacket{}))
}

// handlePingreq implements spec.md §4.2 "PINGREQ handling".
func (g *Gateway) handlePingreq(ctx context.Context, h client.Handle, c *client.Client, p *snproto.PingreqPacket) {
	if (c.Status == client.Asleep || c.Status == client.Awake) && len(c.SleepQueue) > 0 {
		c.Status = client.Awake
		c.PingHeld = true
		g.flushSleepQueue(h, c)
		return
	}
	if link := g.brokerLinkFor(c); link != nil {
		// Nothing is sent to the broker here: the PINGREQ is answered
		// locally, and the upstream link relies on the broker client's
		// own keep-alive.
		_ = link
	}
	g.ClientSendQ.Post(events.ClientSend(h, &snproto.PingrespPacket{}))
}

// flushSleepQueue replays buffered downstream PUBLISHes through
// packet-events as BrokerRecv events so they take the normal
// topic-id-resolution path (spec.md §4.2 "replayed via the normal
// downstream path"), satisfying P6.
func (g *Gateway) flushSleepQueue(h client.Handle, c *client.Client) {
	queued := c.DrainSleepQueue()
	for _, m := range queued {
		g.PacketEvents.Post(events.BrokerRecv(h, &events.MqttMessage{
			Topic:   m.Topic,
			Payload: m.Payload,
			QoS:     m.QoS,
			Retain:  m.Retain,
		}))
	}
	if c.PingHeld {
		c.PingHeld = false
		c.Status = client.Asleep
		g.ClientSendQ.Post(events.ClientSend(h, &snproto.PingrespPacket{}))
	}
}

func (g *Gateway) handleTimeout(ctx context.Context, h client.Handle, kind events.TimeoutKind) {
	c, err := g.Registry.Resolve(h)
	if err != nil {
		return
	}
	switch kind {
	case events.TimeoutKeepAlive:
		if c.Status != client.Active {
			return
		}
		c.Status = client.Lost
		if link := g.brokerLinkFor(c); link != nil && !g.Config.Aggregator {
			link.Close()
		}
		g.Metrics.LostClients.Inc()
		g.armGC(h)
	case events.TimeoutGC:
		if c.Status == client.Lost {
			g.Registry.Forget(h)
		}
	}
}
