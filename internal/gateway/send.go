// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"

	"github.com/absmach/mqttsn-gateway/internal/client"
	"github.com/absmach/mqttsn-gateway/internal/events"
	"github.com/absmach/mqttsn-gateway/pkg/errors"
	"github.com/absmach/mqttsn-gateway/pkg/messaging"
	"github.com/absmach/mqttsn-gateway/pkg/snproto"
)

// clientSendLoop is the ClientSend task (spec.md §2, §4.4): drain
// client-send, serialise each SnPacket, and write it to the
// sensor-network transport. Broadcast events go out on the driver's
// broadcast path; everything else is unicast to the owning client's
// address (direct or via its forwarder, spec.md §4.1).
func (g *Gateway) clientSendLoop(ctx context.Context) error {
	for {
		ev, ok := g.ClientSendQ.Take()
		if !ok {
			return nil
		}

		if ev.Kind == events.KindBroadcast {
			if err := g.Transport.Broadcast(ctx, ev.SnPacket.Pack()); err != nil {
				g.Logger.Warn("broadcast send failed", "error", err)
			}
			continue
		}

		addr, pkt, ok := g.sendFrame(ev.Client, ev.SnPacket)
		if !ok {
			continue
		}
		if err := g.Transport.Unicast(ctx, addr, pkt.Pack()); err != nil {
			g.Logger.Warn("unicast send failed", "error", err)
		}
	}
}

// sendFrame resolves the wire address and final frame a client-send
// event should be written as: a forwarded client's frame is
// re-encapsulated through its forwarder (spec.md §4.1 "frame-02"); a
// direct client's frame goes straight to its address unchanged.
func (g *Gateway) sendFrame(h client.Handle, pkt snproto.Packet) ([]byte, snproto.Packet, bool) {
	c, err := g.Registry.Resolve(h)
	if err != nil {
		return nil, nil, false
	}
	if c.IsForwarded() {
		enc := &snproto.EncapsulatedPacket{WirelessNodeID: c.WirelessNodeID, Inner: pkt.Pack()}
		return c.ForwarderAddr.Bytes(), enc, true
	}
	return c.Address.Bytes(), pkt, true
}

// brokerSendLoop is the BrokerSend task (spec.md §2, §4.4): drain
// broker-send and perform the actual publish/subscribe/unsubscribe
// against the client's broker link, then post the resulting ack back
// to client-send. This is the task that suspends on the broker I/O
// the handler used to perform inline; the handler itself only ever
// suspends on packet-events take and the two send-queue posts
// (spec.md §5 "Suspension points").
func (g *Gateway) brokerSendLoop(ctx context.Context) error {
	for {
		ev, ok := g.BrokerSendQ.Take()
		if !ok {
			return nil
		}
		if ev.Kind != events.KindBrokerSend || ev.BrokerReq == nil {
			continue
		}
		g.performBrokerOp(ctx, ev.Client, ev.BrokerReq)
	}
}

// performBrokerOp resolves the client's current broker link and carries
// out one BrokerRequest, acking the client unless the request is an
// unacked QoS(-1) publish. Resolving the client here is a read, not a
// mutation — state-changing fields stay the handler's alone.
func (g *Gateway) performBrokerOp(ctx context.Context, h client.Handle, req *events.BrokerRequest) {
	c, err := g.Registry.Resolve(h)
	if err != nil {
		return
	}

	link := g.brokerLinkFor(c)
	if link == nil {
		if !req.SkipAck {
			g.ackBrokerOp(h, req, snproto.RCCongestion)
		}
		return
	}

	switch req.Op {
	case events.OpPublish:
		msg := &messaging.Message{
			Topic:     req.Message.Topic,
			Payload:   req.Message.Payload,
			QoS:       req.Message.QoS,
			Retain:    req.Message.Retain,
			Publisher: c.ID,
		}
		if err := link.Publish(ctx, req.Message.Topic, msg); err != nil {
			g.Logger.Warn("broker publish failed", "clientId", c.ID, "topic", req.Message.Topic, "error", errors.Wrap(ErrBrokerUnavailable, err))
			if !req.SkipAck {
				g.ackBrokerOp(h, req, snproto.RCCongestion)
			}
			return
		}
		if !req.SkipAck {
			g.ackBrokerOp(h, req, snproto.RCAccepted)
		}

	case events.OpSubscribe:
		cfg := messaging.SubscriberConfig{
			ID:       req.SubscriberID,
			ClientID: c.ID,
			Topic:    req.Topic,
			Handler:  &subscription{gw: g, client: h},
		}
		rc := snproto.ReturnCode(snproto.RCAccepted)
		if err := link.Subscribe(ctx, cfg); err != nil {
			g.Logger.Warn("broker subscribe failed", "clientId", c.ID, "topic", req.Topic, "error", errors.Wrap(ErrBrokerUnavailable, err))
			rc = snproto.RCNotSupported
		}
		g.ackBrokerOp(h, req, rc)

	case events.OpUnsubscribe:
		if err := link.Unsubscribe(ctx, req.SubscriberID, req.Topic); err != nil {
			g.Logger.Warn("broker unsubscribe failed", "clientId", c.ID, "topic", req.Topic, "error", errors.Wrap(ErrBrokerUnavailable, err))
		}
		g.ackBrokerOp(h, req, snproto.RCAccepted)
	}
}

// ackBrokerOp composes the MQTT-SN reply for a completed BrokerRequest
// and posts it to client-send.
func (g *Gateway) ackBrokerOp(h client.Handle, req *events.BrokerRequest, rc snproto.ReturnCode) {
	switch req.Op {
	case events.OpPublish:
		g.postClientSend(h, &snproto.PubackPacket{TopicID: req.AckTopicID, MsgID: req.AckMsgID, ReturnCode: rc})
	case events.OpSubscribe:
		g.postClientSend(h, &snproto.SubackPacket{QoS: req.AckQoS, TopicID: req.AckTopicID, MsgID: req.AckMsgID, ReturnCode: rc})
	case events.OpUnsubscribe:
		g.postClientSend(h, &snproto.UnsubackPacket{MsgID: req.AckMsgID})
	}
}
