// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package events defines the tagged Event variant that flows through
// the queue fabric (spec.md §3, §4.4). An Event is constructed by a
// recv task or the handler, consumed exactly once, then discarded;
// Events own their packet payloads so no two events ever share one
// (spec.md §3 "Packet").
package events

import (
	"github.com/absmach/mqttsn-gateway/internal/client"
	"github.com/absmach/mqttsn-gateway/pkg/snproto"
)

// Kind discriminates the Event variant, mirroring the small
// discriminated-enum-with-String() idiom used throughout the teacher
// for AckType/DeliveryPolicy (pkg/messaging/pubsub.go).
type Kind int

const (
	// KindClientRecv carries an inbound MQTT-SN packet from a client.
	KindClientRecv Kind = iota
	// KindClientSend carries an outbound MQTT-SN packet to a client.
	KindClientSend
	// KindBrokerRecv carries an inbound MQTT packet from the broker.
	KindBrokerRecv
	// KindBrokerSend carries an outbound MQTT packet to the broker.
	KindBrokerSend
	// KindBroadcast carries a sensor-network broadcast (e.g. SEARCHGW).
	KindBroadcast
	// KindTimeout carries a per-client timer expiry.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindClientRecv:
		return "ClientRecv"
	case KindClientSend:
		return "ClientSend"
	case KindBrokerRecv:
		return "BrokerRecv"
	case KindBrokerSend:
		return "BrokerSend"
	case KindBroadcast:
		return "Broadcast"
	case KindTimeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// TimeoutKind distinguishes the timers a client may have armed.
type TimeoutKind int

const (
	// TimeoutKeepAlive fires 1.5x keepAlive after the last inbound
	// packet (spec.md §5).
	TimeoutKeepAlive TimeoutKind = iota
	// TimeoutGC fires after the post-Lost grace period (spec.md §5).
	TimeoutGC
)

// BrokerOp distinguishes the broker-facing operation a KindBrokerSend
// event carries (spec.md §4.4 "broker-send (handler → broker sender)").
type BrokerOp int

const (
	// OpPublish pushes a PUBLISH onto the client's broker link.
	OpPublish BrokerOp = iota
	// OpSubscribe opens a broker-side subscription.
	OpSubscribe
	// OpUnsubscribe cancels a broker-side subscription.
	OpUnsubscribe
)

func (o BrokerOp) String() string {
	switch o {
	case OpPublish:
		return "Publish"
	case OpSubscribe:
		return "Subscribe"
	case OpUnsubscribe:
		return "Unsubscribe"
	default:
		return "Unknown"
	}
}

// Event is the tagged variant flowing over packet-events, client-send
// and broker-send (spec.md §3, §4.4).
type Event struct {
	Kind Kind

	// Client is the handle of the owning client. Unset for KindBroadcast.
	Client client.Handle

	// SnPacket is populated for KindClientRecv/KindClientSend.
	SnPacket snproto.Packet

	// MqttPacket is populated for KindBrokerRecv.
	MqttPacket *MqttMessage

	// BrokerReq is populated for KindBrokerSend.
	BrokerReq *BrokerRequest

	// Timeout is populated for KindTimeout.
	Timeout TimeoutKind
}

// MqttMessage is the minimal MQTT frame the handler exchanges with the
// broker link; see pkg/messaging.Message for the wire-facing form.
type MqttMessage struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// BrokerRequest is everything the BrokerSend task needs to perform one
// broker operation and answer the originating client without consulting
// mutable client state again: the handler resolves topic names and
// picks msgid/topic-id values before enqueueing, so the BrokerSend task
// never has to touch the registry for anything but the client's broker
// link (spec.md §5 "mutated only by the handler").
type BrokerRequest struct {
	Op BrokerOp

	// Message carries topic/payload/qos/retain for OpPublish.
	Message *MqttMessage

	// SubscriberID and Topic address OpSubscribe/OpUnsubscribe.
	SubscriberID string
	Topic        string

	// AckMsgID, AckTopicID and AckQoS are echoed back into the
	// PUBACK/SUBACK/UNSUBACK reply the BrokerSend task posts to
	// client-send once the broker operation completes.
	AckMsgID   uint16
	AckTopicID snproto.TopicID
	AckQoS     snproto.QoS

	// SkipAck suppresses the reply entirely (QoS(-1) PUBLISH never gets
	// a PUBACK, spec.md §3 "QoSm1Proxy").
	SkipAck bool
}

// ClientRecv constructs a KindClientRecv event.
func ClientRecv(h client.Handle, p snproto.Packet) Event {
	return Event{Kind: KindClientRecv, Client: h, SnPacket: p}
}

// ClientSend constructs a KindClientSend event.
func ClientSend(h client.Handle, p snproto.Packet) Event {
	return Event{Kind: KindClientSend, Client: h, SnPacket: p}
}

// BrokerRecv constructs a KindBrokerRecv event.
func BrokerRecv(h client.Handle, m *MqttMessage) Event {
	return Event{Kind: KindBrokerRecv, Client: h, MqttPacket: m}
}

// BrokerSend constructs a KindBrokerSend event.
func BrokerSend(h client.Handle, req *BrokerRequest) Event {
	return Event{Kind: KindBrokerSend, Client: h, BrokerReq: req}
}

// Broadcast constructs a KindBroadcast event.
func Broadcast(p snproto.Packet) Event {
	return Event{Kind: KindBroadcast, SnPacket: p}
}

// Timeout constructs a KindTimeout event.
func Timeout(h client.Handle, k TimeoutKind) Event {
	return Event{Kind: KindTimeout, Client: h, Timeout: k}
}
