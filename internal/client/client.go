// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package client implements the gateway's per-client data model
// (spec.md §3), the registry that owns clients (spec.md §4.3), and the
// forwarder/QoS-minus-one peers that share the same address space
// (spec.md §3 "Forwarder", "QoSm1Proxy"). Clients are referenced by a
// stable opaque Handle (slot index + generation) rather than a pointer,
// per Design Notes §9: a stale handle resolves to "not found" instead
// of undefined behavior, which is how the registry (map+mutex, the
// idiom the teacher uses for every in-memory repository, e.g.
// clients/clients.go's Repository) replaces the original's raw
// pointer graph.
package client

import "time"

// Status is the client's connection-state-machine position (spec.md §3, §4.2).
type Status int

const (
	Disconnected Status = iota
	AwaitingWillTopic
	AwaitingWillMsg
	AwaitingBrokerConnack
	Active
	Asleep
	Awake
	Lost
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case AwaitingWillTopic:
		return "AwaitingWillTopic"
	case AwaitingWillMsg:
		return "AwaitingWillMsg"
	case AwaitingBrokerConnack:
		return "AwaitingBrokerConnack"
	case Active:
		return "Active"
	case Asleep:
		return "Asleep"
	case Awake:
		return "Awake"
	case Lost:
		return "Lost"
	default:
		return "Unknown"
	}
}

// Kind is the client's transport/aggregation role (spec.md §3).
type Kind int

const (
	Transparent Kind = iota
	Aggregator
	ForwardedTransparent
	ForwardedAggregator
	QoSm1
)

// Address is an opaque, comparable sensor-network address (spec.md §6:
// "opaque fixed-size byte tuples with equality and hashing" — a Go
// string gives exactly that for a []byte without requiring the caller
// to pick a fixed array size per transport).
type Address string

// NewAddress wraps a raw transport address for use as a map key.
func NewAddress(raw []byte) Address { return Address(raw) }

// Bytes returns the raw address bytes.
func (a Address) Bytes() []byte { return []byte(a) }

// TopicID identifies a topic within a client's topic table.
type TopicID = uint16

// PendingConnect is the MQTT CONNECT payload being assembled across
// the WILLTOPICREQ/WILLMSGREQ handshake (spec.md §3 "pending_connect").
type PendingConnect struct {
	ClientID     string
	KeepAlive    uint16
	CleanSession bool
	Will         bool
	WillTopic    string
	WillQoS      int8
	WillRetain   bool
	WillMessage  []byte
}

// SleepQueue buffers downstream PUBLISH packets while a client sleeps
// (spec.md §3 "sleep_queue", invariant I3).
type SleepQueue struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// Client is the gateway's per-session state (spec.md §3). Session
// fields are written by the PacketHandler task; the exception is
// Address, which Registry.Rebind rewrites when ClientRecv rebinds a
// reconnecting client. Client has no internal locking — only the
// Registry that owns the map of Clients is synchronized.
type Client struct {
	ID   string
	Kind Kind

	// Address is set for direct (non-forwarded) clients; exactly one
	// of Address or (ForwarderAddr, WirelessNodeID) is populated for
	// the client's lifetime (spec.md I4).
	Address       Address
	ForwarderAddr Address
	WirelessNodeID []byte

	Status Status

	PendingConnect  *PendingConnect
	WaitingWillMsg  bool
	PingHeld        bool

	SleepQueue []SleepQueue

	// NormalTopics survive only until the next cleanSession=1 CONNECT;
	// PredefinedTopics survive it (spec.md §3, Open Question c).
	NormalTopics     map[TopicID]string
	PredefinedTopics map[TopicID]string

	WaitedPubMsgIDs map[uint16]TopicID
	WaitedSubMsgIDs map[uint16]TopicID

	KeepAlive time.Duration

	// BrokerLink is set once the broker CONNACK for this client's
	// session is accepted (spec.md §3 "broker_link", invariant I2).
	BrokerLink any
}

// New returns a fresh Disconnected client for id.
func New(id string, kind Kind) *Client {
	return &Client{
		ID:               id,
		Kind:             kind,
		Status:           Disconnected,
		NormalTopics:     make(map[TopicID]string),
		PredefinedTopics: make(map[TopicID]string),
		WaitedPubMsgIDs:  make(map[uint16]TopicID),
		WaitedSubMsgIDs:  make(map[uint16]TopicID),
	}
}

// IsForwarded reports whether the client is reached via a forwarder
// rather than a direct sensor-network address.
func (c *Client) IsForwarded() bool {
	return c.Kind == ForwardedTransparent || c.Kind == ForwardedAggregator
}

// ClearSession drops in-flight msgid tables and normal (not
// pre-defined) topics on cleanSession=1 (spec.md §4.2d, Open Question c).
func (c *Client) ClearSession() {
	c.WaitedPubMsgIDs = make(map[uint16]TopicID)
	c.WaitedSubMsgIDs = make(map[uint16]TopicID)
	c.NormalTopics = make(map[TopicID]string)
}

// EnqueueSleep appends a downstream PUBLISH to the sleep queue
// (spec.md invariant I3: only meaningful in Asleep/Awake).
func (c *Client) EnqueueSleep(msg SleepQueue) {
	c.SleepQueue = append(c.SleepQueue, msg)
}

// DrainSleepQueue removes and returns every buffered message.
func (c *Client) DrainSleepQueue() []SleepQueue {
	q := c.SleepQueue
	c.SleepQueue = nil
	return q
}
