// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package gateway_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/absmach/mqttsn-gateway/internal/client"
	"github.com/absmach/mqttsn-gateway/internal/config"
	"github.com/absmach/mqttsn-gateway/internal/events"
	"github.com/absmach/mqttsn-gateway/internal/gateway"
	"github.com/absmach/mqttsn-gateway/internal/logger"
	"github.com/absmach/mqttsn-gateway/pkg/messaging"
	"github.com/absmach/mqttsn-gateway/pkg/snproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory transport.Driver for exercising the
// dispatch pipeline without a real socket.
type fakeTransport struct {
	mu      sync.Mutex
	inbox   chan [2][]byte // {addr, payload}
	sent    []sentFrame
	closed  bool
}

type sentFrame struct {
	addr    string
	payload []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbox: make(chan [2][]byte, 16)}
}

func (f *fakeTransport) deliver(addr string, payload []byte) {
	f.inbox <- [2][]byte{[]byte(addr), payload}
}

func (f *fakeTransport) Recv(ctx context.Context) ([]byte, []byte, error) {
	select {
	case m := <-f.inbox:
		return m[0], m[1], nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

func (f *fakeTransport) Unicast(_ context.Context, addr []byte, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentFrame{addr: string(addr), payload: append([]byte(nil), payload...)})
	return nil
}

func (f *fakeTransport) Broadcast(_ context.Context, payload []byte) error {
	return f.Unicast(context.Background(), []byte("*broadcast*"), payload)
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

func (f *fakeTransport) lastSentTo(addr string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].addr == addr {
			return f.sent[i].payload, true
		}
	}
	return nil, false
}

// framesSentTo returns every frame sent to addr, oldest first.
func (f *fakeTransport) framesSentTo(addr string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, s := range f.sent {
		if s.addr == addr {
			out = append(out, s.payload)
		}
	}
	return out
}

// fakeBroker is a no-op messaging.PubSub that records nothing and
// reports success for every call.
type fakeBroker struct{}

func (fakeBroker) Publish(ctx context.Context, topic string, msg *messaging.Message) error {
	return nil
}
func (fakeBroker) Subscribe(ctx context.Context, cfg messaging.SubscriberConfig) error { return nil }
func (fakeBroker) Unsubscribe(ctx context.Context, id, topic string) error             { return nil }
func (fakeBroker) Close() error                                                       { return nil }

func testGateway(t *testing.T) (*gateway.Gateway, *fakeTransport) {
	t.Helper()
	cfg := config.Config{
		KeepAlive:             60 * time.Second,
		PacketEventsQueueSize: 16,
		ClientSendQueueSize:   16,
		BrokerSendQueueSize:   16,
		RegistryCapacity:      8,
		LostClientGCGrace:     time.Minute,
	}
	lg := logger.NewMock()
	tr := newFakeTransport()
	dial := func(ctx context.Context, clientID, login, password string) (messaging.PubSub, error) {
		return fakeBroker{}, nil
	}
	gw := gateway.New(cfg, lg, tr, dial)
	return gw, tr
}

func TestCleanConnectNoWill(t *testing.T) {
	gw, tr := testGateway(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go gw.Run(ctx)

	connect := &snproto.ConnectPacket{ClientID: []byte("s1"), CleanSession: true, Duration: 60}
	tr.deliver("A1", connect.Pack())

	require.Eventually(t, func() bool {
		buf, ok := tr.lastSentTo("A1")
		if !ok {
			return false
		}
		pkt, _, err := snproto.Decode(buf)
		return err == nil && pkt.Type() == snproto.CONNACK
	}, time.Second, 5*time.Millisecond)
}

func TestLateClientAfterRestartGetsDisconnect(t *testing.T) {
	gw, tr := testGateway(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go gw.Run(ctx)

	pub := &snproto.PublishPacket{TopicID: 1, Data: []byte("x")}
	tr.deliver("A-unknown", pub.Pack())

	require.Eventually(t, func() bool {
		buf, ok := tr.lastSentTo("A-unknown")
		if !ok {
			return false
		}
		pkt, _, err := snproto.Decode(buf)
		return err == nil && pkt.Type() == snproto.DISCONNECT
	}, time.Second, 5*time.Millisecond)

	_, ok := gw.Registry.ByAddress("A-unknown")
	require.False(t, ok)
}

// decodeLast waits for the last frame sent to addr and decodes it.
func decodeLast(t *testing.T, tr *fakeTransport, addr string, want snproto.MsgType) snproto.Packet {
	t.Helper()
	var pkt snproto.Packet
	require.Eventually(t, func() bool {
		buf, ok := tr.lastSentTo(addr)
		if !ok {
			return false
		}
		p, _, err := snproto.Decode(buf)
		if err != nil || p.Type() != want {
			return false
		}
		pkt = p
		return true
	}, time.Second, 5*time.Millisecond)
	return pkt
}

// TestConnectWithWillRunsThreePhaseHandshake covers spec.md §4.2's will
// sequence: CONNECT(Will=true) -> WILLTOPICREQ -> WILLTOPIC -> WILLMSGREQ
// -> WILLMSG -> CONNACK.
func TestConnectWithWillRunsThreePhaseHandshake(t *testing.T) {
	gw, tr := testGateway(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go gw.Run(ctx)

	connect := &snproto.ConnectPacket{ClientID: []byte("s2"), CleanSession: true, Duration: 60, Will: true}
	tr.deliver("A2", connect.Pack())

	decodeLast(t, tr, "A2", snproto.WILLTOPICREQ)

	willTopic := &snproto.WillTopicPacket{QoS: 1, Topic: "last/will"}
	tr.deliver("A2", willTopic.Pack())

	decodeLast(t, tr, "A2", snproto.WILLMSGREQ)

	willMsg := &snproto.WillMsgPacket{Message: []byte("bye")}
	tr.deliver("A2", willMsg.Pack())

	decodeLast(t, tr, "A2", snproto.CONNACK)
}

// TestForwardedConnectIsReEncapsulatedOnSend covers spec.md §4.1's
// frame-02 path: an ENCAPSULATED CONNECT from a forwarder must come
// back wrapped in ENCAPSULATED too, addressed to the forwarder.
func TestForwardedConnectIsReEncapsulatedOnSend(t *testing.T) {
	gw, tr := testGateway(t)
	gw.Config.AllowDynamicForwarders = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go gw.Run(ctx)

	connect := &snproto.ConnectPacket{ClientID: []byte("node-1"), CleanSession: true, Duration: 60}
	enc := &snproto.EncapsulatedPacket{WirelessNodeID: []byte{0x0A, 0x0B}, Inner: connect.Pack()}
	tr.deliver("FWD1", enc.Pack())

	buf := decodeLast(t, tr, "FWD1", snproto.ENCAPSULATED).Pack()
	outer, _, err := snproto.Decode(buf)
	require.NoError(t, err)
	inner, err := outer.(*snproto.EncapsulatedPacket).InnerPacket()
	require.NoError(t, err)
	require.Equal(t, snproto.CONNACK, inner.Type())
}

// TestQoSMinusOnePublishGetsNoReplyAndNoAddressEntry covers spec.md §3's
// QoS(-1) proxy demux: any sender address maps to the one synthetic
// client, and the path produces no reply frame (there is no PUBACK for
// QoS(-1) publishes, nor any registry entry keyed by the raw address).
func TestQoSMinusOnePublishGetsNoReplyAndNoAddressEntry(t *testing.T) {
	gw, tr := testGateway(t)
	gw.Config.QoSMinusOneProxy = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go gw.Run(ctx)

	pub := &snproto.PublishPacket{QoS: -1, TopicIDType: snproto.TopicIDPredefined, TopicID: 1, Data: []byte("v")}
	tr.deliver("ANY-SENSOR", pub.Pack())

	time.Sleep(50 * time.Millisecond)

	_, ok := tr.lastSentTo("ANY-SENSOR")
	assert.False(t, ok)

	_, ok = gw.Registry.ByAddress("ANY-SENSOR")
	assert.False(t, ok)
}

// TestSleepingClientFlushesOnPingreq covers spec.md §4.2's
// sleep-and-wake sequence: a PUBLISH arriving while the client sleeps
// is queued, not sent; a subsequent PINGREQ flushes the queue, then
// finally answers PINGRESP (I3, P6).
func TestSleepingClientFlushesOnPingreq(t *testing.T) {
	gw, tr := testGateway(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go gw.Run(ctx)

	connect := &snproto.ConnectPacket{ClientID: []byte("s3"), CleanSession: true, Duration: 60}
	tr.deliver("A3", connect.Pack())
	decodeLast(t, tr, "A3", snproto.CONNACK)

	disconnect := &snproto.DisconnectPacket{HasDuration: true, Duration: 300}
	tr.deliver("A3", disconnect.Pack())
	decodeLast(t, tr, "A3", snproto.DISCONNECT)

	h, ok := gw.Registry.ByAddress("A3")
	require.True(t, ok)
	require.Eventually(t, func() bool {
		c, err := gw.Registry.Resolve(h)
		return err == nil && c.Status.String() == "Asleep"
	}, time.Second, 5*time.Millisecond)

	gw.PacketEvents.Post(events.BrokerRecv(h, &events.MqttMessage{Topic: "sensors/temp", Payload: []byte("21C")}))

	time.Sleep(30 * time.Millisecond)
	require.False(t, frameTypeSentTo(tr, "A3", snproto.PUBLISH), "a buffered message must not be sent while asleep")

	ping := &snproto.PingreqPacket{}
	tr.deliver("A3", ping.Pack())

	require.Eventually(t, func() bool {
		return frameTypeSentTo(tr, "A3", snproto.PUBLISH) && frameTypeSentTo(tr, "A3", snproto.PINGRESP)
	}, time.Second, 5*time.Millisecond)
}

func frameTypeSentTo(tr *fakeTransport, addr string, want snproto.MsgType) bool {
	for _, buf := range tr.framesSentTo(addr) {
		if pkt, _, err := snproto.Decode(buf); err == nil && pkt.Type() == want {
			return true
		}
	}
	return false
}

// TestConnectRejectedWhenRegistryFull covers spec.md §7's "RegistryFull
// on CONNECT" policy: once the registry is at capacity, a new direct
// CONNECT gets answered RC_REJECTED_NOT_SUPPORTED rather than a slot.
func TestConnectRejectedWhenRegistryFull(t *testing.T) {
	gw, tr := testGateway(t)
	gw.Registry = client.NewRegistry(1)
	gw.Registry.EnsureQoSm1Proxy() // occupy the only slot

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gw.Run(ctx)

	connect := &snproto.ConnectPacket{ClientID: []byte("s9"), CleanSession: true, Duration: 60}
	tr.deliver("A9", connect.Pack())

	pkt := decodeLast(t, tr, "A9", snproto.CONNACK)
	assert.Equal(t, snproto.RCRejectedNotSupported, pkt.(*snproto.ConnackPacket).ReturnCode)

	_, ok := gw.Registry.ByAddress("A9")
	assert.False(t, ok)
}

// TestPublishBeforeConnectGetsDisconnected covers spec.md §7's
// ProtocolViolation policy: a data-plane packet from a client that has
// not completed CONNECT is answered with DISCONNECT instead of being
// processed against a half-initialized session.
func TestPublishBeforeConnectGetsDisconnected(t *testing.T) {
	gw, tr := testGateway(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gw.Run(ctx)

	connect := &snproto.ConnectPacket{ClientID: []byte("s10"), CleanSession: true, Duration: 60, Will: true}
	tr.deliver("A10", connect.Pack())
	decodeLast(t, tr, "A10", snproto.WILLTOPICREQ)

	pub := &snproto.PublishPacket{TopicID: 1, Data: []byte("too-early")}
	tr.deliver("A10", pub.Pack())

	decodeLast(t, tr, "A10", snproto.DISCONNECT)

	h, ok := gw.Registry.ByAddress("A10")
	require.True(t, ok)
	require.Eventually(t, func() bool {
		c, err := gw.Registry.Resolve(h)
		return err == nil && c.Status == client.Disconnected
	}, time.Second, 5*time.Millisecond)
}

// TestPublishSubscribeRoundTripThroughBrokerSendQueue covers spec.md
// §4.4's decoupled broker-send path (review fix: handlePublish and
// handleSubscribe must post to broker-send and let brokerSendLoop
// perform the I/O and ack, not call the broker link inline).
func TestPublishSubscribeRoundTripThroughBrokerSendQueue(t *testing.T) {
	gw, tr := testGateway(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gw.Run(ctx)

	connect := &snproto.ConnectPacket{ClientID: []byte("s11"), CleanSession: true, Duration: 60}
	tr.deliver("A11", connect.Pack())
	decodeLast(t, tr, "A11", snproto.CONNACK)

	sub := &snproto.SubscribePacket{MsgID: 1, TopicIDType: snproto.TopicIDNormal, TopicName: "sensors/temp"}
	tr.deliver("A11", sub.Pack())
	suback := decodeLast(t, tr, "A11", snproto.SUBACK)
	assert.Equal(t, snproto.RCAccepted, suback.(*snproto.SubackPacket).ReturnCode)
	topicID := suback.(*snproto.SubackPacket).TopicID

	reg := &snproto.RegisterPacket{MsgID: 2, Topic: "sensors/temp"}
	tr.deliver("A11", reg.Pack())
	regack := decodeLast(t, tr, "A11", snproto.REGACK)
	pubTopicID := regack.(*snproto.RegackPacket).TopicID

	pub := &snproto.PublishPacket{MsgID: 3, TopicIDType: snproto.TopicIDNormal, TopicID: pubTopicID, Data: []byte("21C")}
	tr.deliver("A11", pub.Pack())
	puback := decodeLast(t, tr, "A11", snproto.PUBACK)
	assert.Equal(t, snproto.RCAccepted, puback.(*snproto.PubackPacket).ReturnCode)
	assert.NotZero(t, topicID)
}
