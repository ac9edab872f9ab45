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

// sendConnackDirect answers a CONNECT with a rejection CONNACK without
// a registry slot to route it through: the one case where the registry
// itself has no room left for the bookkeeping a normal reply needs
// (spec.md §7 "RegistryFull on CONNECT").
func (g *Gateway) sendConnackDirect(addr client.Address, rc snproto.ReturnCode) {
	pkt := &snproto.ConnackPacket{ReturnCode: rc}
	if err := g.Transport.Unicast(context.Background(), addr.Bytes(), pkt.Pack()); err != nil {
		g.Logger.Warn("direct CONNACK send failed", "addr", addr, "error", err)
	}
}

// clientRecvLoop is the ClientRecv task (spec.md §4.1): read a
// datagram, decode it, demultiplex it to a client handle, and post
// exactly one event to packet-events or drop it with a logged reason.
// Grounded on waderly-gnatt's AggGate.OnPacket switch, generalized from
// a single dispatch function into the read-decode-demux-post loop
// spec.md §2 assigns to its own task.
func (g *Gateway) clientRecvLoop(ctx context.Context) error {
	for {
		addr, buf, err := g.Transport.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			g.Logger.Error("sensor-network recv failed", "error", errors.Wrap(ErrTransport, err))
			return err
		}

		pkt, _, err := snproto.Decode(buf)
		if err != nil {
			g.Logger.Warn("dropping malformed datagram", "addr", addr, "error", errors.Wrap(ErrMalformedPacket, err))
			g.Metrics.DroppedPackets.Inc()
			continue
		}

		g.demux(ctx, client.NewAddress(addr), pkt)
	}
}

// demux implements spec.md §4.1 steps 1-5.
func (g *Gateway) demux(ctx context.Context, addr client.Address, pkt snproto.Packet) {
	switch pkt.Type() {
	case snproto.ADVERTISE, snproto.GWINFO:
		return
	case snproto.SEARCHGW:
		// spec.md §4.1 step 2: the Broadcast event must reach the
		// handler over packet-events so it can build the GWINFO reply
		// (handler.go's handleBroadcast); it is not itself a frame to
		// re-emit onto the sensor network.
		g.PacketEvents.Post(events.Broadcast(pkt))
		return
	case snproto.ENCAPSULATED:
		g.demuxEncapsulated(ctx, addr, pkt.(*snproto.EncapsulatedPacket))
		return
	}

	g.demuxDirect(ctx, addr, pkt)
}

func (g *Gateway) demuxEncapsulated(ctx context.Context, addr client.Address, enc *snproto.EncapsulatedPacket) {
	fwd, ok := g.Forwarders.Get(addr, g.Config.AllowDynamicForwarders)
	if !ok {
		g.Logger.Warn("dropping frame from unknown forwarder", "addr", addr, "error", ErrUnknownForwarder)
		g.Metrics.DroppedPackets.Inc()
		return
	}

	inner, err := enc.InnerPacket()
	if err != nil {
		g.Logger.Warn("dropping malformed encapsulated frame", "addr", addr, "error", errors.Wrap(ErrMalformedPacket, err))
		g.Metrics.DroppedPackets.Inc()
		return
	}

	h, found := fwd.Lookup(enc.WirelessNodeID)
	g.dispatch(ctx, h, found, addr, inner, fwd, enc.WirelessNodeID)
}

func (g *Gateway) demuxDirect(ctx context.Context, addr client.Address, pkt snproto.Packet) {
	if g.Config.QoSMinusOneProxy {
		if h, ok := g.proxyClientFor(addr); ok {
			g.dispatchQoSMinusOne(ctx, h, addr, pkt)
			return
		}
	}

	h, found := g.Registry.ByAddress(addr)
	g.dispatch(ctx, h, found, addr, pkt, nil, nil)
}

// proxyClientFor reports whether addr is a registered QoS-minus-one
// sender; in this implementation any sender address is eligible once
// the proxy is enabled (spec.md §3 "QoSm1Proxy... SensorAddress →
// synthetic Client handle" — every address maps to the one singleton
// handle, since the proxy has no per-sender session to distinguish).
func (g *Gateway) proxyClientFor(addr client.Address) (client.Handle, bool) {
	return g.Registry.EnsureQoSm1Proxy(), true
}

func (g *Gateway) dispatchQoSMinusOne(ctx context.Context, h client.Handle, addr client.Address, pkt snproto.Packet) {
	pub, ok := pkt.(*snproto.PublishPacket)
	if !ok || pub.QoS != -1 {
		g.Logger.Warn("dropping non-QoS(-1)-publish from proxy sender", "addr", addr, "type", pkt.Type())
		g.Metrics.DroppedPackets.Inc()
		return
	}
	g.PacketEvents.Post(events.ClientRecv(h, pkt))
}

// dispatch implements spec.md §4.1 step 5 for both the direct and
// forwarded cases. fwd/wirelessNodeID are non-nil only for forwarded
// traffic.
func (g *Gateway) dispatch(ctx context.Context, h client.Handle, found bool, addr client.Address, pkt snproto.Packet, fwd *client.Forwarder, wirelessNodeID []byte) {
	if found {
		c, err := g.Registry.Resolve(h)
		if err != nil {
			found = false
		} else if c.Status == client.Disconnected && pkt.Type() != snproto.CONNECT {
			g.ClientSendQ.Post(events.ClientSend(h, &snproto.DisconnectPacket{}))
			return
		} else {
			g.PacketEvents.Post(events.ClientRecv(h, pkt))
			return
		}
	}

	if pkt.Type() == snproto.CONNECT {
		g.dispatchNewConnect(addr, pkt.(*snproto.ConnectPacket), fwd, wirelessNodeID)
		return
	}

	// Unresolved, non-CONNECT: ephemeral courtesy DISCONNECT (spec.md
	// §4.1 step 5, Design Notes §9 Open Question a). The ephemeral
	// client gets its own registry slot+generation so the event in
	// flight can never reference a client another task has recycled.
	g.Logger.Debug("packet from unresolved client", "addr", addr, "type", pkt.Type(), "error", ErrUnknownClient)
	eph := client.New("", client.Transparent)
	h, err := g.Registry.Create(addr, eph)
	if err != nil {
		g.Logger.Warn("dropping courtesy disconnect: registry full", "addr", addr, "error", errors.Wrap(ErrRegistryFull, err))
		return
	}
	g.ClientSendQ.Post(events.ClientSend(h, &snproto.DisconnectPacket{}))
	g.Registry.Forget(h)
}

func (g *Gateway) dispatchNewConnect(addr client.Address, connect *snproto.ConnectPacket, fwd *client.Forwarder, wirelessNodeID []byte) {
	id := string(connect.ClientID)

	if !g.Roster.Allow(id) {
		g.Logger.Warn("rejecting CONNECT: clientId not in roster", "clientId", id, "error", errors.Wrap(ErrAuthRejected, nil))
		eph := client.New(id, client.Transparent)
		h, err := g.Registry.Create(addr, eph)
		if err != nil {
			g.Logger.Warn("dropping CONNACK: registry full", "clientId", id, "error", errors.Wrap(ErrRegistryFull, err))
			return
		}
		g.ClientSendQ.Post(events.ClientSend(h, &snproto.ConnackPacket{ReturnCode: snproto.RCNotSupported}))
		g.Registry.Forget(h)
		return
	}

	if fwd != nil {
		kind := client.ForwardedTransparent
		if g.Config.Aggregator {
			kind = client.ForwardedAggregator
		}
		c := client.New(id, kind)
		c.ForwarderAddr = fwd.Addr
		c.WirelessNodeID = append([]byte(nil), wirelessNodeID...)
		if predef := g.PredefinedTopics.For(id); predef != nil {
			c.PredefinedTopics = predef
		}
		h, err := g.Registry.Create("", c)
		if err != nil {
			// No CONNACK is possible here: a forwarded client has no
			// direct address to answer, and without a Handle there is
			// nowhere to route a DISCONNECT through its forwarder
			// either (spec.md §7 "RegistryFull on CONNECT" assumes a
			// direct client; a forwarded one is simply dropped).
			g.Logger.Warn("dropping forwarded CONNECT: registry full", "clientId", id, "error", errors.Wrap(ErrRegistryFull, err))
			return
		}
		fwd.Register(wirelessNodeID, h)
		g.PacketEvents.Post(events.ClientRecv(h, connect))
		return
	}

	if existing, ok := g.Registry.ByClientID(id); ok {
		if g.Config.ClientAuthentication {
			g.Logger.Warn("rejecting address rebind: client authentication enabled", "clientId", id)
			g.ClientSendQ.Post(events.ClientSend(existing, &snproto.DisconnectPacket{}))
			return
		}
		if err := g.Registry.Rebind(existing, addr); err != nil {
			g.Logger.Warn("rebind failed", "clientId", id, "error", err)
			return
		}
		g.PacketEvents.Post(events.ClientRecv(existing, connect))
		return
	}

	kind := client.Transparent
	if g.Config.Aggregator {
		kind = client.Aggregator
	}
	c := client.New(id, kind)
	if predef := g.PredefinedTopics.For(id); predef != nil {
		c.PredefinedTopics = predef
	}
	h, err := g.Registry.Create(addr, c)
	if err != nil {
		// spec.md §7 policy: "RegistryFull on CONNECT causes CONNACK
		// with RC_REJECTED_NOT_SUPPORTED". There is no Handle to answer
		// through the normal state machine, so the CONNACK is posted
		// directly against the client's raw address via an ephemeral,
		// unregistered send.
		g.Logger.Warn("rejecting CONNECT: registry full", "clientId", id, "error", errors.Wrap(ErrRegistryFull, err))
		g.sendConnackDirect(addr, snproto.RCRejectedNotSupported)
		return
	}
	g.PacketEvents.Post(events.ClientRecv(h, connect))
}
