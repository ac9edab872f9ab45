// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/absmach/mqttsn-gateway/internal/client"
	"github.com/absmach/mqttsn-gateway/internal/events"
	"github.com/absmach/mqttsn-gateway/pkg/snproto"
)

// timers owns the per-client keep-alive and post-Lost GC timers
// (spec.md §5 "Keep-alive timer"). A single map guarded by a mutex
// stands in for the "timer wheel" spec.md §5 lists alongside the four
// tasks; each entry posts a Timeout event back onto packet-events so
// the handler remains the sole writer of client state.
type timers struct {
	mu sync.Mutex
	t  map[client.Handle]*time.Timer
}

func newTimers() *timers {
	return &timers{t: make(map[client.Handle]*time.Timer)}
}

func durationFromSeconds(seconds uint16) time.Duration {
	return time.Duration(seconds) * time.Second
}

// armKeepAlive (re)starts the 1.5x-keepAlive timer for h, as spec.md §5
// requires on every inbound packet from that client.
func (g *Gateway) armKeepAlive(h client.Handle, c *client.Client) {
	d := c.KeepAlive
	if d <= 0 {
		d = g.Config.KeepAlive
	}
	d = d + d/2

	g.keepAliveTimers.mu.Lock()
	defer g.keepAliveTimers.mu.Unlock()
	if t, ok := g.keepAliveTimers.t[h]; ok {
		t.Stop()
	}
	g.keepAliveTimers.t[h] = time.AfterFunc(d, func() {
		g.PacketEvents.Post(events.Timeout(h, events.TimeoutKeepAlive))
	})
}

// armGC schedules the post-Lost grace-period forget (spec.md §5
// "marks the client for garbage collection after a grace period").
func (g *Gateway) armGC(h client.Handle) {
	g.gcTimers.mu.Lock()
	defer g.gcTimers.mu.Unlock()
	if t, ok := g.gcTimers.t[h]; ok {
		t.Stop()
	}
	g.gcTimers.t[h] = time.AfterFunc(g.Config.LostClientGCGrace, func() {
		g.PacketEvents.Post(events.Timeout(h, events.TimeoutGC))
	})
}

// advertiseLoop periodically broadcasts ADVERTISE so sensor nodes can
// discover this gateway without first sending SEARCHGW (SPEC_FULL.md
// §12 supplemented feature, read from the original's free-running
// advertise ticker). It is gated by config.KeepAlive: zero disables it.
func (g *Gateway) advertiseLoop(ctx context.Context) error {
	interval := g.Config.KeepAlive
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	adv := &snproto.AdvertisePacket{GatewayID: g.Config.GatewayID, Duration: uint16(interval / time.Second)}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.ClientSendQ.Post(events.Broadcast(adv))
		}
	}
}

// keepAliveLoop exists only to give the timer fabric a task slot in
// the supervised errgroup (spec.md §2's task table); the timers
// themselves are event-driven via time.AfterFunc, not a polling loop.
func (g *Gateway) keepAliveLoop(ctx context.Context) error {
	<-ctx.Done()

	g.keepAliveTimers.mu.Lock()
	for _, t := range g.keepAliveTimers.t {
		t.Stop()
	}
	g.keepAliveTimers.mu.Unlock()

	g.gcTimers.mu.Lock()
	for _, t := range g.gcTimers.t {
		t.Stop()
	}
	g.gcTimers.mu.Unlock()

	return nil
}
