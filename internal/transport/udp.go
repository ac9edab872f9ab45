// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	stderrs "errors"
	"net"
	"time"

	"github.com/absmach/mqttsn-gateway/pkg/errors"
	"github.com/cenkalti/backoff/v4"
)

// ErrClosed is returned by Recv after Close.
var ErrClosed = errors.New("transport: closed")

// UDP is a Driver backed by a single net.UDPConn, the common case for
// an MQTT-SN sensor network (spec.md §6 lists UDP/Zigbee/XBee as
// interchangeable backends behind this one interface).
type UDP struct {
	conn   *net.UDPConn
	bcast  *net.UDPAddr
	backoff backoff.BackOff
}

// NewUDP binds listenAddr and configures broadcastAddr as the target
// for Broadcast. Both are in host:port form.
func NewUDP(listenAddr, broadcastAddr string) (*UDP, error) {
	laddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, errors.Wrap(errors.New("resolve listen address"), err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, errors.Wrap(errors.New("listen udp"), err)
	}

	baddr, err := net.ResolveUDPAddr("udp", broadcastAddr)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(errors.New("resolve broadcast address"), err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 5 * time.Second

	return &UDP{conn: conn, bcast: baddr, backoff: b}, nil
}

// Recv implements Driver. It retries transient read errors with
// backoff (spec.md §7: "TransportError on a recv task terminates that
// task only after a bounded retry") and returns ErrClosed once the
// underlying socket is closed.
func (u *UDP) Recv(ctx context.Context) ([]byte, []byte, error) {
	buf := make([]byte, 1500)

	var n int
	var from *net.UDPAddr
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		u.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var err error
		n, from, err = u.conn.ReadFromUDP(buf)
		if err != nil {
			if stderrs.Is(err, net.ErrClosed) {
				return backoff.Permanent(err)
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	for {
		err := backoff.Retry(op, backoff.WithContext(u.backoff, ctx))
		if err == nil {
			return []byte(from.String()), append([]byte(nil), buf[:n]...), nil
		}
		if stderrs.Is(err, net.ErrClosed) {
			return nil, nil, ErrClosed
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			continue
		}
		return nil, nil, errors.Wrap(ErrClosed, err)
	}
}

// Unicast implements Driver.
func (u *UDP) Unicast(_ context.Context, addr []byte, payload []byte) error {
	raddr, err := net.ResolveUDPAddr("udp", string(addr))
	if err != nil {
		return errors.Wrap(errors.New("resolve unicast address"), err)
	}
	_, err = u.conn.WriteToUDP(payload, raddr)
	return err
}

// Broadcast implements Driver.
func (u *UDP) Broadcast(_ context.Context, payload []byte) error {
	_, err := u.conn.WriteToUDP(payload, u.bcast)
	return err
}

// Close implements Driver.
func (u *UDP) Close() error {
	return u.conn.Close()
}

// LocalAddr returns the address the driver is bound to, mainly useful
// in tests that bind an ephemeral port (":0").
func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}
