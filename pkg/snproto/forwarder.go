// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package snproto

// EncapsulatedPacket is the frame-02 forwarder encapsulation (spec.md
// §6): [length][0xFE][ctrl=0x00][wireless_node_id_len][wireless_node_id][inner].
type EncapsulatedPacket struct {
	Ctrl           byte
	WirelessNodeID []byte
	Inner          []byte
}

func (p *EncapsulatedPacket) Type() MsgType { return ENCAPSULATED }

func (p *EncapsulatedPacket) Pack() []byte {
	body := make([]byte, 0, 2+len(p.WirelessNodeID)+len(p.Inner))
	body = append(body, p.Ctrl, byte(len(p.WirelessNodeID)))
	body = append(body, p.WirelessNodeID...)
	body = append(body, p.Inner...)
	return append(encodeHeader(ENCAPSULATED, len(body)), body...)
}

func (p *EncapsulatedPacket) Unpack(body []byte) error {
	if len(body) < 2 {
		return ErrMalformed
	}
	p.Ctrl = body[0]
	idLen := int(body[1])
	if idLen < 2 || idLen > 8 || len(body) < 2+idLen {
		return ErrMalformed
	}
	p.WirelessNodeID = append([]byte(nil), body[2:2+idLen]...)
	p.Inner = append([]byte(nil), body[2+idLen:]...)
	return nil
}

// InnerPacket decodes the encapsulated inner MQTT-SN frame.
func (p *EncapsulatedPacket) InnerPacket() (Packet, error) {
	inner, _, err := Decode(p.Inner)
	return inner, err
}
