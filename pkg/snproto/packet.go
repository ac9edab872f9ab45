// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package snproto implements the subset of the MQTT-SN 1.2 wire codec
// the dispatcher in internal/gateway depends on (spec.md §1: "assumed
// available as a codec" — nothing in the retrieval pack supplies one,
// so it is written here). The packet shape (fixed header + typed
// struct + NewPacket(type) constructor switch) is grounded on the
// packets.ControlPacket idiom in COMSYS-paho.mqtt.golang/client.go and
// xigang-paho.mqtt.golang, adapted from MQTT's single-length-byte frame
// to MQTT-SN's 1-or-3-byte length prefix (spec.md §3).
package snproto

import (
	"fmt"
)

// MsgType is the one-octet (or, for ENCAPSULATED framing, embedded)
// MQTT-SN message type identifier.
type MsgType byte

// Message type constants, MQTT-SN 1.2 §5.
const (
	ADVERTISE     MsgType = 0x00
	SEARCHGW      MsgType = 0x01
	GWINFO        MsgType = 0x02
	CONNECT       MsgType = 0x04
	CONNACK       MsgType = 0x05
	WILLTOPICREQ  MsgType = 0x06
	WILLTOPIC     MsgType = 0x07
	WILLMSGREQ    MsgType = 0x08
	WILLMSG       MsgType = 0x09
	REGISTER      MsgType = 0x0A
	REGACK        MsgType = 0x0B
	PUBLISH       MsgType = 0x0C
	PUBACK        MsgType = 0x0D
	PUBCOMP       MsgType = 0x0E
	PUBREC        MsgType = 0x0F
	PUBREL        MsgType = 0x10
	SUBSCRIBE     MsgType = 0x12
	SUBACK        MsgType = 0x13
	UNSUBSCRIBE   MsgType = 0x14
	UNSUBACK      MsgType = 0x15
	PINGREQ       MsgType = 0x16
	PINGRESP      MsgType = 0x17
	DISCONNECT    MsgType = 0x18
	WILLTOPICUPD  MsgType = 0x1A
	WILLTOPICRESP MsgType = 0x1B
	WILLMSGUPD    MsgType = 0x1C
	WILLMSGRESP   MsgType = 0x1D
	ENCAPSULATED  MsgType = 0xFE
)

func (t MsgType) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(t))
}

var typeNames = map[MsgType]string{
	ADVERTISE:     "ADVERTISE",
	SEARCHGW:      "SEARCHGW",
	GWINFO:        "GWINFO",
	CONNECT:       "CONNECT",
	CONNACK:       "CONNACK",
	WILLTOPICREQ:  "WILLTOPICREQ",
	WILLTOPIC:     "WILLTOPIC",
	WILLMSGREQ:    "WILLMSGREQ",
	WILLMSG:       "WILLMSG",
	REGISTER:      "REGISTER",
	REGACK:        "REGACK",
	PUBLISH:       "PUBLISH",
	PUBACK:        "PUBACK",
	PUBCOMP:       "PUBCOMP",
	PUBREC:        "PUBREC",
	PUBREL:        "PUBREL",
	SUBSCRIBE:     "SUBSCRIBE",
	SUBACK:        "SUBACK",
	UNSUBSCRIBE:   "UNSUBSCRIBE",
	UNSUBACK:      "UNSUBACK",
	PINGREQ:       "PINGREQ",
	PINGRESP:      "PINGRESP",
	DISCONNECT:    "DISCONNECT",
	WILLTOPICUPD:  "WILLTOPICUPD",
	WILLTOPICRESP: "WILLTOPICRESP",
	WILLMSGUPD:    "WILLMSGUPD",
	WILLMSGRESP:   "WILLMSGRESP",
	ENCAPSULATED:  "ENCAPSULATED",
}

// MaxLength is the largest MQTT-SN frame this gateway accepts (spec.md
// §3: "max 1024 octets").
const MaxLength = 1024

// ReturnCode is the one-octet status carried by CONNACK / REGACK /
// SUBACK / WILLTOPICRESP / WILLMSGRESP.
type ReturnCode byte

// Return codes, MQTT-SN 1.2 §5.3.20.
const (
	RCAccepted            ReturnCode = 0x00
	RCCongestion          ReturnCode = 0x01
	RCInvalidTopicID      ReturnCode = 0x02
	RCNotSupported        ReturnCode = 0x03
	RCRejectedNotSupported ReturnCode = RCNotSupported
)

// Packet is implemented by every decodable MQTT-SN message.
type Packet interface {
	// Type returns the message type octet.
	Type() MsgType

	// Pack serializes the packet, including its length prefix.
	Pack() []byte

	// Unpack populates the packet from body (the frame with the
	// length prefix and type octet already stripped).
	Unpack(body []byte) error
}

// NewPacket constructs a zero-valued packet for the given type, or nil
// if the type is unknown. Mirrors packets.NewControlPacket's
// type-to-struct switch.
func NewPacket(t MsgType) Packet {
	switch t {
	case ADVERTISE:
		return &AdvertisePacket{}
	case SEARCHGW:
		return &SearchGwPacket{}
	case GWINFO:
		return &GwInfoPacket{}
	case CONNECT:
		return &ConnectPacket{}
	case CONNACK:
		return &ConnackPacket{}
	case WILLTOPICREQ:
		return &WillTopicReqPacket{}
	case WILLTOPIC:
		return &WillTopicPacket{}
	case WILLMSGREQ:
		return &WillMsgReqPacket{}
	case WILLMSG:
		return &WillMsgPacket{}
	case WILLTOPICUPD:
		return &WillTopicUpdPacket{}
	case WILLTOPICRESP:
		return &WillTopicRespPacket{}
	case WILLMSGUPD:
		return &WillMsgUpdPacket{}
	case WILLMSGRESP:
		return &WillMsgRespPacket{}
	case REGISTER:
		return &RegisterPacket{}
	case REGACK:
		return &RegackPacket{}
	case PUBLISH:
		return &PublishPacket{}
	case PUBACK:
		return &PubackPacket{}
	case SUBSCRIBE:
		return &SubscribePacket{}
	case SUBACK:
		return &SubackPacket{}
	case UNSUBSCRIBE:
		return &UnsubscribePacket{}
	case UNSUBACK:
		return &UnsubackPacket{}
	case PINGREQ:
		return &PingreqPacket{}
	case PINGRESP:
		return &PingrespPacket{}
	case DISCONNECT:
		return &DisconnectPacket{}
	case ENCAPSULATED:
		return &EncapsulatedPacket{}
	default:
		return nil
	}
}

// Decode reads one length-prefixed MQTT-SN frame from buf and returns
// the decoded Packet along with the number of bytes consumed. Frames
// with fewer than 2 octets are rejected (spec.md §4.1 step 1).
func Decode(buf []byte) (Packet, int, error) {
	if len(buf) < 2 {
		return nil, 0, ErrShortFrame
	}

	length := int(buf[0])
	hdr := 1
	if length == 1 {
		if len(buf) < 4 {
			return nil, 0, ErrShortFrame
		}
		length = int(buf[1])<<8 | int(buf[2])
		hdr = 3
	}
	if length < 2 || length > MaxLength || len(buf) < length {
		return nil, 0, ErrShortFrame
	}

	t := MsgType(buf[hdr])
	body := buf[hdr+1 : length]

	p := NewPacket(t)
	if p == nil {
		return nil, length, ErrUnknownType
	}
	if err := p.Unpack(body); err != nil {
		return nil, length, err
	}
	return p, length, nil
}

func encodeHeader(t MsgType, bodyLen int) []byte {
	total := 2 + bodyLen
	if total <= 255 {
		out := make([]byte, 2, total)
		out[0] = byte(total)
		out[1] = byte(t)
		return out
	}
	total += 2
	out := make([]byte, 4, total)
	out[0] = 0x01
	out[1] = byte(total >> 8)
	out[2] = byte(total)
	out[3] = byte(t)
	return out
}
