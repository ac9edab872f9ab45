// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package snproto

// WillTopicReqPacket requests the client's will topic (spec.md §4.2).
type WillTopicReqPacket struct{}

func (p *WillTopicReqPacket) Type() MsgType { return WILLTOPICREQ }
func (p *WillTopicReqPacket) Pack() []byte  { return encodeHeader(WILLTOPICREQ, 0) }
func (p *WillTopicReqPacket) Unpack([]byte) error { return nil }

// QoS is a signed MQTT-SN QoS level; -1 denotes the QoS-minus-one
// fire-and-forget mode (spec.md GLOSSARY).
type QoS int8

// willFlags bit positions within the WILLTOPIC/PUBLISH flags octet.
const (
	flagRetain  = 1 << 4
	qosShift    = 5
	qosMask     = 0x03 << qosShift
	qosMinusOne = 0x03 << qosShift // 0b11 encodes QoS -1, MQTT-SN 1.2 §5.3
)

func packQoSRetain(qos QoS, retain bool) byte {
	var b byte
	if retain {
		b |= flagRetain
	}
	switch qos {
	case -1:
		b |= qosMinusOne
	default:
		b |= byte(qos&0x03) << qosShift
	}
	return b
}

func unpackQoS(flags byte) QoS {
	q := (flags & qosMask) >> qosShift
	if q == 0x03 {
		return -1
	}
	return QoS(q)
}

// WillTopicPacket carries the client's will topic.
type WillTopicPacket struct {
	QoS    QoS
	Retain bool
	Topic  string
}

func (p *WillTopicPacket) Type() MsgType { return WILLTOPIC }

func (p *WillTopicPacket) Pack() []byte {
	body := append([]byte{packQoSRetain(p.QoS, p.Retain)}, []byte(p.Topic)...)
	return append(encodeHeader(WILLTOPIC, len(body)), body...)
}

func (p *WillTopicPacket) Unpack(body []byte) error {
	if len(body) < 1 {
		return ErrMalformed
	}
	p.QoS = unpackQoS(body[0])
	p.Retain = body[0]&flagRetain != 0
	p.Topic = string(body[1:])
	return nil
}

// WillMsgReqPacket requests the client's will message.
type WillMsgReqPacket struct{}

func (p *WillMsgReqPacket) Type() MsgType         { return WILLMSGREQ }
func (p *WillMsgReqPacket) Pack() []byte          { return encodeHeader(WILLMSGREQ, 0) }
func (p *WillMsgReqPacket) Unpack([]byte) error   { return nil }

// WillMsgPacket carries the client's will payload.
type WillMsgPacket struct {
	Message []byte
}

func (p *WillMsgPacket) Type() MsgType { return WILLMSG }

func (p *WillMsgPacket) Pack() []byte {
	return append(encodeHeader(WILLMSG, len(p.Message)), p.Message...)
}

func (p *WillMsgPacket) Unpack(body []byte) error {
	p.Message = append([]byte(nil), body...)
	return nil
}

// WillTopicUpdPacket / WillMsgUpdPacket request a runtime will update;
// spec.md §4.2 treats these as an explicit non-goal and always answers
// with WILLTOPICRESP/WILLMSGRESP carrying RCNotSupported.
type WillTopicUpdPacket struct {
	QoS    QoS
	Retain bool
	Topic  string
}

func (p *WillTopicUpdPacket) Type() MsgType { return WILLTOPICUPD }
func (p *WillTopicUpdPacket) Pack() []byte {
	body := append([]byte{packQoSRetain(p.QoS, p.Retain)}, []byte(p.Topic)...)
	return append(encodeHeader(WILLTOPICUPD, len(body)), body...)
}
func (p *WillTopicUpdPacket) Unpack(body []byte) error {
	if len(body) < 1 {
		return ErrMalformed
	}
	p.QoS = unpackQoS(body[0])
	p.Retain = body[0]&flagRetain != 0
	p.Topic = string(body[1:])
	return nil
}

// WillTopicRespPacket answers WILLTOPICUPD.
type WillTopicRespPacket struct {
	ReturnCode ReturnCode
}

func (p *WillTopicRespPacket) Type() MsgType { return WILLTOPICRESP }
func (p *WillTopicRespPacket) Pack() []byte {
	return append(encodeHeader(WILLTOPICRESP, 1), byte(p.ReturnCode))
}
func (p *WillTopicRespPacket) Unpack(body []byte) error {
	if len(body) < 1 {
		return ErrMalformed
	}
	p.ReturnCode = ReturnCode(body[0])
	return nil
}

// WillMsgUpdPacket requests a runtime will message update.
type WillMsgUpdPacket struct {
	Message []byte
}

func (p *WillMsgUpdPacket) Type() MsgType { return WILLMSGUPD }
func (p *WillMsgUpdPacket) Pack() []byte {
	return append(encodeHeader(WILLMSGUPD, len(p.Message)), p.Message...)
}
func (p *WillMsgUpdPacket) Unpack(body []byte) error {
	p.Message = append([]byte(nil), body...)
	return nil
}

// WillMsgRespPacket answers WILLMSGUPD.
type WillMsgRespPacket struct {
	ReturnCode ReturnCode
}

func (p *WillMsgRespPacket) Type() MsgType { return WILLMSGRESP }
func (p *WillMsgRespPacket) Pack() []byte {
	return append(encodeHeader(WILLMSGRESP, 1), byte(p.ReturnCode))
}
func (p *WillMsgRespPacket) Unpack(body []byte) error {
	if len(body) < 1 {
		return ErrMalformed
	}
	p.ReturnCode = ReturnCode(body[0])
	return nil
}
