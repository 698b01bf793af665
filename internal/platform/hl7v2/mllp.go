package hl7v2

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// MLLP framing bytes. Interface engines commonly deliver HL7v2 wrapped in
// minimal lower layer protocol frames even over non-TCP transports, so the
// gateway accepts framed payloads at its entry point.
const (
	MLLPStartBlock     = 0x0B // VT
	MLLPEndBlock       = 0x1C // FS
	MLLPCarriageReturn = 0x0D // CR
)

// FrameMessage wraps raw HL7v2 bytes in MLLP framing:
//
//	<0x0B> + message + <0x1C><0x0D>
func FrameMessage(data []byte) []byte {
	frame := make([]byte, 0, len(data)+3)
	frame = append(frame, MLLPStartBlock)
	frame = append(frame, data...)
	frame = append(frame, MLLPEndBlock, MLLPCarriageReturn)
	return frame
}

// Unframe strips MLLP framing from a payload if present. Unframed payloads
// are returned unchanged, so callers can pass any received body through it.
func Unframe(data []byte) []byte {
	start := bytes.IndexByte(data, MLLPStartBlock)
	if start == -1 {
		return data
	}
	end := bytes.Index(data[start+1:], []byte{MLLPEndBlock, MLLPCarriageReturn})
	if end == -1 {
		return data[start+1:]
	}
	return data[start+1 : start+1+end]
}

// Serialize converts a Message back into raw HL7v2 bytes with \r segment
// separators.
func Serialize(msg *Message) []byte {
	segments := make([]string, len(msg.Segments))
	for i, seg := range msg.Segments {
		segments[i] = serializeSegment(seg)
	}
	return []byte(strings.Join(segments, "\r"))
}

func serializeSegment(seg Segment) string {
	if seg.Name == "MSH" {
		// Fields[0] is the separator itself; reconstruction starts at MSH-2.
		if len(seg.Fields) < 2 {
			return "MSH|"
		}
		parts := make([]string, 0, len(seg.Fields)-1)
		for i := 1; i < len(seg.Fields); i++ {
			parts = append(parts, seg.Fields[i].Value)
		}
		return "MSH|" + strings.Join(parts, "|")
	}

	parts := make([]string, len(seg.Fields))
	for i, f := range seg.Fields {
		parts[i] = f.Value
	}
	return seg.Name + "|" + strings.Join(parts, "|")
}

// GenerateACK creates an HL7v2 ACK for the given incoming message. ackCode
// is "AA" (accept), "AE" (error), or "AR" (reject). Sending and receiving
// identifiers are swapped and MSA-2 references the original control ID.
func GenerateACK(incoming *Message, ackCode string) *Message {
	now := time.Now().UTC()
	timestamp := now.Format("20060102150405")
	controlID := fmt.Sprintf("ACK%s", now.Format("20060102150405.000"))
	msgType := "ACK^" + incoming.TriggerEvent

	ack := &Message{
		Type:         msgType,
		TriggerEvent: incoming.TriggerEvent,
		ControlID:    controlID,
		Version:      incoming.Version,
		Timestamp:    now,
		SendingApp:   incoming.ReceivingApp,
		SendingFac:   incoming.ReceivingFac,
		ReceivingApp: incoming.SendingApp,
		ReceivingFac: incoming.SendingFac,
	}

	field := func(v string) Field {
		return Field{Value: v, Components: []string{v}, Repeats: [][]string{{v}}}
	}

	msh := Segment{
		Name: "MSH",
		Fields: []Field{
			field("|"),                // MSH-1
			field(`^~\&`),             // MSH-2
			field(ack.SendingApp),     // MSH-3
			field(ack.SendingFac),     // MSH-4
			field(ack.ReceivingApp),   // MSH-5
			field(ack.ReceivingFac),   // MSH-6
			field(timestamp),          // MSH-7
			field(""),                 // MSH-8
			field(msgType),            // MSH-9
			field(controlID),          // MSH-10
			field("P"),                // MSH-11
			field(incoming.Version),   // MSH-12
		},
	}
	msa := Segment{
		Name: "MSA",
		Fields: []Field{
			field(ackCode),            // MSA-1
			field(incoming.ControlID), // MSA-2
		},
	}

	ack.Segments = []Segment{msh, msa}
	return ack
}
