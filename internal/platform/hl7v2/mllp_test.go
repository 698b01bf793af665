package hl7v2

import (
	"bytes"
	"testing"
)

func TestFrameUnframeRoundTrip(t *testing.T) {
	data := []byte(sampleADT)
	framed := FrameMessage(data)

	if framed[0] != MLLPStartBlock {
		t.Errorf("frame start = 0x%02X, want 0x0B", framed[0])
	}
	if framed[len(framed)-2] != MLLPEndBlock || framed[len(framed)-1] != MLLPCarriageReturn {
		t.Error("frame does not end with FS CR")
	}

	if got := Unframe(framed); !bytes.Equal(got, data) {
		t.Error("Unframe did not recover the original payload")
	}
}

func TestUnframePassthrough(t *testing.T) {
	data := []byte(sampleORU)
	if got := Unframe(data); !bytes.Equal(got, data) {
		t.Error("unframed payloads must pass through unchanged")
	}
}

func TestUnframeMissingTrailer(t *testing.T) {
	data := append([]byte{MLLPStartBlock}, []byte("MSH|partial")...)
	if got := Unframe(data); string(got) != "MSH|partial" {
		t.Errorf("Unframe = %q, want payload after start block", got)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	msg, err := Parse([]byte(sampleADT))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	out := Serialize(msg)
	reparsed, err := Parse(out)
	if err != nil {
		t.Fatalf("reparse returned error: %v", err)
	}
	if reparsed.ControlID != msg.ControlID || reparsed.Type != msg.Type {
		t.Error("serialized message lost header fields")
	}
	if len(reparsed.Segments) != len(msg.Segments) {
		t.Errorf("got %d segments after round trip, want %d", len(reparsed.Segments), len(msg.Segments))
	}
}

func TestGenerateACK(t *testing.T) {
	msg, err := Parse([]byte(sampleADT))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	ack := GenerateACK(msg, "AA")
	if ack.SendingApp != msg.ReceivingApp || ack.ReceivingApp != msg.SendingApp {
		t.Error("ACK must swap sending and receiving applications")
	}

	msa := ack.GetSegment("MSA")
	if msa == nil {
		t.Fatal("ACK missing MSA segment")
	}
	if got := msa.GetField(1); got != "AA" {
		t.Errorf("MSA-1 = %q, want AA", got)
	}
	if got := msa.GetField(2); got != msg.ControlID {
		t.Errorf("MSA-2 = %q, want %q", got, msg.ControlID)
	}

	// The generated ACK must itself serialize and reparse.
	reparsed, err := Parse(Serialize(ack))
	if err != nil {
		t.Fatalf("ACK does not reparse: %v", err)
	}
	if reparsed.Type != "ACK^A01" {
		t.Errorf("ACK type = %q, want ACK^A01", reparsed.Type)
	}
}
