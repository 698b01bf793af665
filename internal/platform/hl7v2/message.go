package hl7v2

import (
	"fmt"
	"strings"
	"time"
)

// Message is a parsed HL7v2 message.
type Message struct {
	Type         string    // MSH-9 message type (e.g. "ADT^A01")
	TriggerEvent string    // MSH-9.2 (e.g. "A01")
	ControlID    string    // MSH-10
	Version      string    // MSH-12 (e.g. "2.5.1")
	Timestamp    time.Time // MSH-7
	SendingApp   string    // MSH-3
	SendingFac   string    // MSH-4
	ReceivingApp string    // MSH-5
	ReceivingFac string    // MSH-6
	Segments     []Segment
}

// Segment is a single labeled segment (MSH, PID, OBR, ...).
type Segment struct {
	Name   string
	Fields []Field
}

// Field is one field value, split into components (^) and repetitions (~).
type Field struct {
	Value      string
	Components []string
	Repeats    [][]string
}

// Parse parses raw HL7v2 bytes into a Message. Segment separators may be
// \r, \n, or \r\n.
func Parse(raw []byte) (*Message, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("hl7v2: message is empty")
	}

	text := strings.ReplaceAll(string(raw), "\r\n", "\r")
	text = strings.ReplaceAll(text, "\n", "\r")

	var lines []string
	for _, line := range strings.Split(text, "\r") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("hl7v2: no segments found")
	}
	if !strings.HasPrefix(lines[0], "MSH") {
		got := lines[0]
		if len(got) > 3 {
			got = got[:3]
		}
		return nil, fmt.Errorf("hl7v2: first segment must be MSH, got %q", got)
	}

	msg := &Message{}
	for _, line := range lines {
		seg, err := parseSegment(line)
		if err != nil {
			return nil, fmt.Errorf("hl7v2: %w", err)
		}
		msg.Segments = append(msg.Segments, seg)
	}

	if err := msg.readHeader(); err != nil {
		return nil, err
	}
	return msg, nil
}

// parseSegment parses one segment line. MSH is special: the field separator
// character is itself MSH-1, so Fields[0] holds "|" and indexing for MSH
// lines up one position earlier than for other segments.
func parseSegment(line string) (Segment, error) {
	if len(line) < 3 {
		return Segment{}, fmt.Errorf("segment too short: %q", line)
	}

	seg := Segment{}
	if strings.HasPrefix(line, "MSH") {
		seg.Name = "MSH"
		if len(line) < 4 {
			return seg, nil
		}
		sep := string(line[3])
		seg.Fields = append(seg.Fields, Field{Value: sep, Components: []string{sep}, Repeats: [][]string{{sep}}})
		for _, part := range strings.Split(line[4:], sep) {
			seg.Fields = append(seg.Fields, parseField(part))
		}
		return seg, nil
	}

	parts := strings.SplitN(line, "|", 2)
	seg.Name = parts[0]
	if len(parts) > 1 {
		for _, f := range strings.Split(parts[1], "|") {
			seg.Fields = append(seg.Fields, parseField(f))
		}
	}
	return seg, nil
}

func parseField(raw string) Field {
	f := Field{Value: raw}
	for _, rep := range strings.Split(raw, "~") {
		f.Repeats = append(f.Repeats, strings.Split(rep, "^"))
	}
	f.Components = f.Repeats[0]
	return f
}

// readHeader extracts the common MSH fields into the Message struct.
func (m *Message) readHeader() error {
	msh := m.GetSegment("MSH")
	if msh == nil {
		return fmt.Errorf("hl7v2: MSH segment not found")
	}

	m.SendingApp = msh.GetField(3)
	m.SendingFac = msh.GetField(4)
	m.ReceivingApp = msh.GetField(5)
	m.ReceivingFac = msh.GetField(6)
	m.Type = msh.GetField(9)
	m.TriggerEvent = msh.GetComponent(9, 2)
	m.ControlID = msh.GetField(10)
	m.Version = msh.GetField(12)

	if ts := msh.GetField(7); ts != "" {
		if t, err := ParseTimestamp(ts); err == nil {
			m.Timestamp = t
		}
	}
	return nil
}

// ParseTimestamp parses an HL7v2 timestamp (YYYYMMDD[HHMM[SS]]). A trailing
// timezone offset is ignored; the gateway treats times as local to the
// sending facility.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "+-"); i > 0 {
		s = s[:i]
	}
	switch {
	case len(s) >= 14:
		return time.Parse("20060102150405", s[:14])
	case len(s) >= 12:
		return time.Parse("200601021504", s[:12])
	case len(s) >= 8:
		return time.Parse("20060102", s[:8])
	default:
		return time.Time{}, fmt.Errorf("hl7v2: unrecognized timestamp %q", s)
	}
}

// ParseDate parses an HL7v2 date (YYYYMMDD). Unlike ParseTimestamp it
// rejects values carrying a time portion.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) != 8 {
		return time.Time{}, fmt.Errorf("hl7v2: unrecognized date %q", s)
	}
	return time.Parse("20060102", s)
}

// GetSegment returns the first segment with the given name, or nil.
func (m *Message) GetSegment(name string) *Segment {
	for i := range m.Segments {
		if m.Segments[i].Name == name {
			return &m.Segments[i]
		}
	}
	return nil
}

// GetSegments returns all segments with the given name, in message order.
func (m *Message) GetSegments(name string) []*Segment {
	var out []*Segment
	for i := range m.Segments {
		if m.Segments[i].Name == name {
			out = append(out, &m.Segments[i])
		}
	}
	return out
}

// GetField returns a field value by 1-based HL7 index. For MSH the
// separator character itself counts as MSH-1, which parseSegment already
// accounts for, so the same indexing applies to every segment.
func (s *Segment) GetField(index int) string {
	idx := index - 1
	if idx < 0 || idx >= len(s.Fields) {
		return ""
	}
	return s.Fields[idx].Value
}

// GetComponent returns a component value by 1-based field and component
// indices.
func (s *Segment) GetComponent(fieldIdx, compIdx int) string {
	idx := fieldIdx - 1
	if idx < 0 || idx >= len(s.Fields) {
		return ""
	}
	ci := compIdx - 1
	comps := s.Fields[idx].Components
	if ci < 0 || ci >= len(comps) {
		return ""
	}
	return comps[ci]
}

// GetRepeats returns all repetitions of a field, each as its component list.
func (s *Segment) GetRepeats(fieldIdx int) [][]string {
	idx := fieldIdx - 1
	if idx < 0 || idx >= len(s.Fields) {
		return nil
	}
	return s.Fields[idx].Repeats
}
