package hl7v2

import (
	"strings"
	"time"
)

// Family identifies a supported HL7v2 message family. The set is closed:
// every pipeline stage dispatches over these values with an exhaustive
// switch, so adding a family is a compile-time visible change.
type Family string

const (
	FamilyAdmission  Family = "admission"  // ADT: admit/discharge/transfer
	FamilyOrder      Family = "order"      // ORM/OMG: clinical orders
	FamilyResult     Family = "result"     // ORU: observation results
	FamilyDocument   Family = "document"   // MDM: document notifications
	FamilyScheduling Family = "scheduling" // SIU: scheduling information
)

// Families returns the closed set of supported message families.
func Families() []Family {
	return []Family{FamilyAdmission, FamilyOrder, FamilyResult, FamilyDocument, FamilyScheduling}
}

// KnownFamily reports whether f is a supported message family.
func KnownFamily(f Family) bool {
	switch f {
	case FamilyAdmission, FamilyOrder, FamilyResult, FamilyDocument, FamilyScheduling:
		return true
	}
	return false
}

// FamilyFromType derives the message family from an MSH-9 message type
// (e.g. "ADT^A01" → admission). The second return value is false when the
// message code is outside the supported set.
func FamilyFromType(messageType string) (Family, bool) {
	code := messageType
	if i := strings.Index(code, "^"); i >= 0 {
		code = code[:i]
	}
	switch strings.ToUpper(code) {
	case "ADT":
		return FamilyAdmission, true
	case "ORM", "OMG":
		return FamilyOrder, true
	case "ORU":
		return FamilyResult, true
	case "MDM":
		return FamilyDocument, true
	case "SIU":
		return FamilyScheduling, true
	}
	return "", false
}

// RawMessage is an HL7v2 message as received at the gateway boundary.
// The payload is opaque at this level; it is never modified after receipt.
type RawMessage struct {
	// ID is the message control identifier (MSH-10) when known, or an
	// identifier assigned at receipt. It is the back-reference carried by
	// every resource produced from this message.
	ID string

	Family  Family
	Payload []byte

	SendingApp        string
	SendingFacility   string
	ReceivingApp      string
	ReceivingFacility string

	ReceivedAt time.Time
}
