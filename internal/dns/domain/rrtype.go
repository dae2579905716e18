package domain

import "fmt"

// RRType represents a DNS resource record type (e.g. A, AAAA, MX).
// See IANA DNS Parameters for assigned codes.
type RRType uint16

// DNS Resource Record Type constants
const (
	RRTypeA     RRType = 1   // A - IPv4 address
	RRTypeNS    RRType = 2   // NS - Name server
	RRTypeCNAME RRType = 5   // CNAME - Canonical name
	RRTypeSOA   RRType = 6   // SOA - Start of authority
	RRTypePTR   RRType = 12  // PTR - Pointer
	RRTypeMX    RRType = 15  // MX - Mail exchange
	RRTypeTXT   RRType = 16  // TXT - Text
	RRTypeAAAA  RRType = 28  // AAAA - IPv6 address
	RRTypeSRV   RRType = 33  // SRV - Service
	RRTypeOPT   RRType = 41  // OPT - EDNS pseudo-record
	RRTypeANY   RRType = 255 // ANY - Any type (query only)
)

// String returns the textual representation of the RRType.
// For unknown types, it returns "TYPE<value>" per RFC 3597.
func (t RRType) String() string {
	switch t {
	case RRTypeA:
		return "A"
	case RRTypeNS:
		return "NS"
	case RRTypeCNAME:
		return "CNAME"
	case RRTypeSOA:
		return "SOA"
	case RRTypePTR:
		return "PTR"
	case RRTypeMX:
		return "MX"
	case RRTypeTXT:
		return "TXT"
	case RRTypeAAAA:
		return "AAAA"
	case RRTypeSRV:
		return "SRV"
	case RRTypeOPT:
		return "OPT"
	case RRTypeANY:
		return "ANY"
	default:
		return fmt.Sprintf("TYPE%d", uint16(t))
	}
}

// RRTypeFromString converts a record type string to its corresponding RRType value.
// Returns 0 for unknown type names.
func RRTypeFromString(s string) RRType {
	switch s {
	case "A":
		return RRTypeA
	case "NS":
		return RRTypeNS
	case "CNAME":
		return RRTypeCNAME
	case "SOA":
		return RRTypeSOA
	case "PTR":
		return RRTypePTR
	case "MX":
		return RRTypeMX
	case "TXT":
		return RRTypeTXT
	case "AAAA":
		return RRTypeAAAA
	case "SRV":
		return RRTypeSRV
	case "OPT":
		return RRTypeOPT
	case "ANY":
		return RRTypeANY
	default:
		return 0
	}
}
