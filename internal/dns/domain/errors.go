package domain

import "errors"

// Sentinel errors for every failure the engine can report to hook code.
// Fallible operations return one of these (possibly wrapped with context
// via fmt.Errorf and %w), so callers branch with errors.Is. A failed
// operation never leaves partial state behind.
var (
	// ErrVoidRecord is returned for any operation on a record handle whose
	// record has been deleted. The description is load-bearing: hook code
	// written against the C ABI matches on the string "VoidRecord".
	ErrVoidRecord = errors.New("VoidRecord")

	// ErrNameTooLong is returned when an encoded name would exceed the
	// wire-format budget (256 bytes including the root terminator).
	ErrNameTooLong = errors.New("name too long")

	// ErrMalformedWireName is returned for wire-form bytes with an illegal
	// label length or a missing root terminator.
	ErrMalformedWireName = errors.New("malformed wire-format name")

	// ErrMalformedText is returned when presentation-form text (a name, or
	// a full record in zone syntax) cannot be parsed.
	ErrMalformedText = errors.New("malformed presentation text")

	// ErrBufferTooSmall is returned when a caller-supplied buffer cannot
	// hold the full result. No partial output is produced.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrKeyNotFound is returned when retrieving an absent session key.
	ErrKeyNotFound = errors.New("key not found")

	// ErrTypeMismatch is returned when a stored session value has the other
	// type, or when an address accessor is used on a record that is neither
	// A nor AAAA.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrABIVersionMismatch is fatal for a hook invocation: the capability
	// table was built for a different ABI revision than the hook expects.
	ErrABIVersionMismatch = errors.New("ABI version mismatch")

	// ErrMalformedPacket is returned by the parser for packets that fail
	// structural validation.
	ErrMalformedPacket = errors.New("malformed DNS packet")

	// ErrPacketTooSmall is returned for raw packets shorter than their own
	// advertised contents.
	ErrPacketTooSmall = errors.New("packet too small")

	// ErrPacketTooLarge is returned when a mutation would grow the message
	// past the maximum uncompressed packet size.
	ErrPacketTooLarge = errors.New("packet too large")
)
