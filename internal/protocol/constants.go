// Package protocol defines the fixed-layout binary records exchanged between a
// Power node and its Master.
//
// Every record is little-endian and byte-packed, starts with a one-byte type tag
// and ends with the sender's uptime in milliseconds (u32). Receivers identify a
// record by its tag AND its exact length; there is no length prefix.
package protocol

// Record type tags.
const (
	TagHello        = 2
	TagHelloAck     = 3
	TagRelayCommand = 10
	TagPowerState   = 12
	TagTimeSync     = 13
	TagRuleUpload   = 14
	TagRuleAck      = 15
	TagRuleExecuted = 16
	TagError        = 17
)

// Record sizes in bytes, including tag and trailing timestamp.
const (
	SizeHello        = 6
	SizeHelloAck     = 7
	SizeRelayCommand = 8
	SizePowerState   = 8
	SizeTimeSync     = 9
	SizeRuleUpload   = 3 + MaxRules*RuleSize + 4 // 47
	SizeRuleAck      = 8
	SizeRuleExecuted = 10
	SizeError        = 8
)

// Rule and relay geometry.
const (
	RuleSize    = 4  // u16 minute, u8 on, u8 days
	MaxRules    = 10 // rules per relay channel
	NumRelays   = 4
	MinChannel  = 1 // lowest radio channel
	MaxChannel  = 13
	RelayNibble = 0x0F
)

// Error codes carried by an Error record.
const (
	ErrCodeStorage    = 1 // persistent write failed, state kept in RAM
	ErrCodeBadChannel = 2 // relay channel outside 1..4
)

var recordSize = map[byte]int{
	TagHello:        SizeHello,
	TagHelloAck:     SizeHelloAck,
	TagRelayCommand: SizeRelayCommand,
	TagPowerState:   SizePowerState,
	TagTimeSync:     SizeTimeSync,
	TagRuleUpload:   SizeRuleUpload,
	TagRuleAck:      SizeRuleAck,
	TagRuleExecuted: SizeRuleExecuted,
	TagError:        SizeError,
}

// RecordSize returns the wire size for tag, or 0 if the tag is unknown.
func RecordSize(tag byte) int {
	return recordSize[tag]
}
