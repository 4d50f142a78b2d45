package protocol

// Packet is any decoded record.
type Packet interface {
	Tag() byte
}

// Hello is broadcast by the Master to announce its operating channel.
type Hello struct {
	Channel uint8
	Millis  uint32
}

// HelloAck confirms the node locked onto the announced channel.
type HelloAck struct {
	Channel uint8
	OK      bool
	Millis  uint32
}

// RelayCommand sets the relays selected by Mask to the matching bits of Value.
type RelayCommand struct {
	Mask     uint8 // bit0..3 = relay 1..4 to touch
	Value    uint8 // bit0..3 = desired ON state
	ApplyNow uint8 // accepted for compatibility, ignored
	Millis   uint32
}

// PowerState reports the commanded relay mask.
type PowerState struct {
	RelayMask  uint8
	TimeValid  bool
	ResetCause uint8
	Millis     uint32
}

// TimeSync sets the node's virtual clock.
type TimeSync struct {
	Minute  uint16 // 0..1439
	Weekday uint8  // 0=Mon .. 6=Sun
	Valid   bool
	Millis  uint32
}

// RuleRecord is the wire form of a single schedule rule. Fields are raw: a
// minute above 1439 is carried as-is and skipped by the scheduler.
type RuleRecord struct {
	Minute uint16
	On     uint8 // 1 = ON
	Days   uint8 // bit0..6 = Mon..Sun
}

// RuleUpload replaces the whole rule sequence of one relay channel.
type RuleUpload struct {
	Channel uint8 // 1..4, validated by the receiver
	Count   uint8 // clamped to MaxRules on decode
	Rules   [MaxRules]RuleRecord
	Millis  uint32
}

// Active returns the first Count rules.
func (p *RuleUpload) Active() []RuleRecord {
	n := int(p.Count)
	if n > MaxRules {
		n = MaxRules
	}
	out := make([]RuleRecord, n)
	copy(out, p.Rules[:n])
	return out
}

// RuleAck answers a RuleUpload.
type RuleAck struct {
	Channel uint8
	OK      bool
	Count   uint8
	Millis  uint32
}

// RuleExecuted reports a relay switched by a scheduled rule.
type RuleExecuted struct {
	Channel uint8
	On      bool
	Minute  uint16
	Weekday uint8
	Millis  uint32
}

// Error reports a rejected request or a storage failure.
type Error struct {
	Code    uint8
	Channel uint8 // 0 if none
	Extra   uint8
	Millis  uint32
}

func (*Hello) Tag() byte        { return TagHello }
func (*HelloAck) Tag() byte     { return TagHelloAck }
func (*RelayCommand) Tag() byte { return TagRelayCommand }
func (*PowerState) Tag() byte   { return TagPowerState }
func (*TimeSync) Tag() byte     { return TagTimeSync }
func (*RuleUpload) Tag() byte   { return TagRuleUpload }
func (*RuleAck) Tag() byte      { return TagRuleAck }
func (*RuleExecuted) Tag() byte { return TagRuleExecuted }
func (*Error) Tag() byte        { return TagError }
