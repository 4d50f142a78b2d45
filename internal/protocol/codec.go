package protocol

import "encoding/binary"

var le = binary.LittleEndian

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Encode serializes p into a freshly allocated buffer of its exact record size.
// Unknown packet types encode to nil.
func Encode(p Packet) []byte {
	switch v := p.(type) {
	case *Hello:
		data := make([]byte, SizeHello)
		data[0] = TagHello
		data[1] = v.Channel
		le.PutUint32(data[2:6], v.Millis)
		return data

	case *HelloAck:
		data := make([]byte, SizeHelloAck)
		data[0] = TagHelloAck
		data[1] = v.Channel
		data[2] = boolByte(v.OK)
		le.PutUint32(data[3:7], v.Millis)
		return data

	case *RelayCommand:
		data := make([]byte, SizeRelayCommand)
		data[0] = TagRelayCommand
		data[1] = v.Mask
		data[2] = v.Value
		data[3] = v.ApplyNow
		le.PutUint32(data[4:8], v.Millis)
		return data

	case *PowerState:
		data := make([]byte, SizePowerState)
		data[0] = TagPowerState
		data[1] = v.RelayMask
		data[2] = boolByte(v.TimeValid)
		data[3] = v.ResetCause
		le.PutUint32(data[4:8], v.Millis)
		return data

	case *TimeSync:
		data := make([]byte, SizeTimeSync)
		data[0] = TagTimeSync
		le.PutUint16(data[1:3], v.Minute)
		data[3] = v.Weekday
		data[4] = boolByte(v.Valid)
		le.PutUint32(data[5:9], v.Millis)
		return data

	case *RuleUpload:
		data := make([]byte, SizeRuleUpload)
		data[0] = TagRuleUpload
		data[1] = v.Channel
		data[2] = v.Count
		PutRules(data[3:3+MaxRules*RuleSize], v.Rules[:])
		le.PutUint32(data[SizeRuleUpload-4:], v.Millis)
		return data

	case *RuleAck:
		data := make([]byte, SizeRuleAck)
		data[0] = TagRuleAck
		data[1] = v.Channel
		data[2] = boolByte(v.OK)
		data[3] = v.Count
		le.PutUint32(data[4:8], v.Millis)
		return data

	case *RuleExecuted:
		data := make([]byte, SizeRuleExecuted)
		data[0] = TagRuleExecuted
		data[1] = v.Channel
		data[2] = boolByte(v.On)
		le.PutUint16(data[3:5], v.Minute)
		data[5] = v.Weekday
		le.PutUint32(data[6:10], v.Millis)
		return data

	case *Error:
		data := make([]byte, SizeError)
		data[0] = TagError
		data[1] = v.Code
		data[2] = v.Channel
		data[3] = v.Extra
		le.PutUint32(data[4:8], v.Millis)
		return data
	}
	return nil
}

// Decode parses a record. It fails closed: an unknown tag, a length that does
// not exactly match the tag's record size, or an out-of-bounds field yields an
// error and no packet.
//
// A RuleUpload count above MaxRules is clamped rather than rejected, and its
// relay channel is left for the receiver to validate.
func Decode(data []byte) (Packet, error) {
	if len(data) == 0 {
		return nil, ErrLength
	}
	size, ok := recordSize[data[0]]
	if !ok {
		return nil, ErrUnknownTag
	}
	if len(data) != size {
		return nil, ErrLength
	}

	switch data[0] {
	case TagHello:
		ch := data[1]
		if ch < MinChannel || ch > MaxChannel {
			return nil, ErrField
		}
		return &Hello{Channel: ch, Millis: le.Uint32(data[2:6])}, nil

	case TagHelloAck:
		return &HelloAck{
			Channel: data[1],
			OK:      data[2] == 1,
			Millis:  le.Uint32(data[3:7]),
		}, nil

	case TagRelayCommand:
		return &RelayCommand{
			Mask:     data[1] & RelayNibble,
			Value:    data[2] & RelayNibble,
			ApplyNow: data[3],
			Millis:   le.Uint32(data[4:8]),
		}, nil

	case TagPowerState:
		return &PowerState{
			RelayMask:  data[1] & RelayNibble,
			TimeValid:  data[2] == 1,
			ResetCause: data[3],
			Millis:     le.Uint32(data[4:8]),
		}, nil

	case TagTimeSync:
		return &TimeSync{
			Minute:  le.Uint16(data[1:3]),
			Weekday: data[3],
			Valid:   data[4] == 1,
			Millis:  le.Uint32(data[5:9]),
		}, nil

	case TagRuleUpload:
		p := &RuleUpload{
			Channel: data[1],
			Count:   data[2],
			Millis:  le.Uint32(data[SizeRuleUpload-4:]),
		}
		if p.Count > MaxRules {
			p.Count = MaxRules
		}
		GetRules(p.Rules[:], data[3:3+MaxRules*RuleSize])
		return p, nil

	case TagRuleAck:
		return &RuleAck{
			Channel: data[1],
			OK:      data[2] == 1,
			Count:   data[3],
			Millis:  le.Uint32(data[4:8]),
		}, nil

	case TagRuleExecuted:
		return &RuleExecuted{
			Channel: data[1],
			On:      data[2] == 1,
			Minute:  le.Uint16(data[3:5]),
			Weekday: data[5],
			Millis:  le.Uint32(data[6:10]),
		}, nil

	case TagError:
		return &Error{
			Code:    data[1],
			Channel: data[2],
			Extra:   data[3],
			Millis:  le.Uint32(data[4:8]),
		}, nil
	}
	return nil, ErrUnknownTag
}

// PutRules writes rules into dst in wire layout. dst must hold
// len(rules)*RuleSize bytes.
func PutRules(dst []byte, rules []RuleRecord) {
	for i, r := range rules {
		off := i * RuleSize
		le.PutUint16(dst[off:off+2], r.Minute)
		dst[off+2] = r.On
		dst[off+3] = r.Days
	}
}

// GetRules fills rules from src in wire layout. src must hold
// len(rules)*RuleSize bytes.
func GetRules(rules []RuleRecord, src []byte) {
	for i := range rules {
		off := i * RuleSize
		rules[i] = RuleRecord{
			Minute: le.Uint16(src[off : off+2]),
			On:     src[off+2],
			Days:   src[off+3],
		}
	}
}
