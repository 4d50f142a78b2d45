package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestRecordSizes(t *testing.T) {
	tests := []struct {
		name string
		p    Packet
		want int
	}{
		{"hello", &Hello{Channel: 1}, 6},
		{"hello ack", &HelloAck{}, 7},
		{"relay command", &RelayCommand{}, 8},
		{"power state", &PowerState{}, 8},
		{"time sync", &TimeSync{}, 9},
		{"rule upload", &RuleUpload{}, 47},
		{"rule ack", &RuleAck{}, 8},
		{"rule executed", &RuleExecuted{}, 10},
		{"error", &Error{}, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := Encode(tt.p)
			if len(data) != tt.want {
				t.Errorf("len = %d, want %d", len(data), tt.want)
			}
			if data[0] != tt.p.Tag() {
				t.Errorf("tag byte = %d, want %d", data[0], tt.p.Tag())
			}
			if RecordSize(tt.p.Tag()) != tt.want {
				t.Errorf("RecordSize(%d) = %d, want %d", tt.p.Tag(), RecordSize(tt.p.Tag()), tt.want)
			}
		})
	}
}

func TestEncodeTimeSyncLayout(t *testing.T) {
	data := Encode(&TimeSync{Minute: 0x01A3, Weekday: 2, Valid: true, Millis: 0x04030201})
	want := []byte{TagTimeSync, 0xA3, 0x01, 2, 1, 0x01, 0x02, 0x03, 0x04}
	if !bytes.Equal(data, want) {
		t.Errorf("got % x, want % x", data, want)
	}
}

func TestDecodeHello(t *testing.T) {
	p, err := Decode([]byte{TagHello, 7, 0x10, 0, 0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h, ok := p.(*Hello)
	if !ok {
		t.Fatalf("got %T, want *Hello", p)
	}
	if h.Channel != 7 {
		t.Errorf("Channel = %d, want 7", h.Channel)
	}
	if h.Millis != 16 {
		t.Errorf("Millis = %d, want 16", h.Millis)
	}
}

func TestDecodeHelloChannelBounds(t *testing.T) {
	for _, ch := range []byte{0, 14, 255} {
		_, err := Decode([]byte{TagHello, ch, 0, 0, 0, 0})
		if !errors.Is(err, ErrField) {
			t.Errorf("channel %d: err = %v, want ErrField", ch, err)
		}
	}
}

func TestDecodeFailsClosed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrLength},
		{"unknown tag", []byte{99, 0, 0, 0, 0, 0}, ErrUnknownTag},
		{"hello too short", []byte{TagHello, 1, 0, 0, 0}, ErrLength},
		{"hello too long", []byte{TagHello, 1, 0, 0, 0, 0, 0}, ErrLength},
		// A valid Hello length carrying a RelayCommand tag is not coerced.
		{"command tag with hello length", []byte{TagRelayCommand, 1, 0, 0, 0, 0}, ErrLength},
		{"time sync with command length", []byte{TagTimeSync, 0, 0, 0, 0, 0, 0, 0}, ErrLength},
		{"rule upload short", append([]byte{TagRuleUpload}, make([]byte, 45)...), ErrLength},
		{"zero tag", make([]byte, 8), ErrUnknownTag},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Decode(tt.data)
			if p != nil {
				t.Errorf("expected no packet, got %T", p)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeRelayCommandMasksLowNibble(t *testing.T) {
	p, err := Decode(Encode(&RelayCommand{Mask: 0xF3, Value: 0xA1, ApplyNow: 1}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := p.(*RelayCommand)
	if c.Mask != 0x03 {
		t.Errorf("Mask = %#x, want 0x03", c.Mask)
	}
	if c.Value != 0x01 {
		t.Errorf("Value = %#x, want 0x01", c.Value)
	}
}

func TestDecodeRuleUpload(t *testing.T) {
	up := &RuleUpload{Channel: 3, Count: 2, Millis: 99}
	up.Rules[0] = RuleRecord{Minute: 420, On: 1, Days: 0x7F}
	up.Rules[1] = RuleRecord{Minute: 1320, On: 0, Days: 0x1F}

	p, err := Decode(Encode(up))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := p.(*RuleUpload)
	if got.Channel != 3 || got.Count != 2 || got.Millis != 99 {
		t.Errorf("header = (%d, %d, %d), want (3, 2, 99)", got.Channel, got.Count, got.Millis)
	}
	active := got.Active()
	if len(active) != 2 {
		t.Fatalf("Active() len = %d, want 2", len(active))
	}
	if active[0] != up.Rules[0] || active[1] != up.Rules[1] {
		t.Errorf("rules = %+v, want %+v", active, up.Rules[:2])
	}
}

func TestDecodeRuleUploadClampsCount(t *testing.T) {
	p, err := Decode(Encode(&RuleUpload{Channel: 1, Count: 11}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c := p.(*RuleUpload).Count; c != MaxRules {
		t.Errorf("Count = %d, want %d", c, MaxRules)
	}
}

func TestDecodeRuleUploadKeepsBadChannel(t *testing.T) {
	for _, ch := range []byte{0, 5} {
		p, err := Decode(Encode(&RuleUpload{Channel: ch, Count: 1}))
		if err != nil {
			t.Fatalf("channel %d: unexpected error: %v", ch, err)
		}
		if got := p.(*RuleUpload).Channel; got != ch {
			t.Errorf("Channel = %d, want %d", got, ch)
		}
	}
}

func TestDecodeRuleUploadRawMinute(t *testing.T) {
	up := &RuleUpload{Channel: 1, Count: 1}
	up.Rules[0] = RuleRecord{Minute: 0x8000 | 10, On: 1, Days: 1}

	p, err := Decode(Encode(up))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m := p.(*RuleUpload).Rules[0].Minute; m != 0x800A {
		t.Errorf("Minute = %#x, want 0x800a", m)
	}
}

func TestNodeReportsDecode(t *testing.T) {
	tests := []Packet{
		&HelloAck{Channel: 7, OK: true, Millis: 1},
		&PowerState{RelayMask: 0x05, TimeValid: true, ResetCause: 3, Millis: 2},
		&RuleAck{Channel: 2, OK: false, Count: 10, Millis: 3},
		&RuleExecuted{Channel: 1, On: true, Minute: 420, Weekday: 2, Millis: 4},
		&Error{Code: ErrCodeBadChannel, Channel: 0, Extra: 5, Millis: 5},
	}

	for _, want := range tests {
		got, err := Decode(Encode(want))
		if err != nil {
			t.Fatalf("%T: unexpected error: %v", want, err)
		}
		if !bytes.Equal(Encode(got), Encode(want)) {
			t.Errorf("%T: re-encoded bytes differ", want)
		}
	}
}

func TestEncodeUnknown(t *testing.T) {
	if data := Encode(nil); data != nil {
		t.Errorf("expected nil, got % x", data)
	}
}
