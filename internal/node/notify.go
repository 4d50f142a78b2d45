package node

import (
	"log"

	"github.com/sweeney/power-node/internal/protocol"
)

// send unicasts p to the Master. Replies are fire-and-forget: without a known
// peer nothing is sent and send errors are only counted.
func (n *Node) send(p protocol.Packet) {
	peer, ok := n.link.Peer()
	if !ok {
		return
	}
	if err := n.radio.SendUnicast(peer, protocol.Encode(p)); err != nil {
		n.counts.SendErrors++
		log.Printf("node: send tag %d to %s: %v", p.Tag(), peer, err)
		return
	}
	n.counts.Sent++
}

func (n *Node) sendPowerState() {
	n.send(&protocol.PowerState{
		RelayMask:  uint8(n.mask),
		TimeValid:  n.clock.Valid(),
		ResetCause: n.resetCause,
		Millis:     n.mono.NowMillis(),
	})
}

func (n *Node) sendHelloAck(ch int, ok bool) {
	n.send(&protocol.HelloAck{Channel: uint8(ch), OK: ok, Millis: n.mono.NowMillis()})
}

func (n *Node) sendRuleAck(ch uint8, ok bool, count int) {
	n.send(&protocol.RuleAck{Channel: ch, OK: ok, Count: uint8(count), Millis: n.mono.NowMillis()})
}

func (n *Node) sendError(code, ch, extra uint8) {
	n.counts.Errors++
	n.send(&protocol.Error{Code: code, Channel: ch, Extra: extra, Millis: n.mono.NowMillis()})
}

func (n *Node) sendRuleExecuted(f fired) {
	n.send(&protocol.RuleExecuted{
		Channel: uint8(f.channel),
		On:      f.on,
		Minute:  f.at.Minute,
		Weekday: f.at.Weekday,
		Millis:  n.mono.NowMillis(),
	})
}
