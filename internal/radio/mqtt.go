package radio

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// DefaultTopicPrefix is the root of every link topic.
const DefaultTopicPrefix = "powernode/link"

// pendingCapacity bounds the frames kept while the broker is unreachable.
const pendingCapacity = 32

// MQTTConfig configures an MQTTRadio.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	Self        Addr
}

// MQTTRadio carries link frames over an MQTT broker. Each radio channel is a
// topic tree: broadcasts go to <prefix>/ch<N>/all, unicasts to
// <prefix>/ch<N>/<addr>. Every frame is the sender address followed by the
// record bytes. Retuning resubscribes; frames sent on other channels are
// never seen.
type MQTTRadio struct {
	client paho.Client
	self   Addr
	prefix string

	mu      sync.Mutex
	channel int
	peers   map[Addr]int
	recv    func(from Addr, data []byte)
	pending *outbox

	// replaying is set while onConnect drains pending. Sends queue behind
	// the replay so frames reach the broker in the order they were sent.
	replaying bool
}

// NewMQTTRadio connects to the broker. The radio starts untuned; call
// SetChannel before expecting traffic.
func NewMQTTRadio(cfg MQTTConfig) (*MQTTRadio, error) {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "power-node-" + cfg.Self.Hex()
	}

	r := &MQTTRadio{
		self:    cfg.Self,
		prefix:  cfg.TopicPrefix,
		peers:   make(map[Addr]int),
		pending: newOutbox(pendingCapacity),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(SystemTopic(r.prefix, r.self), string(will), 1, true).
		SetOnConnectHandler(r.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("radio: connection lost: %v", err)
		})

	r.client = paho.NewClient(opts)
	token := r.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return r, nil
}

// onConnect restores subscriptions and flushes frames queued while offline.
func (r *MQTTRadio) onConnect(c paho.Client) {
	r.mu.Lock()
	ch := r.channel
	r.replaying = true
	r.mu.Unlock()

	if ch != 0 {
		r.subscribe(ch)
	}
	for {
		r.mu.Lock()
		frames, dropped := r.pending.flush()
		if len(frames) == 0 {
			r.replaying = false
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()

		log.Printf("radio: reconnected, replaying %d frames (%d lost)", len(frames), dropped)
		for _, f := range frames {
			c.Publish(f.topic, 0, false, f.payload)
		}
	}
}

func (r *MQTTRadio) subscribe(ch int) {
	handler := func(_ paho.Client, m paho.Message) {
		from, data, ok := decodeFrame(m.Payload())
		if !ok || from == r.self {
			return
		}
		r.mu.Lock()
		fn := r.recv
		r.mu.Unlock()
		if fn != nil {
			fn(from, data)
		}
	}
	filters := map[string]byte{
		broadcastTopic(r.prefix, ch):       0,
		unicastTopic(r.prefix, ch, r.self): 0,
	}
	token := r.client.SubscribeMultiple(filters, handler)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("radio: subscribe ch%d: %v", ch, token.Error())
	}
}

// SetChannel moves the subscriptions to channel ch.
func (r *MQTTRadio) SetChannel(ch int) error {
	if !ValidChannel(ch) {
		return ErrChannel
	}

	r.mu.Lock()
	old := r.channel
	r.channel = ch
	r.mu.Unlock()

	if old == ch {
		return nil
	}
	if old != 0 && r.client.IsConnectionOpen() {
		token := r.client.Unsubscribe(broadcastTopic(r.prefix, old), unicastTopic(r.prefix, old, r.self))
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("radio: unsubscribe ch%d: %v", old, token.Error())
		}
	}
	if r.client.IsConnectionOpen() {
		r.subscribe(ch)
	}
	return nil
}

// SendUnicast publishes data to a registered peer without waiting for the
// broker. While disconnected or replaying, frames are queued and replayed on
// reconnect.
func (r *MQTTRadio) SendUnicast(to Addr, data []byte) error {
	r.mu.Lock()
	ch, ok := r.peers[to]
	if !ok {
		r.mu.Unlock()
		return ErrNoPeer
	}
	topic := unicastTopic(r.prefix, ch, to)
	payload := encodeFrame(r.self, data)

	if r.replaying || !r.client.IsConnectionOpen() {
		r.pending.add(queuedFrame{topic: topic, payload: payload})
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	r.client.Publish(topic, 0, false, payload)
	return nil
}

// OnReceive installs the receive callback. It runs on the MQTT client's
// goroutine.
func (r *MQTTRadio) OnReceive(fn func(from Addr, data []byte)) {
	r.mu.Lock()
	r.recv = fn
	r.mu.Unlock()
}

// RegisterPeer allows unicast to addr on channel ch.
func (r *MQTTRadio) RegisterPeer(addr Addr, ch int) error {
	if !ValidChannel(ch) {
		return ErrChannel
	}
	r.mu.Lock()
	r.peers[addr] = ch
	r.mu.Unlock()
	return nil
}

// RemovePeer forgets addr.
func (r *MQTTRadio) RemovePeer(addr Addr) error {
	r.mu.Lock()
	delete(r.peers, addr)
	r.mu.Unlock()
	return nil
}

// IsConnected reports whether the broker connection is up.
func (r *MQTTRadio) IsConnected() bool {
	return r.client.IsConnectionOpen()
}

// PublishSystem publishes a lifecycle event on the node's system topic.
// Retained events (startup, shutdown) wait for the broker; others are
// fire-and-forget.
func (r *MQTTRadio) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	token := r.client.Publish(SystemTopic(r.prefix, r.self), 1, event.Retained, payload)
	if !event.Retained {
		return nil
	}
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (r *MQTTRadio) Close() error {
	r.client.Disconnect(1000) // 1 second timeout
	return nil
}
