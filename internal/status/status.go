// Package status keeps the latest view of the node for the status page and
// the MQTT system events. The run loop writes it; HTTP handlers read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/power-node/internal/node"
)

// NetworkInfo is the host network state reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config is the daemon configuration shown on the status page.
type Config struct {
	Address      string // this node's link address
	LoopMs       int64
	HeartbeatMs  int64
	ScanDwellMs  int64
	ScanBudgetMs int64
	Broker       string
	TopicPrefix  string
	HTTPAddr     string
	StateFile    string
	WSBroker     string // live UI broker URL, empty when disabled
	SystemTopic  string
}

// Snapshot is a copy of the tracked state, taken at Now.
type Snapshot struct {
	Node     node.Report
	Reported bool // false until the first Update
	BrokerUp bool
	Network  *NetworkInfo
	Config   Config
	Started  time.Time
	Now      time.Time
}

// Tracker is written by the run loop only.
type Tracker struct {
	now func() time.Time

	mu    sync.RWMutex
	state Snapshot
}

// NewTracker starts tracking at now(). A nil now uses time.Now.
func NewTracker(cfg Config, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now, state: Snapshot{Config: cfg, Started: now()}}
}

// Update records the node report and whether the broker is reachable.
func (t *Tracker) Update(r node.Report, brokerUp bool) {
	t.mu.Lock()
	t.state.Node = r
	t.state.Reported = true
	t.state.BrokerUp = brokerUp
	t.mu.Unlock()
}

// SetNetwork replaces the host network info. nil keeps what was there.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	if info == nil {
		return
	}
	t.mu.Lock()
	t.state.Network = info
	t.mu.Unlock()
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.state
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
