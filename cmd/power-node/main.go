// Command power-node drives four relays from Master commands and stored
// schedules, talking to the Master over a channelized link carried on MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/power-node/internal/config"
	"github.com/sweeney/power-node/internal/node"
	"github.com/sweeney/power-node/internal/radio"
	"github.com/sweeney/power-node/internal/relay"
	"github.com/sweeney/power-node/internal/schedule"
	"github.com/sweeney/power-node/internal/status"
	"github.com/sweeney/power-node/internal/store"
	"github.com/sweeney/power-node/internal/timebase"
	"github.com/sweeney/power-node/internal/web"
)

// KeySelf stores a generated node address across restarts.
const KeySelf = "selfMac"

// inboxCapacity bounds frames waiting for the loop.
const inboxCapacity = 32

func main() {
	cfgPath := flag.String("config", "", "YAML config file (optional)")
	flag.String("broker", "", "MQTT broker address (overrides config)")
	flag.String("http", "", "HTTP status address (overrides config, \"off\" disables)")
	flag.String("state", "", "State file path (overrides config)")
	flag.String("ws-broker", "", `MQTT websocket URL for live UI (overrides config, "off" disables)`)
	printState := flag.Bool("print-state", false, "Print persisted state and exit")

	flag.Parse()

	cfg, err := loadConfig(*cfgPath, func(apply func(name, value string)) {
		flag.Visit(func(f *flag.Flag) { apply(f.Name, f.Value.String()) })
	})
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	if err := run(cfg, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// loadConfig reads the optional config file, applies explicitly set flags,
// validates and fills defaults.
func loadConfig(path string, visit func(apply func(name, value string))) (*config.Config, error) {
	cfg := &config.Config{}
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	visit(func(name, value string) {
		switch name {
		case "broker":
			cfg.MQTT.Broker = value
		case "http":
			if value == "off" {
				value = ""
			}
			cfg.HTTPAddr = value
		case "state":
			cfg.Node.StateFile = value
		case "ws-broker":
			cfg.WSBroker = value
		}
	})

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	config.Normalize(cfg)
	return cfg, nil
}

func run(cfg *config.Config, printState bool) error {
	st, err := store.OpenFile(cfg.Node.StateFile)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer st.Close()

	// Print state mode
	if printState {
		writeState(os.Stdout, node.ReadStored(st))
		return nil
	}

	self, err := resolveSelf(cfg.Node.Address, st)
	if err != nil {
		return err
	}

	strategy, err := schedule.ParseStrategy(cfg.Schedule.Strategy)
	if err != nil {
		return err
	}

	// Initialize relay outputs
	relays, err := relay.NewGPIOActuator(cfg.Relays.Chip, cfg.Pins(), cfg.Relays.ActiveLow)
	if err != nil {
		return fmt.Errorf("init relays: %w", err)
	}
	defer relays.Close()

	// Initialize link
	link, err := radio.NewMQTTRadio(radio.MQTTConfig{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		Self:        self,
	})
	if err != nil {
		return fmt.Errorf("init radio: %w", err)
	}
	defer link.Close()

	n := node.New(node.Config{
		Link:               cfg.LinkSettings(),
		TickStrategy:       strategy,
		NotifyRuleExecuted: *cfg.Schedule.NotifyRuleExecuted,
	}, node.Deps{
		Radio:  link,
		Relays: relays,
		Store:  st,
		Mono:   timebase.NewSystemMonotonic(),
	})
	n.Restore()

	inbox := make(chan radio.Inbound, inboxCapacity)
	link.OnReceive(n.Receiver(inbox))

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(status.Config{
		Address:      self.String(),
		LoopMs:       int64(cfg.LoopMs),
		HeartbeatMs:  cfg.Heartbeat().Milliseconds(),
		ScanDwellMs:  int64(cfg.Link.DwellMs),
		ScanBudgetMs: int64(cfg.Link.BudgetMs),
		Broker:       cfg.MQTT.Broker,
		TopicPrefix:  cfg.MQTT.TopicPrefix,
		HTTPAddr:     cfg.HTTPAddr,
		StateFile:    cfg.Node.StateFile,
		WSBroker:     resolveWSBroker(cfg.WSBroker, cfg.MQTT.Broker),
		SystemTopic:  radio.SystemTopic(cfg.MQTT.TopicPrefix, self),
	}, time.Now)
	tracker.Update(n.Report(), link.IsConnected())
	tracker.SetNetwork(readNetworkInfo())

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	// Bring the link up; this may scan for up to the scan budget.
	n.Start(inbox)
	tracker.Update(n.Report(), link.IsConnected())

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := radio.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := link.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	log.Printf("started: addr=%s link=%s ch=%d broker=%s strategy=%s loop=%v heartbeat=%v",
		self, n.LinkState(), n.Report().Channel, cfg.MQTT.Broker, strategy.Name(), cfg.Loop(), cfg.Heartbeat())

	ticker := time.NewTicker(cfg.Loop())
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(n, inbox, link, link, tracker, cfg.Heartbeat(), time.Now, ticker.C, sigCh)
}

// runLoop is the node's single cooperative loop: it alone calls into the
// node, handling queued frames and polling the minute tick.
func runLoop(n *node.Node, inbox <-chan radio.Inbound, publisher radio.SystemPublisher, linkStatus radio.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	lastHeartbeat := now()

	refresh := func() {
		if tracker == nil {
			return
		}
		tracker.Update(n.Report(), linkStatus != nil && linkStatus.IsConnected())
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			if err := n.Shutdown(); err != nil {
				log.Printf("failed to mark clean stop: %v", err)
			}
			event := radio.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				refresh()
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case in := <-inbox:
			n.Handle(in)
			refresh()

		case <-tick:
			t := now()
			n.Tick()

			if heartbeat > 0 && t.Sub(lastHeartbeat) >= heartbeat {
				lastHeartbeat = t
				r := n.Report()
				log.Printf("heartbeat: link=%s ch=%d relays=[%s] received=%d sent=%d fired=%d",
					r.Link, r.Channel, r.Mask, r.Counts.Received, r.Counts.Sent, r.Counts.Fired)

				hbEvent := radio.SystemEvent{
					Timestamp: t,
					Event:     "HEARTBEAT",
				}
				if tracker != nil {
					tracker.SetNetwork(readNetworkInfo())
					refresh()
					hbEvent.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "HEARTBEAT", "")
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}

			refresh()
		}
	}
}

// resolveWSBroker converts the ws_broker setting into a concrete URL.
// Empty derives ws://host:9001 from the TCP broker address; "off" disables.
func resolveWSBroker(ws, broker string) string {
	if ws == "off" {
		return ""
	}
	if ws != "" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil || u.Hostname() == "" {
		log.Printf("ws-broker: cannot derive from broker %q", broker)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}

// resolveSelf returns the configured node address, or the one generated on
// a previous boot, or generates and stores a new one.
func resolveSelf(configured string, st store.Store) (radio.Addr, error) {
	if configured != "" {
		return radio.ParseAddr(configured)
	}

	var a radio.Addr
	if n := st.GetBytes(KeySelf, a[:]); n == radio.AddrLen && !a.IsZero() {
		return a, nil
	}

	a = radio.NewAddr()
	if _, err := st.PutBytes(KeySelf, a[:]); err != nil {
		return a, fmt.Errorf("store node address: %w", err)
	}
	log.Printf("generated node address %s", a)
	return a, nil
}

// writeState prints persisted node state for -print-state.
func writeState(w io.Writer, s node.Stored) {
	fmt.Fprintf(w, "Relays: %s\n", s.Mask)
	if s.Channel == 0 {
		fmt.Fprintf(w, "Channel: not locked\n")
	} else {
		fmt.Fprintf(w, "Channel: %d\n", s.Channel)
	}
	if s.Master.IsZero() {
		fmt.Fprintf(w, "Master: unknown\n")
	} else {
		fmt.Fprintf(w, "Master: %s\n", s.Master)
	}
	fmt.Fprintf(w, "Rules: ch1=%d ch2=%d ch3=%d ch4=%d\n",
		s.RuleCounts[0], s.RuleCounts[1], s.RuleCounts[2], s.RuleCounts[3])
	fmt.Fprintf(w, "Clean stop: %v\n", s.CleanStop)
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
