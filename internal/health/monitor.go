// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package health

import (
	"context"
	"log"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/relabs-tech/signalboat/internal/broker"
	"github.com/relabs-tech/signalboat/internal/gps"
	"github.com/relabs-tech/signalboat/internal/roster"
)

// BrokerState is satisfied by *broker.Manager.
type BrokerState interface {
	State() (broker.State, error)
	OnStateChange(fn func(broker.State, error)) func()
}

// GPSStatus is satisfied by *gps.Acquirer.
type GPSStatus interface {
	Status() gps.Status
}

// RosterView is satisfied by *roster.Roster.
type RosterView interface {
	LastInboundAt() time.Time
	Admin() (roster.Record, bool)
}

// Monitor samples the live signals on a tick and on broker state
// changes, and reports status transitions.
type Monitor struct {
	broker     BrokerState
	gps        GPSStatus
	roster     RosterView
	watchAdmin bool // observers watch the signal boat's heartbeat
	th         Thresholds
	probe      func(ctx context.Context) bool
	interval   time.Duration

	mu       sync.Mutex
	online   bool
	current  Status
	onChange []func(Status)
}

// NewMonitor wires the signals. probe reports network reachability;
// watchAdmin enables the remote heartbeat check.
func NewMonitor(b BrokerState, g GPSStatus, r RosterView, watchAdmin bool, th Thresholds, probe func(context.Context) bool) *Monitor {
	return &Monitor{
		broker:     b,
		gps:        g,
		roster:     r,
		watchAdmin: watchAdmin,
		th:         th,
		probe:      probe,
		interval:   2 * time.Second,
		online:     true,
	}
}

// OnChange registers fn for status transitions.
func (m *Monitor) OnChange(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// Snapshot gathers the current inputs.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	online := m.online
	m.mu.Unlock()

	st, err := m.broker.State()
	s := Snapshot{
		NetworkOnline: online,
		Broker:        st,
		BrokerErr:     err,
		LastInboundAt: m.roster.LastInboundAt(),
		GPS:           m.gps.Status(),
	}
	if m.watchAdmin {
		if admin, ok := m.roster.Admin(); ok {
			s.RemoteHeartbeatAt = admin.LastSeenAt
		}
	}
	return s
}

// Status evaluates the current snapshot.
func (m *Monitor) Status(now time.Time) Status {
	return Evaluate(m.Snapshot(), now, m.th)
}

// Current returns the last evaluated status.
func (m *Monitor) Current() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Run probes the network and re-evaluates until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	kick := make(chan struct{}, 1)
	remove := m.broker.OnStateChange(func(broker.State, error) {
		select {
		case kick <- struct{}{}:
		default:
		}
	})
	defer remove()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sampleNetwork(ctx)
	m.evaluate(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case <-kick:
			m.evaluate(time.Now())
		case <-ticker.C:
			m.sampleNetwork(ctx)
			m.evaluate(time.Now())
		}
	}
}

func (m *Monitor) sampleNetwork(ctx context.Context) {
	if m.probe == nil {
		return
	}
	online := m.probe(ctx)
	m.mu.Lock()
	m.online = online
	m.mu.Unlock()
}

func (m *Monitor) evaluate(now time.Time) {
	st := m.Status(now)
	m.mu.Lock()
	prev := m.current
	m.current = st
	fns := append([]func(Status){}, m.onChange...)
	m.mu.Unlock()

	if st.Code == prev.Code && st.Message == prev.Message {
		return
	}
	if st.Code != prev.Code {
		log.Printf("health: %s (%s)", st.Code, st.Message)
	}
	for _, fn := range fns {
		fn(st)
	}
}

// BrokerAddr turns a broker URL into a dialable host:port.
func BrokerAddr(brokerURL string) string {
	u, err := url.Parse(brokerURL)
	if err != nil || u.Host == "" {
		return brokerURL
	}
	if u.Port() != "" {
		return u.Host
	}
	port := "1883"
	switch u.Scheme {
	case "ssl", "tls", "mqtts", "tcps":
		port = "8883"
	case "ws":
		port = "80"
	case "wss":
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// TCPProbe reports the network online when addr accepts a TCP
// connection within timeout.
func TCPProbe(addr string, timeout time.Duration) func(context.Context) bool {
	return func(ctx context.Context) bool {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}
}
