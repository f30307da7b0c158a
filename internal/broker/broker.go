// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package broker owns the single MQTT connection shared by every
// publisher and subscriber in the process.
package broker

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrNotConnected is returned by Publish while the connection is down.
var ErrNotConnected = errors.New("broker: not connected")

// State is the connection state as seen by health reporting.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "error"
	}
	return "unknown"
}

// Options configures the connection.
type Options struct {
	Broker            string // tcp://host:1883, ws://host:9001/mqtt, ...
	ClientID          string
	Username          string
	Password          string
	// ReconnectInterval spaces connect attempts until the first success.
	// After a drop paho backs off from 1 s, doubling up to this interval.
	ReconnectInterval time.Duration
	PublishTimeout    time.Duration
	QoS               byte
}

// Handler receives every message matching a subscribed filter.
type Handler func(topic string, payload []byte)

// client is the subset of mqtt.Client the manager drives.
type client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

type subscription struct {
	id      int
	handler Handler
}

type listener struct {
	id int
	fn func(State, error)
}

// Manager is built once at startup and passed to every consumer. Each
// consumer adds and removes its own filters and handlers.
type Manager struct {
	opts   Options
	client client

	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	state     State
	lastErr   error
	subs      map[string][]subscription
	listeners []listener
	nextID    int
}

// New creates a manager for a paho client. Nothing is dialed until
// Connect.
func New(opts Options) *Manager {
	return newManager(opts, func(o *mqtt.ClientOptions) client {
		return mqtt.NewClient(o)
	})
}

func newManager(opts Options, dial func(*mqtt.ClientOptions) client) *Manager {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 3 * time.Second
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	if opts.QoS > 2 {
		opts.QoS = 1
	}
	m := &Manager{opts: opts, subs: map[string][]subscription{}, done: make(chan struct{})}

	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(opts.ReconnectInterval).
		SetOrderMatters(false).
		SetOnConnectHandler(func(mqtt.Client) { m.onConnect() }).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) { m.onConnectionLost(err) }).
		SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) { m.setState(Connecting, nil) })
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	m.client = dial(co)
	return m
}

// Connect starts connecting in the background and retries every
// ReconnectInterval until it succeeds or Close is called. A failed
// attempt, such as a refused CONNACK, reports Failed with the broker's
// error until a later attempt connects. Progress is reported through
// State and OnStateChange.
func (m *Manager) Connect() {
	m.setState(Connecting, nil)
	log.Printf("broker: connecting to %s as %s", m.opts.Broker, m.opts.ClientID)
	go m.connectLoop()
}

func (m *Manager) connectLoop() {
	for {
		token := m.client.Connect()
		select {
		case <-token.Done():
		case <-m.done:
			return
		}
		err := token.Error()
		if err == nil {
			return
		}
		select {
		case <-m.done:
			return
		default:
		}
		log.Printf("broker: connect to %s failed, retrying in %s: %v", m.opts.Broker, m.opts.ReconnectInterval, err)
		m.connectFailed(err)

		select {
		case <-m.done:
			return
		case <-time.After(m.opts.ReconnectInterval):
		}
	}
}

// Close disconnects and stops reconnecting.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.done) })
	m.client.Disconnect(250)
	m.setState(Disconnected, nil)
	log.Println("broker: disconnected")
}

// State returns the current connection state and the last error.
func (m *Manager) State() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.lastErr
}

// OnStateChange registers fn for state transitions. The returned func
// removes it.
func (m *Manager) OnStateChange(fn func(State, error)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, listener{id: id, fn: fn})
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, l := range m.listeners {
			if l.id == id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// Publish sends payload and waits for the broker to take it. An empty
// retained payload clears the topic.
func (m *Manager) Publish(topic string, payload []byte, retained bool) error {
	if st, _ := m.State(); st != Connected {
		return ErrNotConnected
	}
	token := m.client.Publish(topic, m.opts.QoS, retained, payload)
	if !token.WaitTimeout(m.opts.PublishTimeout) {
		return fmt.Errorf("publish %s: timed out after %s", topic, m.opts.PublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe adds h for filter. Filters survive reconnects. The returned
// func removes h, and the broker subscription once no handler is left.
func (m *Manager) Subscribe(filter string, h Handler) (func(), error) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	first := len(m.subs[filter]) == 0
	m.subs[filter] = append(m.subs[filter], subscription{id: id, handler: h})
	connected := m.state == Connected
	m.mu.Unlock()

	if first && connected {
		if err := m.subscribe(filter); err != nil {
			m.remove(filter, id)
			return nil, err
		}
	}
	return func() {
		if m.remove(filter, id) {
			token := m.client.Unsubscribe(filter)
			if token.WaitTimeout(m.opts.PublishTimeout) && token.Error() != nil {
				log.Printf("broker: unsubscribe %s: %v", filter, token.Error())
			}
		}
	}, nil
}

// remove drops a handler and reports whether filter has none left.
func (m *Manager) remove(filter string, id int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[filter]
	for i, s := range subs {
		if s.id == id {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(m.subs, filter)
		return true
	}
	m.subs[filter] = subs
	return false
}

func (m *Manager) subscribe(filter string) error {
	token := m.client.Subscribe(filter, m.opts.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		m.dispatch(filter, msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(m.opts.PublishTimeout) {
		return fmt.Errorf("subscribe %s: timed out", filter)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	log.Printf("broker: subscribed to %s", filter)
	return nil
}

func (m *Manager) dispatch(filter, topic string, payload []byte) {
	m.mu.Lock()
	handlers := make([]Handler, 0, len(m.subs[filter]))
	for _, s := range m.subs[filter] {
		handlers = append(handlers, s.handler)
	}
	m.mu.Unlock()
	for _, h := range handlers {
		h(topic, payload)
	}
}

func (m *Manager) onConnect() {
	log.Printf("broker: connected to %s", m.opts.Broker)
	m.setState(Connected, nil)

	m.mu.Lock()
	filters := make([]string, 0, len(m.subs))
	for f := range m.subs {
		filters = append(filters, f)
	}
	m.mu.Unlock()

	// clean session: every filter is re-established
	for _, f := range filters {
		if err := m.subscribe(f); err != nil {
			log.Printf("broker: resubscribe failed: %v", err)
		}
	}
}

func (m *Manager) onConnectionLost(err error) {
	log.Printf("broker: connection lost: %v", err)
	m.setState(Connecting, err)
}

func (m *Manager) setState(s State, err error) {
	m.mu.Lock()
	if m.state == s && err == nil {
		m.mu.Unlock()
		return
	}
	m.notifyLocked(s, err)
}

// connectFailed reports Failed unless Close already ran.
func (m *Manager) connectFailed(err error) {
	m.mu.Lock()
	select {
	case <-m.done:
		m.mu.Unlock()
		return
	default:
	}
	m.notifyLocked(Failed, err)
}

// notifyLocked records the state and calls listeners after releasing mu.
func (m *Manager) notifyLocked(s State, err error) {
	m.state = s
	m.lastErr = err
	fns := make([]func(State, error), 0, len(m.listeners))
	for _, l := range m.listeners {
		fns = append(fns, l.fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(s, err)
	}
}
