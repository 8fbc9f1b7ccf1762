// Copyright (c) 2018 Cisco and/or its affiliates.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package websocket implements Jetstream transport adapter over websocket.
package websocket

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"

	goerrors "github.com/go-errors/errors"
	gorilla "github.com/gorilla/websocket"
	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"

	"github.com/ligato/jetstream/plugins/jetstream/api"
)

// AdapterName is the name of the websocket adapter.
const AdapterName = "WebsocketTransportAdapter"

const (
	defaultPingInterval     = 10 * time.Second
	defaultPingVariance     = 2 * time.Second
	defaultReconnectDelay   = 100 * time.Millisecond
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
)

// Config configures the adapter. Zero values are replaced with defaults.
type Config struct {
	URL     string
	Headers map[string]string

	// idle session is pinged every PingInterval +/- PingVariance/2
	PingInterval time.Duration
	PingVariance time.Duration

	// delay between connection attempts
	ReconnectDelay time.Duration

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// MaxConnectAttempts is the number of consecutive failed attempts after
	// which the adapter turns Fatal, zero retries forever.
	MaxConnectAttempts int
}

// Adapter is a websocket transport adapter. Messages are exchanged as JSON
// text frames. Once a session exists, sent messages are kept until the server
// acknowledges them in a ping and resent when the server asks for it.
type Adapter struct {
	cfg    Config
	log    logging.Logger
	dialer *gorilla.Dialer

	mu         sync.Mutex
	status     api.Status
	session    api.SessionInfo
	conn       *gorilla.Conn
	cancelConn context.CancelFunc
	nonAcked   []api.Message
	pingTimer  *time.Timer

	// events are queued under notifyMu and delivered in order by a single
	// drain goroutine, observers never run with notifyMu held
	notifyMu         sync.Mutex
	notified         api.Status
	events           []event
	draining         bool
	statusObservers  []func(api.Status)
	messageObservers []func(api.Message)
}

// event is a queued notification, a nil msg stands for a status change.
type event struct {
	msg api.Message
}

// NewAdapter returns a closed adapter for the server at cfg.URL.
func NewAdapter(cfg Config, log logging.Logger) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("websocket adapter needs server URL")
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PingVariance < 0 || cfg.PingVariance > cfg.PingInterval {
		cfg.PingVariance = defaultPingVariance
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	return &Adapter{
		cfg: cfg,
		log: log,
		dialer: &gorilla.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
	}, nil
}

// Name returns AdapterName.
func (a *Adapter) Name() string {
	return AdapterName
}

// URL returns the server URL.
func (a *Adapter) URL() string {
	return a.cfg.URL
}

// Status returns the connection status.
func (a *Adapter) Status() api.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// ObserveStatus registers callback for status changes.
func (a *Adapter) ObserveStatus(cb func(api.Status)) {
	a.notifyMu.Lock()
	a.statusObservers = append(a.statusObservers, cb)
	a.notifyMu.Unlock()
}

// ObserveMessage registers callback for received messages.
func (a *Adapter) ObserveMessage(cb func(api.Message)) {
	a.notifyMu.Lock()
	a.messageObservers = append(a.messageObservers, cb)
	a.notifyMu.Unlock()
}

// notifyStatus queues report of the current status. It is delivered only
// if it differs from the last reported one.
func (a *Adapter) notifyStatus() {
	a.post(event{})
}

func (a *Adapter) notifyMessage(msg api.Message) {
	a.post(event{msg: msg})
}

// post queues ev and starts the drain goroutine unless one is running.
// It never waits for observers.
func (a *Adapter) post(ev event) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.events = append(a.events, ev)
	if !a.draining {
		a.draining = true
		go a.drain()
	}
}

func (a *Adapter) drain() {
	a.notifyMu.Lock()
	for len(a.events) > 0 {
		ev := a.events[0]
		a.events[0] = event{}
		a.events = a.events[1:]

		if ev.msg != nil {
			observers := append([]func(api.Message){}, a.messageObservers...)
			a.notifyMu.Unlock()
			for _, cb := range observers {
				a.deliver(func() { cb(ev.msg) })
			}
			a.notifyMu.Lock()
			continue
		}

		status := a.Status()
		if status == a.notified {
			continue
		}
		a.notified = status
		observers := append([]func(api.Status){}, a.statusObservers...)
		a.notifyMu.Unlock()
		for _, cb := range observers {
			a.deliver(func() { cb(status) })
		}
		a.notifyMu.Lock()
	}
	a.events = nil
	a.draining = false
	a.notifyMu.Unlock()
}

func (a *Adapter) deliver(cb func()) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Errorf("Recovered from panic in observer: %v\n%s", r, goerrors.Wrap(r, 2).ErrorStack())
		}
	}()
	cb()
}

// QueuedEvents returns the number of notifications not yet delivered.
func (a *Adapter) QueuedEvents() int {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()
	return len(a.events)
}

// Connect starts connecting in the background.
func (a *Adapter) Connect() {
	a.mu.Lock()
	if a.status == api.Connecting || a.status == api.Connected || a.status == api.Fatal {
		a.mu.Unlock()
		return
	}
	a.startLocked()
	a.mu.Unlock()
	a.notifyStatus()
}

// startLocked starts a new connection run, a.mu must be held.
func (a *Adapter) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancelConn = cancel
	a.status = api.Connecting
	go a.run(ctx)
}

// stopLocked stops the current connection run, a.mu must be held.
func (a *Adapter) stopLocked() {
	if a.cancelConn != nil {
		a.cancelConn()
		a.cancelConn = nil
	}
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
	a.stopPingLocked()
}

// Disconnect closes the connection and forgets the session.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	if a.status == api.Closed {
		a.mu.Unlock()
		return
	}
	a.stopLocked()
	a.session = nil
	a.nonAcked = nil
	a.status = api.Closed
	a.mu.Unlock()
	a.notifyStatus()
}

// Reconnect drops the connection and connects again, the session is kept.
func (a *Adapter) Reconnect() {
	a.mu.Lock()
	if a.status != api.Connected {
		a.mu.Unlock()
		return
	}
	a.log.Info("Reconnecting")
	a.stopLocked()
	a.startLocked()
	a.mu.Unlock()
	a.notifyStatus()
}

// Send writes the message if connected. With a session established,
// indexed messages are kept for resend until acknowledged.
func (a *Adapter) Send(msg api.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session != nil && msg.GetIndex() != 0 {
		a.nonAcked = append(a.nonAcked, msg)
	}
	a.writeLocked(msg)
}

// SessionEstablished starts pinging and makes reconnects resume the session.
func (a *Adapter) SessionEstablished(session api.SessionInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.session = session
	a.startPingLocked()
}

func (a *Adapter) writeLocked(msg api.Message) {
	if a.status != api.Connected || a.conn == nil {
		return
	}
	data, err := api.Marshal(msg)
	if err != nil {
		a.log.Errorf("Failed to encode %s: %v", msg.GetType(), err)
		return
	}
	a.conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
	if err := a.conn.WriteMessage(gorilla.TextMessage, data); err != nil {
		// read loop notices the broken connection and reconnects
		a.log.Warnf("Failed to send %s: %v", msg.GetType(), err)
		a.conn.Close()
		return
	}
	a.log.Debugf("sent: %s", data)
}

func (a *Adapter) pingDelay() time.Duration {
	delay := a.cfg.PingInterval - a.cfg.PingVariance/2
	if a.cfg.PingVariance > 0 {
		delay += time.Duration(rand.Int63n(int64(a.cfg.PingVariance)))
	}
	return delay
}

func (a *Adapter) startPingLocked() {
	a.stopPingLocked()
	a.pingTimer = time.AfterFunc(a.pingDelay(), a.pingTimerFired)
}

func (a *Adapter) stopPingLocked() {
	if a.pingTimer != nil {
		a.pingTimer.Stop()
		a.pingTimer = nil
	}
}

func (a *Adapter) pingTimerFired() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session == nil || a.status != api.Connected {
		return
	}
	a.writeLocked(api.NewPing(a.session.ServerIndex(), false))
	a.startPingLocked()
}

// pingReceived drops acknowledged messages and resends the rest if asked.
func (a *Adapter) pingReceived(ping *api.Ping) {
	a.mu.Lock()
	defer a.mu.Unlock()

	kept := a.nonAcked[:0]
	for _, msg := range a.nonAcked {
		if msg.GetIndex() > ping.Ack {
			kept = append(kept, msg)
		}
	}
	a.nonAcked = kept
	if ping.ResendMissing {
		a.log.Debugf("Resending %d messages after %d", len(kept), ping.Ack)
		messagesResent.Add(float64(len(kept)))
		for _, msg := range kept {
			a.writeLocked(msg)
		}
	}
}

// NonAcked returns the number of sent messages not yet acknowledged.
func (a *Adapter) NonAcked() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.nonAcked)
}

// run dials until connected, then reads until the connection breaks,
// and starts over unless the run was cancelled.
func (a *Adapter) run(ctx context.Context) {
	failed := 0
	for {
		conn, err := a.dial(ctx)
		if ctx.Err() != nil {
			if conn != nil {
				conn.Close()
			}
			return
		}
		if err != nil {
			connectAttempts.WithLabelValues("failed").Inc()
			failed++
			if errors.Cause(err) == errFatal || (a.cfg.MaxConnectAttempts > 0 && failed >= a.cfg.MaxConnectAttempts) {
				a.log.Errorf("Giving up connecting to %s: %v", a.cfg.URL, err)
				a.fail(ctx)
				return
			}
			a.log.Debugf("Failed to connect to %s: %v", a.cfg.URL, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(a.cfg.ReconnectDelay):
				continue
			}
		}
		connectAttempts.WithLabelValues("connected").Inc()
		failed = 0

		if !a.connected(ctx, conn) {
			conn.Close()
			return
		}
		a.notifyStatus()

		a.readLoop(conn)

		if !a.disconnected(ctx, conn) {
			return
		}
		a.notifyStatus()
		select {
		case <-ctx.Done():
			return
		case <-time.After(a.cfg.ReconnectDelay):
		}
	}
}

var errFatal = errors.New("server refused connection")

func (a *Adapter) dial(ctx context.Context) (*gorilla.Conn, error) {
	header := http.Header{}
	for key, value := range a.cfg.Headers {
		header.Set(key, value)
	}
	a.mu.Lock()
	if a.session != nil {
		header.Set(api.SessionTokenHeader, a.session.Token())
	}
	a.mu.Unlock()

	conn, resp, err := a.dialer.DialContext(ctx, a.cfg.URL, header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, errors.Wrapf(errFatal, "handshake status %d", resp.StatusCode)
		}
		return nil, err
	}
	return conn, nil
}

// connected installs the connection unless the run was cancelled meanwhile.
func (a *Adapter) connected(ctx context.Context, conn *gorilla.Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ctx.Err() != nil {
		return false
	}
	a.conn = conn
	a.status = api.Connected
	a.log.Infof("Connected to %s", a.cfg.URL)
	if a.session != nil {
		a.writeLocked(api.NewPing(a.session.ServerIndex(), true))
		a.startPingLocked()
	}
	return true
}

// disconnected returns true if the connection dropped on its own and should
// be re-established.
func (a *Adapter) disconnected(ctx context.Context, conn *gorilla.Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ctx.Err() != nil {
		return false
	}
	if a.conn == conn {
		a.conn.Close()
		a.conn = nil
	}
	a.stopPingLocked()
	a.status = api.Connecting
	a.log.Warnf("Connection to %s lost", a.cfg.URL)
	return true
}

func (a *Adapter) fail(ctx context.Context) {
	a.mu.Lock()
	if ctx.Err() != nil {
		a.mu.Unlock()
		return
	}
	a.cancelConn = nil
	a.status = api.Fatal
	a.mu.Unlock()
	a.notifyStatus()
}

func (a *Adapter) readLoop(conn *gorilla.Conn) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Errorf("Recovered from panic while reading: %v\n%s", r, goerrors.Wrap(r, 2).ErrorStack())
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			a.log.Debugf("read error: %v", err)
			return
		}
		if msgType != gorilla.TextMessage {
			a.log.Debugf("received data (len=%d)", len(data))
			continue
		}
		a.log.Debugf("received: %s", data)

		msgs, err := api.Unmarshal(data)
		if err != nil {
			a.log.Warnf("Dropping message: %v", err)
		}
		for _, msg := range msgs {
			if ping, isPing := msg.(*api.Ping); isPing {
				a.pingReceived(ping)
			}
			a.notifyMessage(msg)
		}
	}
}
