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

package jetstream

import (
	"context"
	"sync"
	"time"

	"github.com/ligato/cn-infra/config"
	"github.com/ligato/cn-infra/infra"
	"github.com/ligato/cn-infra/logging"
	"github.com/ligato/cn-infra/logging/logrus"
	"github.com/pkg/errors"

	"github.com/ligato/jetstream/pkg/scope"
	"github.com/ligato/jetstream/plugins/jetstream/api"
	"github.com/ligato/jetstream/plugins/jetstream/snapshot"
	"github.com/ligato/jetstream/plugins/jetstream/websocket"
)

// Status of the client.
type Status int

const (
	// Offline means the transport is not connected.
	Offline Status = iota
	// Online means the transport is connected, the session may still be
	// pending.
	Online
)

// String returns the status name.
func (s Status) String() string {
	if s == Online {
		return "online"
	}
	return "offline"
}

// Client is a CN-infra plugin synchronizing local scopes with a Jetstream
// server. All protocol state is owned by a single event loop go routine,
// transport callbacks and public methods hop onto the loop.
type Client struct {
	Deps

	config *Config

	// management of go routines
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// event loop
	loop     chan func()
	dispatch func(fn func())

	// owned by the event loop
	adapter         api.TransportAdapter
	adapterLog      logging.Logger
	transport       *Transport
	session         *Session
	status          Status
	sessionParams   map[string]interface{}
	creatingSession bool
	fetched         []*fetchedScope
	sessionWaiters  []chan<- sessionResult

	// observers, may be registered from any go routine
	observersLock    sync.Mutex
	statusObservers  []func(Status)
	sessionObservers []func(*Session)
	deniedObservers  []func(*api.Error)

	// snapshots
	snapshotQueue chan *snapshot.Snapshot
	ownSnapshots  bool

	// change set history
	historyLock      sync.Mutex
	changeSetSeqNum  uint
	changeSetHistory RecordedChangeSets
}

// Deps lists dependencies of the client.
type Deps struct {
	infra.PluginName
	Log logging.PluginLogger
	config.PluginConfig
	HTTPHandlers   HTTPHandlers
	AdapterFactory api.AdapterFactory // websocket adapter by default
	Snapshots      snapshot.Store     // built from config if nil
}

// fetchedScope is a scope fetched through the client. It is re-fetched
// whenever a new session is established.
type fetchedScope struct {
	scope            *scope.Scope
	params           map[string]interface{}
	cb               func(error) // pending until the first fetch completes
	snapshotObserver scope.ObserverID
}

type sessionResult struct {
	token string
	err   error
}

// Init prepares the event loop and the transport adapter.
func (c *Client) Init() (err error) {
	if c.config == nil {
		if c.config, err = c.loadConfig(); err != nil {
			return err
		}
	}
	c.sessionParams = c.config.SessionParams

	// prepare context for all go routines
	c.ctx, c.cancel = context.WithCancel(context.Background())

	if c.dispatch == nil {
		c.loop = make(chan func(), 100)
		c.dispatch = c.enqueue
		c.wg.Add(1)
		go c.runLoop()
	}

	if c.Snapshots == nil && c.config.Snapshot.Enabled {
		if err = c.openSnapshots(); err != nil {
			return err
		}
	}
	if c.Snapshots != nil {
		c.snapshotQueue = make(chan *snapshot.Snapshot, 100)
		c.wg.Add(1)
		go c.persistSnapshots()
	}

	if c.AdapterFactory == nil {
		// shared by all adapters the factory builds
		c.adapterLog = logrus.NewLogger(c.String() + "-websocket")
		c.AdapterFactory = c.websocketAdapter
	}
	adapter, err := c.AdapterFactory()
	if err != nil {
		return errors.Wrap(err, "failed to create transport adapter")
	}
	c.bindAdapter(adapter)

	c.registerHandlers(c.HTTPHandlers)
	return nil
}

// AfterInit connects to the server.
func (c *Client) AfterInit() error {
	c.Connect()
	return nil
}

// Close disconnects the transport, closes the session and stops all go
// routines. Pending fetches fail with ErrClientClosed.
func (c *Client) Close() error {
	if c.cancel == nil {
		return nil
	}
	if c.Do(c.shutdown) == api.ErrClientClosed {
		// already closed
		return nil
	}
	c.cancel()
	c.wg.Wait()
	if c.ownSnapshots {
		return c.Snapshots.Close()
	}
	return nil
}

func (c *Client) loadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if c.PluginConfig == nil {
		return cfg, nil
	}
	var raw map[string]interface{}
	found, err := c.PluginConfig.LoadValue(&raw)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load client config")
	}
	if !found {
		c.Log.Debug("Client config not found, using defaults")
		return cfg, nil
	}
	if err := cfg.Apply(raw); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", c.PluginConfig.GetConfigName())
	}
	return cfg, nil
}

func (c *Client) openSnapshots() error {
	cfg := c.config.Snapshot
	if cfg.RedisAddr == "" {
		c.Snapshots = snapshot.NewMemoryStore()
	} else {
		ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
		defer cancel()
		store, err := snapshot.NewRedisStore(ctx, cfg.RedisAddr, cfg.KeyPrefix, cfg.TTL)
		if err != nil {
			return err
		}
		c.Snapshots = store
	}
	c.ownSnapshots = true
	return nil
}

func (c *Client) websocketAdapter() (api.TransportAdapter, error) {
	return websocket.NewAdapter(websocket.Config{
		URL:            c.config.URL,
		Headers:        c.config.Headers,
		PingInterval:   c.config.PingInterval,
		PingVariance:   c.config.PingVariance,
		ReconnectDelay: c.config.ReconnectDelay,
	}, c.adapterLog)
}

// runLoop executes dispatched functions one by one and flushes local
// changes every change-interval.
func (c *Client) runLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.ChangeInterval)
	defer ticker.Stop()

	for {
		select {
		case fn := <-c.loop:
			fn()
		case <-ticker.C:
			c.sendChanges()
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) enqueue(fn func()) {
	select {
	case c.loop <- fn:
	case <-c.ctx.Done():
	}
}

// Do runs <fn> on the event loop and waits until it returns. Scopes fetched
// through the client must only be modified from inside Do.
func (c *Client) Do(fn func()) error {
	if c.ctx.Err() != nil {
		return api.ErrClientClosed
	}
	done := make(chan struct{})
	c.dispatch(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-c.ctx.Done():
		return api.ErrClientClosed
	}
}

func (c *Client) bindAdapter(adapter api.TransportAdapter) {
	c.adapter = adapter
	c.transport = NewTransport(adapter, c.Log)
	adapter.ObserveStatus(func(status api.Status) {
		c.dispatch(func() {
			if c.adapter != adapter {
				return
			}
			c.transportStatusChanged(status)
		})
	})
	adapter.ObserveMessage(func(msg api.Message) {
		c.dispatch(func() {
			if c.adapter != adapter {
				return
			}
			c.messageReceived(msg)
		})
	})
}

// Connect starts connecting the transport.
func (c *Client) Connect() {
	c.dispatch(func() {
		if c.adapter != nil {
			c.transport.Connect()
		}
	})
}

// ConnectWithSessionParams sets params sent with the next SessionCreate
// and starts connecting.
func (c *Client) ConnectWithSessionParams(params map[string]interface{}) {
	c.dispatch(func() {
		c.sessionParams = params
	})
	c.Connect()
}

func (c *Client) transportStatusChanged(status api.Status) {
	defer trackClientMethod("transportStatusChanged")()

	c.transport.statusChanged(status)
	if status != api.Connected {
		c.creatingSession = false
	}
	switch status {
	case api.Connected:
		c.setStatus(Online)
		if c.session == nil && !c.creatingSession {
			c.creatingSession = true
			c.transport.Send(api.NewSessionCreate(c.sessionParams))
		}
	case api.Fatal:
		c.setStatus(Offline)
		c.restart()
	default:
		c.setStatus(Offline)
	}
}

func (c *Client) setStatus(status Status) {
	if status == c.status {
		return
	}
	c.status = status
	c.observersLock.Lock()
	observers := append(([]func(Status))(nil), c.statusObservers...)
	c.observersLock.Unlock()
	for _, cb := range observers {
		cb(status)
	}
}

// restart replaces the failed adapter with a new one. Change sets in flight
// are reverted with the old session, scopes are fetched again once the new
// session is established.
func (c *Client) restart() {
	defer trackClientMethod("restart")()

	c.Log.Warnf("Transport adapter %s failed, restarting", c.adapter.Name())
	failed := c.adapter
	c.adapter = nil
	failed.Disconnect()
	c.closeSession()

	adapter, err := c.AdapterFactory()
	if err != nil {
		c.Log.Errorf("Failed to create transport adapter: %v", err)
		return
	}
	c.bindAdapter(adapter)
	c.transport.Connect()
}

func (c *Client) closeSession() {
	if c.session == nil {
		return
	}
	session := c.session
	c.session = nil
	session.Close()
}

func (c *Client) messageReceived(msg api.Message) {
	defer trackClientMethod("messageReceived")()

	reportReceived(msg.GetType())
	updateStats(func(s *Stats) { s.MessagesReceived++ })
	c.Log.WithField("index", msg.GetIndex()).Debugf("Received %s", msg.GetType())

	if reply, isCreateReply := msg.(*api.SessionCreateReply); isCreateReply {
		c.sessionCreateReply(reply)
		return
	}
	if c.session == nil {
		c.Log.Warnf("Dropping %s received without session", msg.GetType())
		return
	}
	c.session.ReceivedMessage(msg)
}

func (c *Client) sessionCreateReply(reply *api.SessionCreateReply) {
	c.creatingSession = false
	if c.session != nil {
		c.Log.Error("Received session create reply while session is already established")
		return
	}
	if reply.SessionToken == "" {
		c.Log.Warnf("Session denied: %v", reply.Error)
		c.observersLock.Lock()
		observers := append(([]func(*api.Error))(nil), c.deniedObservers...)
		c.observersLock.Unlock()
		for _, cb := range observers {
			cb(reply.Error)
		}
		c.notifySessionWaiters(sessionResult{err: sessionDeniedError(reply.Error)})
		return
	}

	c.session = newSession(reply.SessionToken, c.transport, c.Log, c)
	c.adapter.SessionEstablished(c.session)
	reportSessionCreated()
	updateStats(func(s *Stats) { s.Sessions++ })
	c.Log.WithField("token", reply.SessionToken).Info("Session established")

	c.observersLock.Lock()
	observers := append(([]func(*Session))(nil), c.sessionObservers...)
	c.observersLock.Unlock()
	for _, cb := range observers {
		cb(c.session)
	}
	c.notifySessionWaiters(sessionResult{token: reply.SessionToken})

	for _, fs := range c.fetched {
		c.fetchOnSession(fs)
	}
}

func sessionDeniedError(err *api.Error) error {
	if err == nil {
		return errors.New("session denied")
	}
	return errors.Wrap(err, "session denied")
}

func (c *Client) notifySessionWaiters(result sessionResult) {
	for _, waiter := range c.sessionWaiters {
		waiter <- result
	}
	c.sessionWaiters = nil
}

// ObserveStatus registers callback for client status changes.
// The callback is invoked from the event loop.
func (c *Client) ObserveStatus(cb func(Status)) {
	c.observersLock.Lock()
	c.statusObservers = append(c.statusObservers, cb)
	c.observersLock.Unlock()
}

// ObserveSession registers callback for newly established sessions.
func (c *Client) ObserveSession(cb func(*Session)) {
	c.observersLock.Lock()
	c.sessionObservers = append(c.sessionObservers, cb)
	c.observersLock.Unlock()
}

// OnSessionDenied registers callback for SessionCreate rejected by the server.
// The error is nil if the server did not say why.
func (c *Client) OnSessionDenied(cb func(*api.Error)) {
	c.observersLock.Lock()
	c.deniedObservers = append(c.deniedObservers, cb)
	c.observersLock.Unlock()
}

// AwaitSession blocks until a session is established and returns its token.
func (c *Client) AwaitSession(ctx context.Context) (string, error) {
	result := make(chan sessionResult, 1)
	err := c.Do(func() {
		if c.session != nil {
			result <- sessionResult{token: c.session.Token()}
			return
		}
		c.sessionWaiters = append(c.sessionWaiters, result)
	})
	if err != nil {
		return "", err
	}
	select {
	case r := <-result:
		return r.token, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.ctx.Done():
		return "", api.ErrClientClosed
	}
}

// Fetch asks the server for the scope. If there is no session yet, the
// fetch is sent once a session is established. The callback is invoked
// from the event loop after the first fetch completes. The scope is fetched
// again after every new session.
func (c *Client) Fetch(sc *scope.Scope, params map[string]interface{}, cb func(error)) {
	if c.ctx.Err() != nil {
		cb(api.ErrClientClosed)
		return
	}
	c.dispatch(func() {
		defer trackClientMethod("fetch")()

		for _, fs := range c.fetched {
			if fs.scope == sc {
				cb(errors.Wrap(api.ErrScopeAlreadyFetched, sc.Name()))
				return
			}
		}
		fs := &fetchedScope{
			scope:  sc,
			params: params,
			cb:     cb,
		}
		if c.Snapshots != nil {
			fs.snapshotObserver = sc.OnRemoteSync(func() {
				c.queueSnapshot(fs)
			})
		}
		c.fetched = append(c.fetched, fs)
		if c.session != nil {
			c.fetchOnSession(fs)
		}
	})
}

// FetchScope is the blocking variant of Fetch.
func (c *Client) FetchScope(ctx context.Context, sc *scope.Scope, params map[string]interface{}) error {
	done := make(chan error, 1)
	c.Fetch(sc, params, func(err error) {
		done <- err
	})
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return api.ErrClientClosed
	}
}

func (c *Client) fetchOnSession(fs *fetchedScope) {
	log := c.Log.WithField("scope", fs.scope.Name())
	c.session.Fetch(fs.scope, fs.params, func(err error) {
		if err == api.ErrSessionBecameClosed {
			// fetched again with the next session
			log.Debug("Session closed before scope was fetched")
			return
		}
		if err != nil {
			log.Warnf("Failed to fetch scope: %v", err)
			c.forget(fs)
		} else {
			log.Info("Scope fetched")
		}
		if cb := fs.cb; cb != nil {
			fs.cb = nil
			cb(err)
		}
	})
}

func (c *Client) forget(fs *fetchedScope) {
	for i, other := range c.fetched {
		if other == fs {
			c.fetched = append(c.fetched[:i], c.fetched[i+1:]...)
			break
		}
	}
	if fs.snapshotObserver != 0 {
		fs.scope.RemoveObserver(fs.snapshotObserver)
	}
}

// SendChanges flushes pending local changes of all attached scopes.
func (c *Client) SendChanges() {
	c.dispatch(c.sendChanges)
}

func (c *Client) sendChanges() {
	if c.session == nil {
		return
	}
	for _, as := range c.session.scopes {
		as.scope.SendChanges()
	}
}

func (c *Client) shutdown() {
	if c.adapter != nil {
		adapter := c.adapter
		c.adapter = nil
		adapter.Disconnect()
	}
	c.closeSession()
	for _, fs := range append([]*fetchedScope(nil), c.fetched...) {
		c.forget(fs)
		if fs.cb != nil {
			fs.cb(api.ErrClientClosed)
		}
	}
	c.notifySessionWaiters(sessionResult{err: api.ErrClientClosed})
	c.setStatus(Offline)
}

// ClientStatus is a summary of the client state.
type ClientStatus struct {
	Status           string      `json:"status"`
	Transport        string      `json:"transport"`
	Adapter          string      `json:"adapter,omitempty"`
	URL              string      `json:"url,omitempty"`
	SessionToken     string      `json:"session-token,omitempty"`
	ServerIndex      uint64      `json:"server-index"`
	WaitingReplies   int         `json:"waiting-replies"`
	QueuedChangeSets int         `json:"queued-change-sets"`
	Scopes           []ScopeInfo `json:"scopes"`
}

// GetStatus returns the current state of the client.
func (c *Client) GetStatus() (status *ClientStatus, err error) {
	err = c.Do(func() {
		status = &ClientStatus{
			Status:    c.status.String(),
			Transport: api.Closed.String(),
			Scopes:    []ScopeInfo{},
		}
		if c.adapter != nil {
			status.Transport = c.adapter.Status().String()
			status.Adapter = c.adapter.Name()
			status.URL = c.adapter.URL()
			status.WaitingReplies = c.transport.WaitingReplies()
		}
		if c.session != nil {
			status.SessionToken = c.session.Token()
			status.ServerIndex = c.session.ServerIndex()
			status.QueuedChangeSets = c.session.Queue().Count()
			status.Scopes = c.session.Scopes()
		}
	})
	return status, err
}

// DumpScope returns nodes of the fetched scope with the given name.
func (c *Client) DumpScope(name string) (nodes []scope.NodeDump, found bool, err error) {
	err = c.Do(func() {
		for _, fs := range c.fetched {
			if fs.scope.Name() == name {
				nodes, found = fs.scope.DumpNodes(), true
				return
			}
		}
	})
	return nodes, found, err
}
