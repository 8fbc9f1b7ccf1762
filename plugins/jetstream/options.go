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
	"github.com/ligato/cn-infra/config"
	"github.com/ligato/cn-infra/logging"
)

// DefaultPlugin is a default instance of the client.
var DefaultPlugin = *NewPlugin()

// NewPlugin creates a new Client with the provided Options.
func NewPlugin(opts ...Option) *Client {
	p := &Client{}

	p.PluginName = "jetstream"

	for _, o := range opts {
		o(p)
	}

	if p.Log == nil {
		p.Log = logging.ForPlugin(p.String())
	}
	if p.PluginConfig == nil {
		p.PluginConfig = config.ForPlugin(p.String())
	}

	return p
}

// Option is a function that can be used in NewPlugin to customize Client.
type Option func(*Client)

// UseDeps returns Option that can inject custom dependencies.
func UseDeps(cb func(*Deps)) Option {
	return func(p *Client) {
		cb(&p.Deps)
	}
}

// UseConfig returns Option that replaces the config file.
func UseConfig(cfg *Config) Option {
	return func(p *Client) {
		p.config = cfg
	}
}

// UseDispatcher returns Option that replaces the event loop. Every function
// passed to <dispatch> must run to completion before the next one starts.
func UseDispatcher(dispatch func(fn func())) Option {
	return func(p *Client) {
		p.dispatch = dispatch
	}
}
