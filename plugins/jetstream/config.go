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
	"time"

	"github.com/ligato/cn-infra/config"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

const (
	// by default, local changes are collected for 100ms before they are sent
	defaultChangeInterval = 100 * time.Millisecond

	// by default, an idle session is pinged every 10 +/- 1 seconds
	defaultPingInterval = 10 * time.Second
	defaultPingVariance = 2 * time.Second

	// by default, failed connection attempts are retried after 100ms
	defaultReconnectDelay = 100 * time.Millisecond

	// by default, a history of processed change sets is recorded
	defaultRecordChangeSetHistory = true

	// by default, only the last 1000 change sets are kept recorded
	defaultChangeSetHistoryLimit = 1000

	// by default, summary of change sets is not printed to stdout
	defaultPrintChangeSetSummary = false

	// by default, snapshots are kept for a day
	defaultSnapshotTTL = 24 * time.Hour

	defaultSnapshotKeyPrefix = "jetstream/snapshot/"
)

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		ChangeInterval:         defaultChangeInterval,
		PingInterval:           defaultPingInterval,
		PingVariance:           defaultPingVariance,
		ReconnectDelay:         defaultReconnectDelay,
		RecordChangeSetHistory: defaultRecordChangeSetHistory,
		ChangeSetHistoryLimit:  defaultChangeSetHistoryLimit,
		PrintChangeSetSummary:  defaultPrintChangeSetSummary,
		Snapshot: SnapshotConfig{
			KeyPrefix: defaultSnapshotKeyPrefix,
			TTL:       defaultSnapshotTTL,
		},
	}
}

// Config holds the Jetstream client configuration.
type Config struct {
	URL                    string                 `json:"url"`
	Headers                map[string]string      `json:"headers"`
	ChangeInterval         time.Duration          `json:"change-interval"`
	PingInterval           time.Duration          `json:"ping-interval"`
	PingVariance           time.Duration          `json:"ping-variance"`
	ReconnectDelay         time.Duration          `json:"reconnect-delay"`
	SessionParams          map[string]interface{} `json:"session-params"`
	RecordChangeSetHistory bool                   `json:"record-change-set-history"`
	ChangeSetHistoryLimit  int                    `json:"change-set-history-limit"`
	PrintChangeSetSummary  bool                   `json:"print-change-set-summary"`
	Snapshot               SnapshotConfig         `json:"snapshot"`
}

// SnapshotConfig configures persisting of scope snapshots.
// Snapshots are kept in memory unless RedisAddr is set.
type SnapshotConfig struct {
	Enabled   bool          `json:"enabled"`
	RedisAddr string        `json:"redis-addr"`
	KeyPrefix string        `json:"key-prefix"`
	TTL       time.Duration `json:"ttl"`
}

// LoadConfig reads YAML configuration from <path> on top of the defaults.
// Durations are written as strings, e.g. "250ms".
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	var raw map[string]interface{}
	if err := config.ParseConfigFromYamlFile(path, &raw); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}
	if err := cfg.Apply(raw); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// Apply overrides configuration with values from <raw>, keyed as in YAML.
func (c *Config) Apply(raw map[string]interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           c,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return err
	}
	return c.validate()
}

func (c *Config) validate() error {
	switch {
	case c.ChangeInterval <= 0:
		return errors.New("change-interval must be positive")
	case c.PingInterval <= 0:
		return errors.New("ping-interval must be positive")
	case c.PingVariance < 0 || c.PingVariance > c.PingInterval:
		return errors.New("ping-variance must be between zero and ping-interval")
	case c.ReconnectDelay < 0:
		return errors.New("reconnect-delay must not be negative")
	case c.ChangeSetHistoryLimit < 0:
		return errors.New("change-set-history-limit must not be negative")
	}
	return nil
}
