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

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/ligato/cn-infra/logging"
	"github.com/logrusorgru/aurora"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ligato/jetstream/pkg/debug"
	"github.com/ligato/jetstream/pkg/model"
	"github.com/ligato/jetstream/pkg/scope"
	"github.com/ligato/jetstream/plugins/jetstream"
)

// newClient builds and starts a client configured by the global flags.
func newClient(opts ...jetstream.Option) (*jetstream.Client, error) {
	cfg, err := jetstream.LoadConfig(globalFlags.Config)
	if err != nil {
		return nil, err
	}
	if globalFlags.URL != "" {
		cfg.URL = globalFlags.URL
	}
	if cfg.URL == "" {
		return nil, errors.New("server URL is not set, use --url or $JETSTREAM_URL")
	}
	client := jetstream.NewPlugin(append([]jetstream.Option{jetstream.UseConfig(cfg)}, opts...)...)
	if err := client.Init(); err != nil {
		return nil, err
	}
	if err := applyLogLevel(); err != nil {
		client.Close()
		return nil, err
	}
	if err := client.AfterInit(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// applyLogLevel sets --log-level to all registered loggers, or debug
// level if JETSTREAM_DEBUG is set.
func applyLogLevel() error {
	level, err := logrus.ParseLevel(globalFlags.LogLevel)
	if err != nil {
		return errors.Wrap(err, "invalid --log-level")
	}
	if debug.IsEnabled() {
		level = logrus.DebugLevel
	}
	for name := range logging.DefaultRegistry.ListLoggers() {
		if err := logging.DefaultRegistry.SetLevel(name, level.String()); err != nil {
			return err
		}
	}
	return nil
}

// newScope returns scope <name> with root of class <className>, which must
// be registered (see --classes).
func newScope(name, className string) (*scope.Scope, error) {
	class, found := model.Lookup(className)
	if !found {
		return nil, errors.Errorf("class %q is not defined", className)
	}
	sc := scope.New(name)
	class.New().SetScopeAndMakeRootModel(sc)
	sc.GetAndClearSyncFragments()
	return sc, nil
}

// parseParams converts key=value pairs into a parameter map.
func parseParams(pairs []string) (map[string]interface{}, error) {
	params := make(map[string]interface{}, len(pairs))
	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || kv[0] == "" {
			return nil, errors.Errorf("invalid parameter %q, expected key=value", pair)
		}
		params[kv[0]] = kv[1]
	}
	return params, nil
}

func printStatus(w io.Writer, status *jetstream.ClientStatus) {
	state := aurora.Red(status.Status)
	if status.Status == jetstream.Online.String() {
		state = aurora.Green(status.Status)
	}
	fmt.Fprintf(w, "Client:     %s\n", state)
	fmt.Fprintf(w, "Transport:  %s (%s %s)\n", status.Transport, status.Adapter, status.URL)
	if status.SessionToken == "" {
		fmt.Fprintf(w, "Session:    %s\n", aurora.Brown("none"))
		return
	}
	fmt.Fprintf(w, "Session:    %s (server index %d)\n", aurora.Bold(status.SessionToken), status.ServerIndex)
	fmt.Fprintf(w, "Pending:    %d replies, %d change sets\n", status.WaitingReplies, status.QueuedChangeSets)
	if len(status.Scopes) == 0 {
		return
	}
	fmt.Fprintln(w, "Scopes:")
	for _, sc := range status.Scopes {
		fmt.Fprintf(w, "  %3d  %-24s %5d nodes", sc.Index, sc.Name, sc.Nodes)
		if sc.Paused {
			fmt.Fprintf(w, "  %s", aurora.Brown("paused"))
		}
		if sc.PendingChanges {
			fmt.Fprintf(w, "  %s", aurora.Brown("pending changes"))
		}
		fmt.Fprintln(w)
	}
}
