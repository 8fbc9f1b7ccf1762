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
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/sanity-io/litter"
	"github.com/spf13/cobra"

	"github.com/ligato/jetstream/pkg/scope"
)

var fetchFlags struct {
	Class   string
	Params  []string
	Output  string
	Watch   bool
	Save    bool
	Timeout time.Duration
}

var fetchCommand = &cobra.Command{
	Use:   "fetch SCOPE",
	Short: "Fetch scope and print its nodes",
	Long: `
	Fetch scope from the server and print its nodes once the full state
	arrives. With --watch, nodes are printed again after every remote change.
`,
	Args: cobra.ExactArgs(1),
	RunE: fetchFunc,
}

func init() {
	fetchCommand.Flags().StringVar(&fetchFlags.Class, "class", "",
		"Class of the scope root (see --classes)")
	fetchCommand.Flags().StringSliceVarP(&fetchFlags.Params, "param", "p", nil,
		"Fetch parameter as key=value, may be repeated")
	fetchCommand.Flags().StringVarP(&fetchFlags.Output, "output", "o", "yaml",
		"Output format: yaml, json or go")
	fetchCommand.Flags().BoolVarP(&fetchFlags.Watch, "watch", "w", false,
		"Keep printing nodes on remote changes")
	fetchCommand.Flags().BoolVar(&fetchFlags.Save, "save-snapshot", false,
		"Save the fetched state as snapshot (requires snapshots in config)")
	fetchCommand.Flags().DurationVar(&fetchFlags.Timeout, "timeout", 10*time.Second,
		"How long to wait for the scope state")
	RootCmd.AddCommand(fetchCommand)
}

func fetchFunc(cmd *cobra.Command, args []string) error {
	if fetchFlags.Class == "" {
		return errors.New("root class is not set, use --class")
	}
	if err := loadClasses(); err != nil {
		return err
	}
	params, err := parseParams(fetchFlags.Params)
	if err != nil {
		return err
	}
	sc, err := newScope(args[0], fetchFlags.Class)
	if err != nil {
		return err
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	// registered before the scope is handed over to the client
	synced := make(chan struct{}, 1)
	sc.OnRemoteSync(func() {
		select {
		case synced <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), fetchFlags.Timeout)
	defer cancel()
	if err := client.FetchScope(ctx, sc, params); err != nil {
		return err
	}
	select {
	case <-synced:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "scope state not received")
	}
	if err := printScope(os.Stdout, client.DumpScope, sc.Name()); err != nil {
		return err
	}
	if fetchFlags.Save {
		if err := client.SaveSnapshot(ctx, sc); err != nil {
			return errors.Wrap(err, "failed to save snapshot")
		}
	}
	if !fetchFlags.Watch {
		return nil
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-synced:
			fmt.Fprintln(os.Stdout, "---")
			if err := printScope(os.Stdout, client.DumpScope, sc.Name()); err != nil {
				return err
			}
		case <-sigs:
			return nil
		}
	}
}

type dumpFunc func(name string) ([]scope.NodeDump, bool, error)

func printScope(w io.Writer, dump dumpFunc, name string) error {
	nodes, found, err := dump(name)
	if err != nil {
		return err
	}
	if !found {
		return errors.Errorf("scope %s is not fetched", name)
	}
	return printNodes(w, nodes, fetchFlags.Output)
}

func printNodes(w io.Writer, nodes []scope.NodeDump, format string) error {
	switch format {
	case "yaml":
		data, err := yaml.Marshal(nodes)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	case "json":
		data, err := sonic.ConfigStd.MarshalIndent(nodes, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "go":
		_, err := fmt.Fprintln(w, litter.Options{HideZeroValues: true}.Sdump(nodes))
		return err
	}
	return errors.Errorf("unknown output format %q", format)
}
