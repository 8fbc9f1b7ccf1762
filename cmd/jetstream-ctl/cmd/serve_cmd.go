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
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ligato/jetstream/pkg/debug"
	"github.com/ligato/jetstream/plugins/jetstream"
)

var serveFlags struct {
	Scopes  []string
	Params  []string
	Restore bool
}

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Run the client with REST API",
	Long: `
	Run the client until interrupted, keep the given scopes fetched and
	serve the client REST API (status, scopes, change set history, metrics).
`,
	Args: cobra.NoArgs,
	RunE: serveFunc,
}

func init() {
	serveCommand.Flags().StringSliceVarP(&serveFlags.Scopes, "scope", "s", nil,
		"Scope to fetch as name=RootClass, may be repeated")
	serveCommand.Flags().StringSliceVarP(&serveFlags.Params, "param", "p", nil,
		"Fetch parameter as key=value used for all scopes, may be repeated")
	serveCommand.Flags().BoolVar(&serveFlags.Restore, "restore", false,
		"Restore scopes from snapshots before fetching (requires snapshots in config)")
	RootCmd.AddCommand(serveCommand)
}

func serveFunc(cmd *cobra.Command, args []string) error {
	if err := loadClasses(); err != nil {
		return err
	}
	params, err := parseParams(serveFlags.Params)
	if err != nil {
		return err
	}
	log := logging.ForPlugin("jetstream-ctl")
	defer debug.Start(log).Stop()

	router := jetstream.NewRouter(log)
	client, err := newClient(jetstream.UseDeps(func(deps *jetstream.Deps) {
		deps.HTTPHandlers = router
	}))
	if err != nil {
		return err
	}
	defer client.Close()

	client.ObserveStatus(func(status jetstream.Status) {
		log.Infof("Client is %s", status)
	})
	client.ObserveSession(func(session *jetstream.Session) {
		log.WithField("token", session.Token()).Info("New session")
	})

	for _, def := range serveFlags.Scopes {
		nameAndClass := strings.SplitN(def, "=", 2)
		if len(nameAndClass) != 2 {
			return errors.Errorf("invalid scope %q, expected name=RootClass", def)
		}
		sc, err := newScope(nameAndClass[0], nameAndClass[1])
		if err != nil {
			return err
		}
		if serveFlags.Restore {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := client.RestoreSnapshot(ctx, sc); err != nil {
				log.WithField("scope", sc.Name()).Warnf("Snapshot not restored: %v", err)
			}
			cancel()
		}
		name := sc.Name()
		client.Fetch(sc, params, func(err error) {
			if err != nil {
				log.WithField("scope", name).Errorf("Fetch failed: %v", err)
			}
		})
	}

	server := &http.Server{
		Addr:    globalFlags.RestAddr,
		Handler: router,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Infof("Serving REST API on %s", server.Addr)
		serveErr <- server.ListenAndServe()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case sig := <-sigs:
		log.Infof("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
