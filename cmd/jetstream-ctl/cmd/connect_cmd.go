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
	"os"
	"time"

	"github.com/logrusorgru/aurora"
	"github.com/spf13/cobra"

	"github.com/ligato/jetstream/plugins/jetstream/api"
)

var connectFlags struct {
	Params  []string
	Timeout time.Duration
}

var connectCommand = &cobra.Command{
	Use:   "connect",
	Short: "Open a session with the server",
	Long: `
	Connect to the server, ask for a session and print its token.
`,
	Args: cobra.NoArgs,
	RunE: connectFunc,
}

func init() {
	connectCommand.Flags().StringSliceVarP(&connectFlags.Params, "param", "p", nil,
		"Session parameter as key=value, may be repeated")
	connectCommand.Flags().DurationVar(&connectFlags.Timeout, "timeout", 10*time.Second,
		"How long to wait for the session")
	RootCmd.AddCommand(connectCommand)
}

func connectFunc(cmd *cobra.Command, args []string) error {
	params, err := parseParams(connectFlags.Params)
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	client.OnSessionDenied(func(err *api.Error) {
		fmt.Fprintf(os.Stdout, "%s %v\n", aurora.Red("Session denied:"), err)
	})
	client.ConnectWithSessionParams(params)

	ctx, cancel := context.WithTimeout(context.Background(), connectFlags.Timeout)
	defer cancel()
	if _, err := client.AwaitSession(ctx); err != nil {
		return err
	}
	status, err := client.GetStatus()
	if err != nil {
		return err
	}
	printStatus(os.Stdout, status)
	return nil
}
