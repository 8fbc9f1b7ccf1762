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
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ligato/jetstream/plugins/jetstream"
)

var statusCommand = &cobra.Command{
	Use:   "status",
	Short: "Show status of a running client",
	Long: `
	Show status of the client started by 'serve'.
`,
	Args: cobra.NoArgs,
	RunE: statusFunc,
}

var historyFlags struct {
	SeqNum uint
	Since  time.Duration
	JSON   bool
}

var historyCommand = &cobra.Command{
	Use:     "history",
	Aliases: []string{"h"},
	Short:   "Show change set history of a running client",
	Long: `
	Show change sets the client started by 'serve' sent to the server.
`,
	Args: cobra.NoArgs,
	RunE: historyFunc,
}

func init() {
	historyCommand.Flags().UintVar(&historyFlags.SeqNum, "seq-num", 0,
		"Show only the change set with this sequence number")
	historyCommand.Flags().DurationVar(&historyFlags.Since, "since", 0,
		"Show only change sets started in the given period, e.g. 10m")
	historyCommand.Flags().BoolVar(&historyFlags.JSON, "json", false,
		"Print history as JSON")
	RootCmd.AddCommand(statusCommand)
	RootCmd.AddCommand(historyCommand)
}

// restGet fetches <path> from the REST API of a running client.
func restGet(path string, query url.Values) ([]byte, error) {
	u := url.URL{
		Scheme:   "http",
		Host:     globalFlags.RestAddr,
		Path:     path,
		RawQuery: query.Encode(),
	}
	resp, err := http.Get(u.String())
	if err != nil {
		return nil, errors.Wrap(err, "client is not running")
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var e struct{ Error string }
		if sonic.Unmarshal(body, &e) == nil && e.Error != "" {
			return nil, errors.New(e.Error)
		}
		return nil, errors.Errorf("%s returned %s", path, resp.Status)
	}
	return body, nil
}

func statusFunc(cmd *cobra.Command, args []string) error {
	body, err := restGet("/jetstream/status", nil)
	if err != nil {
		return err
	}
	var status jetstream.ClientStatus
	if err := sonic.Unmarshal(body, &status); err != nil {
		return err
	}
	printStatus(os.Stdout, &status)
	return nil
}

func historyFunc(cmd *cobra.Command, args []string) error {
	query := url.Values{}
	if !historyFlags.JSON {
		query.Set("format", "text")
	}
	if historyFlags.SeqNum > 0 {
		query.Set("seq-num", strconv.FormatUint(uint64(historyFlags.SeqNum), 10))
	}
	if historyFlags.Since > 0 {
		query.Set("since", strconv.FormatInt(time.Now().Add(-historyFlags.Since).Unix(), 10))
	}
	body, err := restGet("/jetstream/change-set-history", query)
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, string(body))
	return nil
}
