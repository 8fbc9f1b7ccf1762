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
	"os"

	"github.com/spf13/cobra"

	"github.com/ligato/jetstream/pkg/version"
)

var showVersion = &cobra.Command{
	Use:     "version",
	Aliases: []string{"V"},
	Short:   "Show version",
	Long: `
	Show version and build info
`,
	Args: cobra.NoArgs,
	Run:  versionFunc,
}

func init() {
	RootCmd.AddCommand(showVersion)
}

func versionFunc(cmd *cobra.Command, args []string) {
	info := version.Get()
	fmt.Fprintf(os.Stdout, "%s %s (%s)\n", info.App, info.Version, info.Revision)
	fmt.Fprintf(os.Stdout, "  built by %s", info.BuiltBy)
	if !info.BuildTime.IsZero() {
		fmt.Fprintf(os.Stdout, " on %s", info.BuildTime.Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(os.Stdout, "\n  %s %s\n", info.GoVersion, info.Platform)
}
