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
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ligato/jetstream/pkg/version"
)

// GlobalFlags defines a single type to hold all cobra global flags.
type GlobalFlags struct {
	EnvFile  string
	URL      string
	Config   string
	Classes  string
	RestAddr string
	LogLevel string
}

var globalFlags GlobalFlags

// flag name -> environment variable used when the flag is not given
var flagEnv = map[string]string{
	"url":       "JETSTREAM_URL",
	"config":    "JETSTREAM_CONFIG",
	"classes":   "JETSTREAM_CLASSES",
	"rest-addr": "JETSTREAM_REST_ADDR",
	"log-level": "JETSTREAM_LOG_LEVEL",
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "jetstream-ctl",
	Short: "A CLI tool for Jetstream servers",
	Long: `
A CLI tool to open sessions with a Jetstream server, fetch scopes and
inspect a running client. The server URL, client config and class
definitions are taken from flags, from the environment or from the
.env file in the working directory.`,
	Example: `Fetch scope "Lobby" whose root is of class Room defined in classes.yaml:
  $ export JETSTREAM_URL=ws://localhost:8080/jetstream
  $ ./jetstream-ctl --classes classes.yaml fetch Lobby --class Room

Keep the client running and inspect it over REST:
  $ ./jetstream-ctl serve --scope Lobby=Room
  $ ./jetstream-ctl status
`,
	SilenceUsage:      true,
	PersistentPreRunE: loadEnv,
}

func init() {
	RootCmd.Version = version.Version()
	RootCmd.PersistentFlags().StringVar(&globalFlags.EnvFile, "env-file", ".env",
		"File with environment variables, ignored if missing")
	RootCmd.PersistentFlags().StringVarP(&globalFlags.URL, "url", "u", "",
		"Websocket URL of the Jetstream server ($JETSTREAM_URL)")
	RootCmd.PersistentFlags().StringVarP(&globalFlags.Config, "config", "c", "",
		"Client config file in YAML ($JETSTREAM_CONFIG)")
	RootCmd.PersistentFlags().StringVar(&globalFlags.Classes, "classes", "",
		"File with class definitions in YAML ($JETSTREAM_CLASSES)")
	RootCmd.PersistentFlags().StringVar(&globalFlags.RestAddr, "rest-addr", "localhost:9191",
		"Address of the REST API served by 'serve' ($JETSTREAM_REST_ADDR)")
	RootCmd.PersistentFlags().StringVar(&globalFlags.LogLevel, "log-level", "warn",
		"Log level of the client: debug, info, warn or error ($JETSTREAM_LOG_LEVEL)")
}

// loadEnv reads the env file and fills flags not given on the command line
// from the environment.
func loadEnv(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(globalFlags.EnvFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	var err error
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		env, withEnv := flagEnv[flag.Name]
		if !withEnv || flag.Changed || err != nil {
			return
		}
		if v, set := os.LookupEnv(env); set {
			err = flag.Value.Set(v)
		}
	})
	return err
}
