//  Copyright (c) 2019 Cisco and/or its affiliates.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at:
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

// Package version provides information about the build of the client.
package version

import (
	"fmt"
	"runtime"
	"strconv"
	"time"
)

// Set at link time with -ldflags "-X github.com/ligato/jetstream/pkg/version.<var>=...".
var (
	app       = "jetstream"
	version   = "v0.2.0"
	gitCommit = "unknown"
	gitBranch = "HEAD"
	buildUser = "unknown"
	buildHost = "unknown"
	buildDate = ""
)

var buildTime time.Time
var revision string

func init() {
	if buildDate != "" {
		buildstampInt64, _ := strconv.ParseInt(buildDate, 10, 64)
		buildTime = time.Unix(buildstampInt64, 0)
	}
	revision = gitCommit
	if len(revision) > 7 {
		revision = revision[:7]
	}
	if gitBranch != "HEAD" {
		revision += fmt.Sprintf("@%s", gitBranch)
	}
}

// BuildInfo is the machine readable form of the version data.
type BuildInfo struct {
	App       string    `json:"app"`
	Version   string    `json:"version"`
	Revision  string    `json:"revision"`
	BuiltBy   string    `json:"built-by"`
	BuildTime time.Time `json:"build-time,omitempty"`
	GoVersion string    `json:"go-version"`
	Platform  string    `json:"platform"`
}

// App returns app name.
func App() string {
	return app
}

// Version returns version string.
func Version() string {
	return version
}

// Get returns version data of the running binary.
func Get() BuildInfo {
	return BuildInfo{
		App:       app,
		Version:   version,
		Revision:  revision,
		BuiltBy:   fmt.Sprintf("%s@%s", buildUser, buildHost),
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Short returns app name and version.
func Short() string {
	return fmt.Sprintf(`%s %s`, app, version)
}

// UserAgent identifies the client in HTTP requests.
func UserAgent() string {
	return fmt.Sprintf("%s/%s (%s; %s)", app, version, revision, runtime.GOOS)
}

func BuiltOn() string {
	if buildTime.IsZero() {
		return "unknown"
	}
	return fmt.Sprintf("%s (%s)", buildTime.Format(time.UnixDate), timeAgo(buildTime))
}

// Detail returns string with detailed version info on separate lines.
func Detail() string {
	return fmt.Sprintf(`%s
  Version:   	%s
  Branch:   	%s
  Revision:  	%s
  Built By:  	%s@%s
  Build Date:	%s
  Go Runtime:	%s (%s/%s)`,
		app, version, gitBranch, revision,
		buildUser, buildHost, BuiltOn(),
		runtime.Version(), runtime.GOOS, runtime.GOARCH,
	)
}

func timeAgo(t time.Time) string {
	const timeDay = time.Hour * 24
	if ago := time.Since(t); ago > timeDay {
		return fmt.Sprintf("%v days ago", float64(ago.Round(timeDay)/timeDay))
	} else if ago > time.Hour {
		return fmt.Sprintf("%v hours ago", ago.Round(time.Hour).Hours())
	} else if ago > time.Minute {
		return fmt.Sprintf("%v minutes ago", ago.Round(time.Minute).Minutes())
	}
	return "just now"
}
