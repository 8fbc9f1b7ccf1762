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

// Package debug controls profiling and the debug HTTP server of jetstream
// processes through environment variables.
package debug

import (
	_ "expvar"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strings"

	"github.com/ligato/cn-infra/logging"
	"github.com/pkg/profile"
)

const (
	envDebug       = "JETSTREAM_DEBUG"
	envProfileMode = "JETSTREAM_PROFILE_MODE"
	envProfilePath = "JETSTREAM_PROFILE_PATH"
	envServerAddr  = "JETSTREAM_DEBUG_ADDR"
)

// Stopper stops what Start started.
type Stopper interface {
	Stop()
}

type session struct {
	closer func()
	server *http.Server
}

// Start begins profiling if JETSTREAM_PROFILE_MODE is one of cpu, mem, block,
// mutex or trace, and serves pprof and expvar on JETSTREAM_DEBUG_ADDR if set.
func Start(log logging.Logger) Stopper {
	s := &session{}
	s.runProfiling(log)
	s.runServer(log)
	return s
}

func (s *session) Stop() {
	if s.closer != nil {
		s.closer()
	}
	if s.server != nil {
		s.server.Close()
	}
}

func (s *session) runProfiling(log logging.Logger) {
	var profiling func(*profile.Profile)

	mode := strings.ToLower(os.Getenv(envProfileMode))
	switch mode {
	case "cpu":
		profiling = profile.CPUProfile
	case "mem":
		profiling = profile.MemProfile
	case "mutex":
		profiling = profile.MutexProfile
	case "block":
		profiling = profile.BlockProfile
	case "trace":
		profiling = profile.TraceProfile
	case "":
		return
	default:
		log.Warnf("Unknown profile mode %q", mode)
		return
	}

	opts := []func(*profile.Profile){
		profiling,
		profile.NoShutdownHook,
		profile.Quiet,
	}
	if path := os.Getenv(envProfilePath); path != "" {
		opts = append(opts, profile.ProfilePath(path))
	}
	s.closer = profile.Start(opts...).Stop
	log.Infof("Profiling %s", mode)
}

func (s *session) runServer(log logging.Logger) {
	addr := os.Getenv(envServerAddr)
	if addr == "" {
		return
	}
	s.server = &http.Server{Addr: addr, Handler: http.DefaultServeMux}
	log.Infof("Debug server listening on %s", addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Debug server error: %v", err)
		}
	}()
}

// IsEnabled checks whether JETSTREAM_DEBUG is set.
func IsEnabled() bool {
	return os.Getenv(envDebug) != ""
}

// IsEnabledFor returns true if JETSTREAM_DEBUG contains all sections
// (comma separated, e.g. "transport,scope").
func IsEnabledFor(sections ...string) bool {
	env := os.Getenv(envDebug)
	if env == "" {
		return false
	}
	enabled := strings.Split(env, ",")
	for _, s := range sections {
		found := false
		for _, e := range enabled {
			if strings.TrimSpace(e) == s || strings.TrimSpace(e) == "all" {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
