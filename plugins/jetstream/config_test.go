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
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/gomega"
)

func writeConfig(content string) (path string, cleanup func()) {
	dir, err := ioutil.TempDir("", "jetstream-config")
	Expect(err).ToNot(HaveOccurred())
	path = filepath.Join(dir, "jetstream.conf")
	Expect(ioutil.WriteFile(path, []byte(content), 0644)).To(Succeed())
	return path, func() { os.RemoveAll(dir) }
}

func TestLoadConfig(t *testing.T) {
	RegisterTestingT(t)
	path, cleanup := writeConfig(`
url: ws://localhost:9000/jetstream
headers:
  Authorization: Bearer abc
change-interval: 250ms
ping-interval: 5s
ping-variance: 1s
session-params:
  user: tester
change-set-history-limit: 10
snapshot:
  enabled: true
  ttl: 1h
`)
	defer cleanup()

	cfg, err := LoadConfig(path)
	Expect(err).ToNot(HaveOccurred())
	Expect(cfg.URL).To(Equal("ws://localhost:9000/jetstream"))
	Expect(cfg.Headers).To(HaveKeyWithValue("Authorization", "Bearer abc"))
	Expect(cfg.ChangeInterval).To(Equal(250 * time.Millisecond))
	Expect(cfg.PingInterval).To(Equal(5 * time.Second))
	Expect(cfg.PingVariance).To(Equal(time.Second))
	Expect(cfg.SessionParams).To(HaveKeyWithValue("user", "tester"))
	Expect(cfg.ChangeSetHistoryLimit).To(Equal(10))
	Expect(cfg.Snapshot.Enabled).To(BeTrue())
	Expect(cfg.Snapshot.TTL).To(Equal(time.Hour))

	// untouched values keep defaults
	Expect(cfg.ReconnectDelay).To(Equal(defaultReconnectDelay))
	Expect(cfg.RecordChangeSetHistory).To(BeTrue())
	Expect(cfg.Snapshot.KeyPrefix).To(Equal(defaultSnapshotKeyPrefix))
}

func TestLoadConfigWithoutPath(t *testing.T) {
	RegisterTestingT(t)
	cfg, err := LoadConfig("")
	Expect(err).ToNot(HaveOccurred())
	Expect(cfg).To(Equal(DefaultConfig()))
}

func TestInvalidConfig(t *testing.T) {
	RegisterTestingT(t)
	for _, content := range []string{
		"change-interval: 0s",
		"ping-interval: -1s",
		"ping-variance: 20s",
		"reconnect-delay: -5ms",
		"change-set-history-limit: -1",
		"ping-interval: often",
	} {
		path, cleanup := writeConfig(content)
		_, err := LoadConfig(path)
		cleanup()
		Expect(err).To(HaveOccurred(), content)
	}

	_, err := LoadConfig("/nonexistent/jetstream.conf")
	Expect(err).To(HaveOccurred())
}
