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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ligato/cn-infra/logging"
	. "github.com/onsi/gomega"

	"github.com/ligato/jetstream/plugins/jetstream/api"
)

func get(router *Router, url string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func TestRestAPI(t *testing.T) {
	RegisterTestingT(t)
	router := NewRouter(logging.ForPlugin("rest-test"))
	client, server, _, root := connectedClient(UseDeps(func(deps *Deps) {
		deps.HTTPHandlers = router
	}))
	defer client.Close()

	// status
	rec := get(router, statusURL)
	Expect(rec.Code).To(Equal(http.StatusOK))
	var status ClientStatus
	Expect(json.Unmarshal(rec.Body.Bytes(), &status)).To(Succeed())
	Expect(status.Status).To(Equal("online"))
	Expect(status.SessionToken).To(Equal("token"))
	Expect(status.Scopes).To(HaveLen(1))

	// scopes
	rec = get(router, scopesURL)
	Expect(rec.Code).To(Equal(http.StatusOK))
	var scopes []ScopeInfo
	Expect(json.Unmarshal(rec.Body.Bytes(), &scopes)).To(Succeed())
	Expect(scopes).To(Equal(status.Scopes))

	// scope dump
	Expect(get(router, scopeURL).Code).To(Equal(http.StatusBadRequest))
	Expect(get(router, scopeURL+"?name=Unknown").Code).To(Equal(http.StatusNotFound))
	rec = get(router, scopeURL+"?name=Testing")
	Expect(rec.Code).To(Equal(http.StatusOK))
	Expect(rec.Body.String()).To(ContainSubstring(root.UUID().String()))

	// empty history
	rec = get(router, changeSetHistoryURL)
	Expect(rec.Code).To(Equal(http.StatusOK))
	Expect(rec.Body.String()).To(MatchJSON("[]"))

	Expect(client.Do(func() {
		root.MustSetProperty("string", "rest")
	})).To(Succeed())
	client.SendChanges()
	sync := server.adapter.LastSent().(*api.ScopeSync)
	server.replySync(sync.Index, api.FragmentReply{})

	rec = get(router, changeSetHistoryURL)
	Expect(rec.Code).To(Equal(http.StatusOK))
	var history RecordedChangeSets
	Expect(json.Unmarshal(rec.Body.Bytes(), &history)).To(Succeed())
	Expect(history).To(HaveLen(1))
	Expect(history[0].Outcome).To(Equal("completed"))

	rec = get(router, changeSetHistoryURL+"?format=text&seq-num=1")
	Expect(rec.Code).To(Equal(http.StatusOK))
	Expect(rec.Body.String()).To(ContainSubstring("- scope: Testing (index 1, message 2)"))
	Expect(rec.Body.String()).To(ContainSubstring("string: rest"))

	Expect(get(router, changeSetHistoryURL+"?seq-num=42").Code).To(Equal(http.StatusNotFound))
	Expect(get(router, changeSetHistoryURL+"?seq-num=x").Code).To(Equal(http.StatusBadRequest))
	Expect(get(router, changeSetHistoryURL+"?format=xml").Code).To(Equal(http.StatusBadRequest))
	Expect(get(router, changeSetHistoryURL+"?since=yesterday").Code).To(Equal(http.StatusBadRequest))

	// stats and version
	rec = get(router, statsURL)
	Expect(rec.Code).To(Equal(http.StatusOK))
	Expect(rec.Body.String()).To(ContainSubstring(`"jetstream"`))
	Expect(get(router, versionURL).Code).To(Equal(http.StatusOK))
	Expect(get(router, metricsURL).Code).To(Equal(http.StatusOK))
}

func TestRestClientClosed(t *testing.T) {
	RegisterTestingT(t)
	router := NewRouter(logging.ForPlugin("rest-test"))
	client, _ := newTestClient(UseDeps(func(deps *Deps) {
		deps.HTTPHandlers = router
	}))
	Expect(client.Close()).To(Succeed())

	Expect(get(router, statusURL).Code).To(Equal(http.StatusServiceUnavailable))
	Expect(get(router, scopeURL+"?name=Testing").Code).To(Equal(http.StatusServiceUnavailable))
}
