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

package websocket

import "github.com/prometheus/client_golang/prometheus"

var (
	messagesResent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ligato",
		Subsystem: "jetstream_websocket",
		Name:      "messages_resent",
		Help:      "The total number of non-acknowledged messages resent on server request.",
	})
	connectAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ligato",
		Subsystem: "jetstream_websocket",
		Name:      "connect_attempts",
		Help:      "The total number of dial attempts by result.",
	},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(messagesResent)
	prometheus.MustRegister(connectAttempts)
}
