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
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ligato/jetstream/pkg/scope"
	"github.com/ligato/jetstream/plugins/jetstream/api"
)

// Set of raw Prometheus metrics.
// Labels
// * msg_type
// * outcome
// Do not increment directly, use report* methods.
var (
	messagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ligato",
		Subsystem: "jetstream",
		Name:      "messages_sent",
		Help:      "The total number of messages sent to the server.",
	},
		[]string{"msg_type"},
	)
	messagesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ligato",
		Subsystem: "jetstream",
		Name:      "messages_received",
		Help:      "The total number of messages received from the server.",
	},
		[]string{"msg_type"},
	)
	duplicatesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ligato",
		Subsystem: "jetstream",
		Name:      "duplicates_dropped",
		Help:      "The total number of already seen messages dropped.",
	})
	gapsDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ligato",
		Subsystem: "jetstream",
		Name:      "gaps_detected",
		Help:      "The total number of out of order messages that triggered reconnect.",
	})
	changeSetsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ligato",
		Subsystem: "jetstream",
		Name:      "change_sets_processed",
		Help:      "The total number of change sets by outcome.",
	},
		[]string{"outcome"},
	)
	changeSetDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ligato",
		Subsystem: "jetstream",
		Name:      "change_set_duration_seconds",
		Help:      "Bucketed histogram of round-trip time of change sets by outcome.",
	},
		[]string{"outcome"},
	)
	queueLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ligato",
		Subsystem: "jetstream",
		Name:      "queue_length",
		Help:      "The number of change sets waiting for the server.",
	})
	waitingReplies = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ligato",
		Subsystem: "jetstream",
		Name:      "waiting_replies",
		Help:      "The number of sent messages waiting for a reply.",
	})
	sessionsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ligato",
		Subsystem: "jetstream",
		Name:      "sessions_created",
		Help:      "The total number of sessions granted by the server.",
	})
)

func init() {
	prometheus.MustRegister(messagesSent)
	prometheus.MustRegister(messagesReceived)
	prometheus.MustRegister(duplicatesDropped)
	prometheus.MustRegister(gapsDetected)
	prometheus.MustRegister(changeSetsProcessed)
	prometheus.MustRegister(changeSetDurationSeconds)
	prometheus.MustRegister(queueLength)
	prometheus.MustRegister(waitingReplies)
	prometheus.MustRegister(sessionsCreated)
}

func reportSent(typ api.MessageType) {
	messagesSent.WithLabelValues(string(typ)).Inc()
}

func reportReceived(typ api.MessageType) {
	messagesReceived.WithLabelValues(string(typ)).Inc()
}

func reportDuplicate() {
	duplicatesDropped.Inc()
}

func reportGap() {
	gapsDetected.Inc()
}

func reportChangeSet(state scope.State, sec float64) {
	changeSetsProcessed.WithLabelValues(state.String()).Inc()
	changeSetDurationSeconds.WithLabelValues(state.String()).Observe(sec)
}

func reportQueueLength(n int) {
	queueLength.Set(float64(n))
}

func reportWaitingReplies(n int) {
	waitingReplies.Set(float64(n))
}

func reportSessionCreated() {
	sessionsCreated.Inc()
}
