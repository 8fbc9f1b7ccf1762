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
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/ligato/cn-infra/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/render"

	"github.com/ligato/jetstream/pkg/metrics"
	"github.com/ligato/jetstream/pkg/version"
)

const (
	// prefix used for REST urls of the client.
	urlPrefix = "/jetstream/"

	// statusURL is URL used to obtain status of the client and its session.
	statusURL = urlPrefix + "status"

	// scopesURL is URL used to list scopes attached to the session.
	scopesURL = urlPrefix + "scopes"

	// scopeURL is URL used to dump nodes of a fetched scope.
	scopeURL = urlPrefix + "scope"

	// nameArg is the name of the argument used to select scope for "scope" API.
	nameArg = "name"

	// changeSetHistoryURL is URL used to obtain the change set history.
	changeSetHistoryURL = urlPrefix + "change-set-history"

	// sinceArg is the name of the argument used to define the start of the time
	// window for the change set history to display.
	sinceArg = "since"

	// untilArg is the name of the argument used to define the end of the time
	// window for the change set history to display.
	untilArg = "until"

	// seqNumArg is the name of the argument used to define the sequence number
	// of the change set to display (changeSetHistoryURL).
	seqNumArg = "seq-num"

	// formatArg is the name of the argument used to set the output format
	// for the change set history API.
	formatArg = "format"

	// recognized formats:
	formatJSON = "json"
	formatText = "text"

	// statsURL is URL used to obtain statistics registered in pkg/metrics.
	statsURL = urlPrefix + "stats"

	// versionURL is URL used to obtain build info.
	versionURL = urlPrefix + "version"

	// metricsURL is URL of the Prometheus metrics.
	metricsURL = "/metrics"
)

// HandlerProvider is a function used for registering handlers via HTTPHandlers.
type HandlerProvider func(formatter *render.Render) http.HandlerFunc

// HTTPHandlers is a registry of REST handlers.
type HTTPHandlers interface {
	// RegisterHTTPHandler registers handler provided by <provider> at <path>.
	RegisterHTTPHandler(path string, provider HandlerProvider, methods ...string) *mux.Route
}

// Router implements HTTPHandlers with gorilla mux.
type Router struct {
	log       logging.Logger
	mx        *mux.Router
	formatter *render.Render
}

// NewRouter returns an empty router with indenting JSON formatter.
func NewRouter(log logging.Logger) *Router {
	return &Router{
		log: log,
		mx:  mux.NewRouter(),
		formatter: render.New(render.Options{
			IndentJSON: true,
		}),
	}
}

// RegisterHTTPHandler registers HTTP handler at the given path.
func (r *Router) RegisterHTTPHandler(path string, provider HandlerProvider, methods ...string) *mux.Route {
	r.log.Debug("Registering handler: ", path)

	return r.mx.Handle(path, provider(r.formatter)).Methods(methods...)
}

// ServeHTTP dispatches the request to the registered handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mx.ServeHTTP(w, req)
}

// errorString wraps string representation of an error that, unlike the original
// error, can be marshalled.
type errorString struct {
	Error string
}

// registerHandlers registers all supported REST APIs.
func (c *Client) registerHandlers(http HTTPHandlers) {
	if http == nil {
		c.Log.Warn("No http handler provided, skipping registration of Jetstream REST handlers")
		return
	}
	http.RegisterHTTPHandler(statusURL, c.statusGetHandler, "GET")
	http.RegisterHTTPHandler(scopesURL, c.scopesGetHandler, "GET")
	http.RegisterHTTPHandler(scopeURL, c.scopeGetHandler, "GET")
	http.RegisterHTTPHandler(changeSetHistoryURL, c.changeSetHistoryGetHandler, "GET")
	http.RegisterHTTPHandler(statsURL, c.statsGetHandler, "GET")
	http.RegisterHTTPHandler(versionURL, c.versionGetHandler, "GET")
	http.RegisterHTTPHandler(metricsURL, metricsHandler, "GET")
}

// statusGetHandler is the GET handler for "status" API.
func (c *Client) statusGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		status, err := c.GetStatus()
		if err != nil {
			c.logError(formatter.JSON(w, http.StatusServiceUnavailable, errorString{err.Error()}))
			return
		}
		c.logError(formatter.JSON(w, http.StatusOK, status))
	}
}

// scopesGetHandler is the GET handler for "scopes" API.
func (c *Client) scopesGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		status, err := c.GetStatus()
		if err != nil {
			c.logError(formatter.JSON(w, http.StatusServiceUnavailable, errorString{err.Error()}))
			return
		}
		c.logError(formatter.JSON(w, http.StatusOK, status.Scopes))
	}
}

// scopeGetHandler is the GET handler for "scope" API.
func (c *Client) scopeGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		args := req.URL.Query()

		// parse mandatory *name* argument
		names, withName := args[nameArg]
		if !withName || len(names) != 1 {
			err := errors.New("missing name argument")
			c.logError(formatter.JSON(w, http.StatusBadRequest, errorString{err.Error()}))
			return
		}

		nodes, found, err := c.DumpScope(names[0])
		if err != nil {
			c.logError(formatter.JSON(w, http.StatusServiceUnavailable, errorString{err.Error()}))
			return
		}
		if !found {
			err := errors.New("scope with such name is not fetched")
			c.logError(formatter.JSON(w, http.StatusNotFound, errorString{err.Error()}))
			return
		}
		c.logError(formatter.JSON(w, http.StatusOK, nodes))
	}
}

// changeSetHistoryGetHandler is the GET handler for "change-set-history" API.
func (c *Client) changeSetHistoryGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		var since, until time.Time
		args := req.URL.Query()

		// parse optional *format* argument (default = JSON)
		format := formatJSON
		if formatStr, withFormat := args[formatArg]; withFormat && len(formatStr) == 1 {
			format = formatStr[0]
			if format != formatJSON && format != formatText {
				err := errors.New("unrecognized output format")
				c.logError(formatter.JSON(w, http.StatusBadRequest, errorString{err.Error()}))
				return
			}
		}

		// parse optional *seq-num* argument
		if seqNumStr, withSeqNum := args[seqNumArg]; withSeqNum && len(seqNumStr) == 1 {
			seqNum, err := strconv.ParseUint(seqNumStr[0], 10, 64)
			if err != nil {
				c.logError(formatter.JSON(w, http.StatusBadRequest, errorString{err.Error()}))
				return
			}

			// sequence number takes precedence over the since-until time window
			record := c.getRecordedChangeSet(uint(seqNum))
			if record == nil {
				err := errors.New("change set with such sequence is not recorded")
				c.logError(formatter.JSON(w, http.StatusNotFound, errorString{err.Error()}))
				return
			}

			if format == formatJSON {
				c.logError(formatter.JSON(w, http.StatusOK, record))
			} else {
				c.logError(formatter.Text(w, http.StatusOK, record.StringWithOpts(false, 0)))
			}
			return
		}

		// parse optional *until* argument
		if untilStr, withUntil := args[untilArg]; withUntil && len(untilStr) == 1 {
			var err error
			until, err = stringToTime(untilStr[0])
			if err != nil {
				c.logError(formatter.JSON(w, http.StatusBadRequest, errorString{err.Error()}))
				return
			}
		}

		// parse optional *since* argument
		if sinceStr, withSince := args[sinceArg]; withSince && len(sinceStr) == 1 {
			var err error
			since, err = stringToTime(sinceStr[0])
			if err != nil {
				c.logError(formatter.JSON(w, http.StatusBadRequest, errorString{err.Error()}))
				return
			}
		}

		history := c.getChangeSetHistory(since, until)
		if format == formatJSON {
			if history == nil {
				history = RecordedChangeSets{}
			}
			c.logError(formatter.JSON(w, http.StatusOK, history))
		} else {
			c.logError(formatter.Text(w, http.StatusOK, history.StringWithOpts(false, 0)))
		}
	}
}

// statsGetHandler is the GET handler for "stats" API.
func (c *Client) statsGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		all := make(map[string]interface{})
		for _, name := range metrics.Registered() {
			data, err := metrics.Retrieve(name)
			if err != nil {
				c.logError(formatter.JSON(w, http.StatusInternalServerError, errorString{err.Error()}))
				return
			}
			all[name] = data
		}
		c.logError(formatter.JSON(w, http.StatusOK, all))
	}
}

// versionGetHandler is the GET handler for "version" API.
func (c *Client) versionGetHandler(formatter *render.Render) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		c.logError(formatter.JSON(w, http.StatusOK, version.Get()))
	}
}

// metricsHandler serves Prometheus metrics.
func metricsHandler(formatter *render.Render) http.HandlerFunc {
	return promhttp.Handler().ServeHTTP
}

// logError logs non-nil errors from JSON formatter
func (c *Client) logError(err error) {
	if err != nil {
		c.Log.Error(err)
	}
}

// stringToTime converts Unix timestamp from string to time.Time.
func stringToTime(s string) (time.Time, error) {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0), nil
}
