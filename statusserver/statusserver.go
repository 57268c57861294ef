/*
Copyright (C) 2026  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package statusserver exposes the live, non-resetting metrics snapshot over
// HTTP, plus a websocket feed that pushes the same snapshot on an interval,
// for operators watching a long-running conversion run.
package statusserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mozilla/telemetry-pipeline/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// pushInterval is how often the websocket feed sends a fresh snapshot.
const pushInterval = 2 * time.Second

// Server serves the status dashboard endpoints.
type Server struct {
	metrics *metrics.Collector
	http    *http.Server
}

// New builds a Server listening on addr (":port" or "host:port").
func New(addr string, m *metrics.Collector) *Server {
	s := &Server{metrics: m}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/status/stream", s.handleStream)
	s.http = &http.Server{
		Addr:           addr,
		Handler:        mux,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}
	return s
}

// Serve starts the HTTP server in the background.
func (s *Server) Serve() {
	go s.http.ListenAndServe()
}

// Close shuts the server down.
func (s *Server) Close() error {
	return s.http.Close()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.metrics.Peek())
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(pushInterval)
	defer ticker.Stop()
	for range ticker.C {
		if err := conn.WriteJSON(s.metrics.Peek()); err != nil {
			return
		}
	}
}
