// Copyright (c) 2025 AndeLabs. All Rights Reserved.

package server

import (
	"net/http"
	"time"

	"github.com/AndeLabs/FlowClicker/pkg/leaderboard"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the game client is a public web page
	},
}

// WSFeed pushes global counter snapshots to connected game clients on a
// fixed interval. The feed is read-only; clicks go through the HTTP API.
type WSFeed struct {
	agg      *leaderboard.Aggregator
	interval time.Duration
}

// NewWSFeed creates a snapshot feed pushing every interval.
func NewWSFeed(agg *leaderboard.Aggregator, interval time.Duration) *WSFeed {
	return &WSFeed{agg: agg, interval: interval}
}

func (f *WSFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("failed to upgrade to websocket: %v", err)
		return
	}
	defer conn.Close()

	// Drain the read side so close frames and pings are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			state, err := f.agg.Snapshot(r.Context(), uint64(time.Now().Unix()))
			if err != nil {
				logrus.Errorf("failed to snapshot global state for websocket push: %v", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(state); err != nil {
				logrus.Debugf("websocket client gone: %v", err)
				return
			}
		}
	}
}
