package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	wsWriteWait      = 2 * time.Second
	wsPongWait       = 30 * time.Second
	wsPingPeriod     = wsPongWait * 9 / 10
	wsMessageBuffer  = 8
	wsSocketBufSize  = 1024
	wsMaxInboundSize = 512
)

var upgrader = websocket.Upgrader{ReadBufferSize: wsSocketBufSize, WriteBufferSize: wsSocketBufSize}

// attitudeStreamHandler upgrades to a websocket and writes one JSON
// AttitudeSnapshot per published sample until either side goes away.
func attitudeStreamHandler(b *AttitudeBroadcaster) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b == nil {
			http.Error(w, "attitude stream unavailable", http.StatusNotFound)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already replied with an HTTP error.
			log.WithError(err).Debug("websocket upgrade failed")
			return
		}
		defer conn.Close()

		id, ch := b.Subscribe(wsMessageBuffer)
		defer b.Unsubscribe(id)
		log.WithField("remote", r.RemoteAddr).Debug("websocket client joined")

		// Clients only send control frames; the reader exists to process
		// pongs and notice disconnects.
		done := make(chan struct{})
		conn.SetReadLimit(wsMaxInboundSize)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(wsPingPeriod)
		defer ping.Stop()
		for {
			select {
			case <-done:
				return
			case att, ok := <-ch:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
						time.Now().Add(wsWriteWait))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(att); err != nil {
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	})
}
