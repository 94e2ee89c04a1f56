package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

const indexHTML = `<!doctype html>
<html><head><meta charset="utf-8"><title>Omega AHRS</title>
<style>body{font-family:monospace;margin:2em}td{padding:0 1em}</style></head>
<body><h1>Omega AHRS</h1>
<table>
<tr><td>roll</td><td id="roll_deg">-</td></tr>
<tr><td>pitch</td><td id="pitch_deg">-</td></tr>
<tr><td>yaw</td><td id="yaw_deg">-</td></tr>
<tr><td>heading</td><td id="heading_deg">-</td></tr>
<tr><td>disturbance</td><td id="disturbance">-</td></tr>
<tr><td>e</td><td id="e">-</td></tr>
</table>
<p><a href="/api/status">/api/status</a> <a href="/api/logs?format=text">/api/logs</a></p>
<script>
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = (ev) => {
  const a = JSON.parse(ev.data);
  for (const k of ["roll_deg", "pitch_deg", "yaw_deg", "heading_deg", "e"]) {
    if (a[k] !== undefined) document.getElementById(k).textContent = a[k].toFixed(2);
  }
  document.getElementById("disturbance").textContent = a.disturbance || "-";
};
</script></body></html>
`

func Handler(status *Status, att *AttitudeBroadcaster, logs *LogBuffer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, status.Snapshot(time.Now().UTC()))
	})

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}

	mux.Handle("/ws", attitudeStreamHandler(att))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexHTML))
	})

	return mux
}

func Serve(ctx context.Context, listenAddr string, status *Status, att *AttitudeBroadcaster, logs *LogBuffer) error {
	if status == nil {
		status = NewStatus()
	}

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(status, att, logs),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.WithField("addr", listenAddr).Info("web server listening")

	select {
	case <-ctx.Done():
		// Hijacked websocket connections are not tracked by Shutdown; closing
		// the broadcaster ends their handlers.
		att.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
