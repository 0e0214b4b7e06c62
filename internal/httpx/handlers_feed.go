package httpx

import (
	"net/http"

	"local.dev/nexboard-backend/internal/ws"
)

// GET /ws/feed: live feed stream. The client receives the current feed on
// connect, then every rebuilt feed after each backend push.
func HandleFeedWS(app *AppCtx) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(app.Hub, w, r)
	}
}

// GET /healthz
func HandleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
