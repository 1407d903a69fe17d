package websocket

import (
	"net/http"
	"strings"

	ws "github.com/coder/websocket"
)

const topicPrefix = "sync-"

// HandleWebSocket upgrades GET /realtime?topic=sync-<household> and streams
// that household's change events until the client goes away.
func HandleWebSocket(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topic := r.URL.Query().Get("topic")
		if !strings.HasPrefix(topic, topicPrefix) || len(topic) == len(topicPrefix) {
			http.Error(w, "topic must be sync-<household_id>", http.StatusBadRequest)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			hub.logger.Warn("websocket accept", "topic", topic, "error", err)
			return
		}
		defer conn.CloseNow()

		NewClient(hub, conn, topic).Run(r.Context())
	}
}
