package ws

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// newUpgrader accepts any origin when allowed is empty or contains "*".
func newUpgrader(allowed []string) websocket.Upgrader {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	_, wildcard := set["*"]

	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(set) == 0 || wildcard {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := set[origin]
			return ok
		},
	}
}
