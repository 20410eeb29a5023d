package controlplane

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"btracked-go/manager"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server wires the /ws/listener push channel to a Manager. It does not
// implement the map/filter/signal-configuration REST surface itself —
// callers mount their own "/api" handlers on top of the same mux and
// drive them directly against manager.Manager / store.
type Server struct {
	mgr *manager.Manager
}

// NewServer builds a Server bound to mgr.
func NewServer(mgr *manager.Manager) *Server {
	return &Server{mgr: mgr}
}

// Start registers the push channel on a fresh ServeMux (plain
// net/http.ServeMux, no router library, matching teacher web/server.go)
// and serves it on port.
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/listener", s.serveListener)

	addr := fmt.Sprintf(":%d", port)
	log.Printf("control plane listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}

func (s *Server) serveListener(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("warn: websocket upgrade failed: %v", err)
		return
	}
	session := NewSession(conn, s.mgr)
	session.Run()
}
