package controlplane

import (
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"btracked-go/instance"
	"btracked-go/manager"
	"btracked-go/simulation"
)

// writeWait bounds how long a single websocket write may block.
const writeWait = 10 * time.Second

// subscription is one active {name -> source} entry a session holds.
type subscription struct {
	name string
	stop func()
}

// Session is one /ws/listener connection: it holds zero or more named
// subscriptions and multiplexes their delivered payloads onto
// the single underlying websocket connection, tagged with a
// github.com/google/uuid session id for log correlation (ground: uuid
// appears across three of the five example repos).
type Session struct {
	id     string
	conn   *websocket.Conn
	mgr    *manager.Manager
	send   chan namedPayload
	active map[string]subscription
}

type namedPayload struct {
	name    string
	payload any
}

// NewSession wraps conn in a Session bound to mgr for instance/sim lookups.
func NewSession(conn *websocket.Conn, mgr *manager.Manager) *Session {
	return &Session{
		id:     uuid.NewString(),
		conn:   conn,
		mgr:    mgr,
		send:   make(chan namedPayload, 64),
		active: make(map[string]subscription),
	}
}

// Run drives the session until the connection closes: one goroutine
// reads subscription-set messages, the caller's goroutine (this one)
// writes outbound payloads.
func (s *Session) Run() {
	defer s.closeAll()
	go s.readLoop()

	for p := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		msg := map[string]any{p.name: p.payload}
		if err := s.conn.WriteJSON(msg); err != nil {
			log.Printf("warn: session %s write failed: %v", s.id, err)
			return
		}
	}
}

func (s *Session) readLoop() {
	defer close(s.send)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		set, err := parseSubscriptionSet(data)
		if err != nil {
			log.Printf("warn: session %s: %v", s.id, err)
			continue
		}
		s.replaceSubscriptions(set)
	}
}

// replaceSubscriptions tears down every currently active subscription
// not present in set, and (re)establishes each entry in set: a client
// sends its full desired subscription set on every update, not a diff.
func (s *Session) replaceSubscriptions(set subscriptionSet) {
	for name, sub := range s.active {
		if _, keep := set[name]; !keep {
			sub.stop()
			delete(s.active, name)
		}
	}
	for name, cfg := range set {
		if _, exists := s.active[name]; exists {
			continue
		}
		stop, err := s.subscribe(name, cfg)
		if err != nil {
			log.Printf("warn: session %s: subscribe %q: %v", s.id, name, err)
			continue
		}
		s.active[name] = subscription{name: name, stop: stop}
	}
}

func (s *Session) subscribe(name string, cfg ListenerConfig) (func(), error) {
	h, ok := s.mgr.GetInstance(cfg.InstanceName)
	if !ok {
		return nil, errInstanceNotFound(cfg.InstanceName)
	}

	switch cfg.Type {
	case listenerTypeTracking:
		ch, handle := h.AddStateListener(cfg.NumParticles)
		done := make(chan struct{})
		go func() {
			for {
				select {
				case v, ok := <-ch:
					if !ok {
						return
					}
					s.deliver(name, v)
				case <-done:
					return
				}
			}
		}()
		return func() { handle.Close(); close(done) }, nil

	case listenerTypeMeasurement:
		return s.subscribeMeasurement(name, h, cfg.Raw)

	case listenerTypeSim:
		sim, ok := s.mgr.GetSim(cfg.InstanceName, cfg.SimName)
		if !ok {
			return nil, errInstanceNotFound(cfg.InstanceName + "/" + cfg.SimName)
		}
		done := make(chan struct{})
		ticker := time.NewTicker(time.Duration(cfg.UpdateRateMs) * time.Millisecond)
		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					s.deliver(name, sim.GetState())
				case <-done:
					return
				}
			}
		}()
		return func() { close(done) }, nil

	default:
		return nil, errUnknownListenerType(cfg.Type)
	}
}

func (s *Session) subscribeMeasurement(name string, h *instance.Handle, raw bool) (func(), error) {
	done := make(chan struct{})
	if raw {
		ch, handle := h.AddRawMeasurementListener()
		go func() {
			for {
				select {
				case v, ok := <-ch:
					if !ok {
						return
					}
					s.deliver(name, v)
				case <-done:
					return
				}
			}
		}()
		return func() { handle.Close(); close(done) }, nil
	}
	ch, handle := h.AddMeasurementListener()
	go func() {
		for {
			select {
			case v, ok := <-ch:
				if !ok {
					return
				}
				s.deliver(name, v)
			case <-done:
				return
			}
		}
	}()
	return func() { handle.Close(); close(done) }, nil
}

func (s *Session) deliver(name string, payload any) {
	select {
	case s.send <- namedPayload{name: name, payload: payload}:
	default:
		log.Printf("warn: session %s send buffer full, dropping update for %q", s.id, name)
	}
}

func (s *Session) closeAll() {
	for _, sub := range s.active {
		sub.stop()
	}
	s.conn.Close()
}

type notFoundError string

func (e notFoundError) Error() string { return "controlplane: not found: " + string(e) }

func errInstanceNotFound(name string) error { return notFoundError(name) }

type listenerTypeError string

func (e listenerTypeError) Error() string { return "controlplane: unknown listener type: " + string(e) }

func errUnknownListenerType(t string) error { return listenerTypeError(t) }
