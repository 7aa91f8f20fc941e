// Package bindings serves the UI binding values over HTTP and pushes changes over WebSocket.
package bindings

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"buildingheight.ai/internal/bindingproto"
	"buildingheight.ai/internal/host"
	"buildingheight.ai/internal/logging"
	"buildingheight.ai/internal/metrics"
	"buildingheight.ai/internal/settings"
	"buildingheight.ai/internal/sim/stats"
)

// Selector lets the admin surface drive selection (the scene in the harness).
type Selector interface {
	Resolve(ref string) (host.Entity, error)
	Select(e host.Entity) error
	ClearSelection()
}

type Config struct {
	State    *stats.State
	Settings *settings.Store
	Selector Selector // optional; POST /admin/v1/select answers 501 without it
	Logger   *slog.Logger
}

type client struct {
	id  string
	out chan []byte
}

type Server struct {
	settings *settings.Store
	render   *stats.Formatter
	selector Selector
	log      *slog.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*client
	last    bindingproto.Values
}

func NewServer(cfg Config) *Server {
	var src stats.SettingsSource
	if cfg.Settings != nil {
		src = cfg.Settings
	}
	s := &Server{
		settings: cfg.Settings,
		render:   stats.NewFormatter(cfg.State, src),
		selector: cfg.Selector,
		log:      logging.Or(cfg.Logger).With("component", "bindings"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: map[string]*client{},
	}
	if cfg.Settings != nil {
		cfg.Settings.OnChange(func(settings.Settings) { s.Publish() })
	}
	return s
}

// Register mounts every handler on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/v1/bindings", s.BootstrapHandler())
	mux.HandleFunc("/v1/bindings/ws", s.WSHandler())
	mux.HandleFunc("/v1/bindings/{name}", s.ValueHandler())
	mux.HandleFunc("/admin/v1/settings", s.SettingsHandler())
	mux.HandleFunc("/admin/v1/settings/reset", s.SettingsResetHandler())
	mux.HandleFunc("/admin/v1/select", s.SelectHandler())
}

func (s *Server) current() (bindingproto.Values, uint64) {
	r := s.render.Current()
	return bindingproto.Values{StatsText: r.StatsText, LayoutKind: r.LayoutKind}, r.Seq
}

func (s *Server) message(v bindingproto.Values, seq uint64) []byte {
	b, _ := json.Marshal(bindingproto.BindingsMsg{
		Type:            bindingproto.TypeBindings,
		ProtocolVersion: bindingproto.Version,
		Group:           bindingproto.Group,
		Seq:             seq,
		Values:          v,
	})
	return b
}

// Publish pushes the current values to every subscriber if they differ from the last push.
// Slow subscribers miss frames; they always receive whole values.
func (s *Server) Publish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, seq := s.current()
	if v == s.last {
		return false
	}
	s.last = v
	b := s.message(v, seq)
	for _, c := range s.clients {
		select {
		case c.out <- b:
		default:
			s.log.Debug("dropping bindings frame for slow client", "session", c.id)
		}
	}
	return true
}

// Clients is the number of subscribed WebSocket sessions.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		v, seq := s.current()
		writeJSON(rw, http.StatusOK, bindingproto.BootstrapResponse{
			ProtocolVersion: bindingproto.Version,
			Group:           bindingproto.Group,
			Seq:             seq,
			Values:          v,
		})
	}
}

func (s *Server) ValueHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		v, _ := s.current()
		val, ok := v.Get(r.PathValue("name"))
		if !ok {
			http.Error(rw, "unknown binding", http.StatusNotFound)
			return
		}
		rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = rw.Write([]byte(val))
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub bindingproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != bindingproto.TypeSubscribe || sub.ProtocolVersion != bindingproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		// Register and queue the current values under one lock so no Publish slips between.
		c := &client{id: uuid.NewString(), out: make(chan []byte, 8)}
		s.mu.Lock()
		v, seq := s.current()
		c.out <- s.message(v, seq)
		s.clients[c.id] = c
		s.mu.Unlock()
		metrics.BindingClients.Inc()
		s.log.Info("bindings client subscribed", "session", c.id, "remote", r.RemoteAddr)
		defer func() {
			s.mu.Lock()
			delete(s.clients, c.id)
			s.mu.Unlock()
			metrics.BindingClients.Dec()
			s.log.Info("bindings client left", "session", c.id)
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: a repeated SUBSCRIBE asks for the current values again.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			var again bindingproto.SubscribeMsg
			if err := json.Unmarshal(msg, &again); err != nil || again.Type != bindingproto.TypeSubscribe {
				continue
			}
			v, seq := s.current()
			select {
			case c.out <- s.message(v, seq):
			default:
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func settingsResponse(v settings.Settings) bindingproto.SettingsResponse {
	return bindingproto.SettingsResponse{
		HeightUnit:           v.HeightUnit.String(),
		SeaLevelOffsetMeters: v.SeaLevelOffsetMeters,
		SeaLevelOffsetFeet:   v.SeaLevelOffsetFeetDisplay(),
	}
}

func (s *Server) SettingsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		switch r.Method {
		case http.MethodGet:
			cur := settings.Defaults()
			if s.settings != nil {
				cur = s.settings.Settings()
			}
			writeJSON(rw, http.StatusOK, settingsResponse(cur))
		case http.MethodPut:
			if s.settings == nil {
				http.Error(rw, "settings are read-only", http.StatusNotImplemented)
				return
			}
			var up bindingproto.SettingsUpdate
			if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 4096)).Decode(&up); err != nil {
				http.Error(rw, "bad json", http.StatusBadRequest)
				return
			}
			next := s.settings.Settings()
			if up.HeightUnit != nil {
				u, err := settings.ParseHeightUnit(*up.HeightUnit)
				if err != nil {
					http.Error(rw, err.Error(), http.StatusBadRequest)
					return
				}
				next.HeightUnit = u
			}
			if up.SeaLevelOffsetMeters != nil {
				next.SeaLevelOffsetMeters = *up.SeaLevelOffsetMeters
			}
			saved, err := s.settings.Set(next)
			if err != nil {
				s.log.Error("saving settings failed", "err", err)
				http.Error(rw, "save failed", http.StatusInternalServerError)
				return
			}
			s.log.Info("settings updated", "height_unit", saved.HeightUnit.String(), "sea_level_offset_meters", saved.SeaLevelOffsetMeters)
			writeJSON(rw, http.StatusOK, settingsResponse(saved))
		default:
			rw.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func (s *Server) SettingsResetHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if s.settings == nil {
			http.Error(rw, "settings are read-only", http.StatusNotImplemented)
			return
		}
		saved, err := s.settings.Reset()
		if err != nil {
			s.log.Error("resetting settings failed", "err", err)
			http.Error(rw, "save failed", http.StatusInternalServerError)
			return
		}
		writeJSON(rw, http.StatusOK, settingsResponse(saved))
	}
}

func (s *Server) SelectHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		if s.selector == nil {
			http.Error(rw, "selection is not controllable", http.StatusNotImplemented)
			return
		}
		var req bindingproto.SelectRequest
		if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 4096)).Decode(&req); err != nil {
			http.Error(rw, "bad json", http.StatusBadRequest)
			return
		}
		if req.Clear {
			s.selector.ClearSelection()
			writeJSON(rw, http.StatusOK, bindingproto.SelectResponse{Entity: ""})
			return
		}
		e, err := s.selector.Resolve(req.Entity)
		if err == nil {
			err = s.selector.Select(e)
		}
		if err != nil {
			http.Error(rw, err.Error(), http.StatusNotFound)
			return
		}
		s.log.Info("selection overridden", "entity", e)
		writeJSON(rw, http.StatusOK, bindingproto.SelectResponse{Entity: e.String()})
	}
}

func writeJSON(rw http.ResponseWriter, code int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_ = json.NewEncoder(rw).Encode(v)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
