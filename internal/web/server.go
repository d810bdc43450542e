// Package web serves the admin surface: a health probe, the Home Assistant
// settings and a websocket channel for actions and settings updates.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/kuretru/hass-discovery-device/entity"
)

const (
	actionPublish = "ha-publish"
	settingPrefix = "ha"

	writeTimeout    = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

type Module interface {
	Snapshot() map[string]any
	Publish(state bool)
}

type Settings interface {
	Set(key, value string) error
	Reload()
}

// State reports when the device state last changed.
type State interface {
	LastSeen() time.Time
}

// Runner executes fn on the device loop and waits for it.
type Runner func(fn func())

// inbound is a websocket message from a client.
type inbound struct {
	Action   string         `json:"action,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
}

type outbound struct {
	HA     map[string]any `json:"ha,omitempty"`
	Error  string         `json:"error,omitempty"`
	Denied []string       `json:"denied,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type Server struct {
	config   entity.WebConfig
	module   Module
	settings Settings
	state    State
	run      Runner
	logger   *slog.Logger
	router   chi.Router
}

func New(config entity.WebConfig, module Module, settings Settings, state State, run Runner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:   config,
		module:   module,
		settings: settings,
		state:    state,
		run:      run,
		logger:   logger,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/ha", s.handleSettings)
		r.Post("/ha/publish", s.handlePublish)
	})
	r.Get("/ws", s.handleWebSocket)
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("Web: listening", "addr", s.config.Listen)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("Web: serve failed, %w", err)
	}
	return nil
}

func (s *Server) snapshot() map[string]any {
	var snapshot map[string]any
	s.run(func() { snapshot = s.module.Snapshot() })
	return snapshot
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]string{"status": "ok"}
	if lastSeen := s.state.LastSeen(); !lastSeen.IsZero() {
		body["last_seen"] = lastSeen.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, outbound{HA: s.snapshot()})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var body struct {
		State *bool `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.State == nil {
		writeJSON(w, http.StatusBadRequest, outbound{Error: "state is required"})
		return
	}
	s.run(func() { s.module.Publish(*body.State) })
	writeJSON(w, http.StatusAccepted, outbound{HA: s.snapshot()})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Web: websocket upgrade failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()
	s.logger.Debug("Web: websocket client connected", "remote", r.RemoteAddr)

	if err = s.send(conn, outbound{HA: s.snapshot()}); err != nil {
		return
	}
	for {
		var message inbound
		if err = conn.ReadJSON(&message); err != nil {
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				s.logger.Debug("Web: websocket read failed", "err", err)
			}
			return
		}
		if err = s.send(conn, s.handleMessage(message)); err != nil {
			return
		}
	}
}

func (s *Server) handleMessage(message inbound) outbound {
	if message.Action != "" {
		if message.Action != actionPublish {
			return outbound{Error: "unknown action " + message.Action}
		}
		state, ok := message.Data["state"].(bool)
		if !ok {
			return outbound{Error: "state is required"}
		}
		s.run(func() { s.module.Publish(state) })
		return outbound{HA: s.snapshot()}
	}

	if len(message.Settings) > 0 {
		return s.updateSettings(message.Settings)
	}
	return outbound{Error: "empty message"}
}

// updateSettings stores the "ha" keys, reports the others as denied and
// applies the result.
func (s *Server) updateSettings(values map[string]any) outbound {
	var denied []string
	var err error
	s.run(func() {
		for key, raw := range values {
			if !strings.HasPrefix(key, settingPrefix) {
				denied = append(denied, key)
				continue
			}
			if err = s.settings.Set(key, stringify(raw)); err != nil {
				return
			}
		}
		s.settings.Reload()
	})
	if err != nil {
		s.logger.Error("Web: save settings failed", "err", err)
		return outbound{Error: err.Error()}
	}
	return outbound{HA: s.snapshot(), Denied: denied}
}

func (s *Server) send(conn *websocket.Conn, message outbound) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(message); err != nil {
		s.logger.Debug("Web: websocket write failed", "err", err)
		return err
	}
	return nil
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
