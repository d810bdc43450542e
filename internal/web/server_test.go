package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuretru/hass-discovery-device/entity"
)

type fakeModule struct {
	lock      sync.Mutex
	published []bool
}

func (m *fakeModule) Snapshot() map[string]any {
	return map[string]any{"haEnabled": true, "haPrefix": "homeassistant"}
}

func (m *fakeModule) Publish(state bool) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.published = append(m.published, state)
}

type fakeSettings struct {
	values  map[string]string
	reloads int
}

func (s *fakeSettings) Set(key, value string) error {
	s.values[key] = value
	return nil
}

func (s *fakeSettings) Reload() { s.reloads++ }

type fakeState struct {
	lastSeen time.Time
}

func (s *fakeState) LastSeen() time.Time { return s.lastSeen }

func newTestServer(t *testing.T) (*httptest.Server, *fakeModule, *fakeSettings) {
	t.Helper()
	module := &fakeModule{}
	settings := &fakeSettings{values: make(map[string]string)}
	var lock sync.Mutex
	run := func(fn func()) {
		lock.Lock()
		defer lock.Unlock()
		fn()
	}
	state := &fakeState{lastSeen: time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)}
	server := httptest.NewServer(New(entity.WebConfig{}, module, settings, state, run, nil).Handler())
	t.Cleanup(server.Close)
	return server, module, settings
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) outbound {
	t.Helper()
	var message outbound
	require.NoError(t, conn.ReadJSON(&message))
	return message
}

func TestWebSocketSendsSnapshotOnConnect(t *testing.T) {
	server, _, _ := newTestServer(t)
	conn := dial(t, server)

	message := readMessage(t, conn)
	assert.Equal(t, true, message.HA["haEnabled"])
	assert.Equal(t, "homeassistant", message.HA["haPrefix"])
}

func TestWebSocketPublishAction(t *testing.T) {
	server, module, _ := newTestServer(t)
	conn := dial(t, server)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "ha-publish", "data": map[string]any{"state": false}}))
	assert.NotNil(t, readMessage(t, conn).HA)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "ha-publish", "data": map[string]any{}}))
	assert.Equal(t, "state is required", readMessage(t, conn).Error)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "reboot"}))
	assert.Equal(t, "unknown action reboot", readMessage(t, conn).Error)

	module.lock.Lock()
	defer module.lock.Unlock()
	assert.Equal(t, []bool{false}, module.published)
}

func TestWebSocketSettingsOnlyAcceptsHomeAssistantKeys(t *testing.T) {
	server, _, settings := newTestServer(t)
	conn := dial(t, server)
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"settings": map[string]any{
		"haEnabled": false,
		"haPrefix":  "hass",
		"wifiPass":  "secret",
	}}))
	reply := readMessage(t, conn)
	assert.Equal(t, []string{"wifiPass"}, reply.Denied)
	assert.Equal(t, map[string]string{"haEnabled": "0", "haPrefix": "hass"}, settings.values)
	assert.Equal(t, 1, settings.reloads)
}

func TestHTTPEndpoints(t *testing.T) {
	server, module, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	_ = resp.Body.Close()
	assert.Equal(t, map[string]string{"status": "ok", "last_seen": "2026-10-18T09:30:00Z"}, health)

	resp, err = http.Get(server.URL + "/api/ha")
	require.NoError(t, err)
	var body outbound
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	_ = resp.Body.Close()
	assert.Equal(t, "homeassistant", body.HA["haPrefix"])

	resp, err = http.Post(server.URL+"/api/ha/publish", "application/json", strings.NewReader(`{"state":true}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.Post(server.URL+"/api/ha/publish", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	module.lock.Lock()
	defer module.lock.Unlock()
	assert.Equal(t, []bool{true}, module.published)
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "1", stringify(true))
	assert.Equal(t, "0", stringify(false))
	assert.Equal(t, "42", stringify(float64(42)))
	assert.Equal(t, "1.5", stringify(1.5))
	assert.Equal(t, "x", stringify("x"))
	assert.Equal(t, "", stringify(nil))
}
