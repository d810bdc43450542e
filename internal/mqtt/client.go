// Package mqtt is the bus client of the device. It wraps an autopaho
// connection manager and surfaces every event (connection changes, incoming
// messages, publish acknowledgements) on the device loop.
package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/kuretru/hass-discovery-device/entity"
)

const (
	defaultKeepalive   = 60
	defaultMaxInflight = 8
	publishTimeout     = 30 * time.Second
)

// Poster runs functions on the device loop.
type Poster interface {
	Post(fn func()) bool
}

// transport is the subset of the connection manager used once connected.
type transport interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
	Subscribe(ctx context.Context, s *paho.Subscribe) (*paho.Suback, error)
	Unsubscribe(ctx context.Context, u *paho.Unsubscribe) (*paho.Unsuback, error)
}

// Client is owned by the loop: apart from Start, Stop and Reconnect every
// method must be called from a function running on it.
type Client struct {
	config entity.MQTTConfig
	loop   Poster
	logger *slog.Logger
	router *paho.StandardRouter

	// loop state
	link          transport
	session       uint64
	connected     bool
	inflight      int
	nextID        uint16
	pending       map[uint16]func()
	subscriptions map[string]struct{}
	onConnect     []func()
	onDisconnect  []func()
	onMessage     []func(topic, payload string)

	lock sync.Mutex
	cm   *autopaho.ConnectionManager
}

// NewClient does not connect, call Start for that. config.Topic must
// already be the resolved root topic of the device.
func NewClient(config entity.MQTTConfig, loop Poster, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Keepalive == 0 {
		config.Keepalive = defaultKeepalive
	}
	if config.MaxInflight <= 0 {
		config.MaxInflight = defaultMaxInflight
	}
	c := &Client{
		config:        config,
		loop:          loop,
		logger:        logger,
		router:        paho.NewStandardRouter(),
		pending:       make(map[uint16]func()),
		subscriptions: make(map[string]struct{}),
	}
	c.router.DefaultHandler(func(publish *paho.Publish) {
		c.logger.Warn("MQTT: message received without hit any route", "topic", publish.Topic)
	})
	return c
}

// StatusTopic is where availability is announced, also used for the will.
func (c *Client) StatusTopic() string {
	return c.config.Topic + "/" + c.config.Status
}

func (c *Client) OnConnect(fn func()) {
	c.onConnect = append(c.onConnect, fn)
}

func (c *Client) OnDisconnect(fn func()) {
	c.onDisconnect = append(c.onDisconnect, fn)
}

func (c *Client) OnMessage(fn func(topic, payload string)) {
	c.onMessage = append(c.onMessage, fn)
}

func (c *Client) Connected() bool {
	return c.connected
}

// Start connects in the background. autopaho keeps reconnecting until Stop.
func (c *Client) Start(ctx context.Context) error {
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return fmt.Errorf("MQTT: parse mqtt url failed: %v, %w", c.config.URL, err)
	}

	clientConfig := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{u},
		KeepAlive:       c.config.Keepalive,
		ConnectUsername: c.config.Username,
		ConnectPassword: []byte(c.config.Password),
		// a clean session on every start, subscriptions are replayed on connect
		CleanStartOnInitialConnection: true,
		SessionExpiryInterval:         60,
		WillMessage: &paho.WillMessage{
			Topic:   c.StatusTopic(),
			Payload: []byte(c.config.Offline),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.logger.Info("MQTT: connected to server", "server", c.config.URL)
			c.loop.Post(func() {
				c.connectionUp(cm)
			})
		},
		OnConnectError: func(err error) {
			c.logger.Error("MQTT: connect failed", "err", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.config.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(publishReceived paho.PublishReceived) (bool, error) {
					c.router.Route(publishReceived.Packet.Packet())
					return true, nil
				}},
			OnClientError: func(err error) {
				c.logger.Info("MQTT: client error", "err", err)
				c.loop.Post(c.connectionDown)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				if d.Properties != nil && d.Properties.ReasonString != "" {
					c.logger.Error("MQTT: server requested disconnect", "reason", d.Properties.ReasonString)
				} else {
					c.logger.Error("MQTT: server requested disconnect", "reasonCode", d.ReasonCode)
				}
				c.loop.Post(c.connectionDown)
			},
		},
	}
	if u.Scheme == "mqtts" || u.Scheme == "ssl" || u.Scheme == "tls" {
		clientConfig.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, clientConfig)
	if err != nil {
		return fmt.Errorf("MQTT: NewConnection failed, %w", err)
	}
	c.lock.Lock()
	c.cm = cm
	c.lock.Unlock()
	c.logger.Info("MQTT: initialized", "server", c.config.URL, "status", c.StatusTopic())
	return nil
}

// Stop announces the device offline and disconnects.
func (c *Client) Stop(ctx context.Context) error {
	c.lock.Lock()
	cm := c.cm
	c.cm = nil
	c.lock.Unlock()
	if cm == nil {
		return nil
	}

	c.loop.Post(c.connectionDown)
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   c.StatusTopic(),
		Payload: []byte(c.config.Offline),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		c.logger.Warn("MQTT: publish offline status failed", "err", err)
	}
	if err := cm.Disconnect(ctx); err != nil {
		return fmt.Errorf("MQTT: disconnect failed, %w", err)
	}
	c.logger.Info("MQTT: stopped")
	return nil
}

// Reconnect drops the connection and starts a new one in the background.
func (c *Client) Reconnect(ctx context.Context) {
	go func() {
		if err := c.Stop(ctx); err != nil {
			c.logger.Warn("MQTT: reconnect", "err", err)
		}
		if err := c.Start(ctx); err != nil {
			c.logger.Error("MQTT: reconnect failed", "err", err)
		}
	}()
}

func (c *Client) connectionUp(link transport) {
	c.link = link
	c.session++
	c.connected = true

	status := &paho.Publish{
		Topic:   c.StatusTopic(),
		Payload: []byte(c.config.Online),
		QoS:     1,
		Retain:  true,
	}
	subscriptions := make([]paho.SubscribeOptions, 0, len(c.subscriptions))
	for topic := range c.subscriptions {
		subscriptions = append(subscriptions, paho.SubscribeOptions{Topic: topic, QoS: 1})
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if _, err := link.Publish(ctx, status); err != nil {
			c.logger.Warn("MQTT: publish online status failed", "err", err)
		}
		if len(subscriptions) == 0 {
			return
		}
		if _, err := link.Subscribe(ctx, &paho.Subscribe{Subscriptions: subscriptions}); err != nil {
			c.logger.Error("MQTT: subscribe failed", "err", err)
		}
	}()

	for _, fn := range c.onConnect {
		fn()
	}
}

func (c *Client) connectionDown() {
	if !c.connected {
		return
	}
	c.logger.Info("MQTT: disconnected")
	c.connected = false
	c.link = nil
	c.inflight = 0
	clear(c.pending)
	for _, fn := range c.onDisconnect {
		fn()
	}
}

// Publish hands the message to the broker connection without waiting. It
// returns the id to pass to OnDelivered and false when the message was not
// accepted: disconnected, or too many messages are in flight.
func (c *Client) Publish(topic, payload string, retain bool, qos byte) (uint16, bool) {
	if !c.connected || c.link == nil {
		return 0, false
	}
	if c.inflight >= c.config.MaxInflight {
		c.logger.Debug("MQTT: publish rejected, too many in flight", "topic", topic, "inflight", c.inflight)
		return 0, false
	}

	id := c.allocID()
	c.inflight++
	link, session := c.link, c.session
	message := &paho.Publish{
		Topic:   topic,
		Payload: []byte(payload),
		QoS:     qos,
		Retain:  retain,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		_, err := link.Publish(ctx, message)
		c.loop.Post(func() {
			c.delivered(session, id, err)
		})
	}()
	return id, true
}

// OnDelivered registers fn to run once when the broker acknowledges id.
// Failed and unacknowledged publishes never call it.
func (c *Client) OnDelivered(id uint16, fn func()) {
	c.pending[id] = fn
}

// PublishState is the fire and forget variant used for state topics.
func (c *Client) PublishState(topic, payload string, retain bool) {
	if _, ok := c.Publish(topic, payload, retain, 0); !ok {
		c.logger.Debug("MQTT: state publish dropped", "topic", topic)
	}
}

func (c *Client) delivered(session uint64, id uint16, err error) {
	// a stale acknowledgement from a connection that is gone
	if !c.connected || session != c.session {
		return
	}
	c.inflight--
	fn, ok := c.pending[id]
	delete(c.pending, id)
	if err != nil {
		c.logger.Warn("MQTT: publish failed", "id", id, "err", err)
		return
	}
	if ok {
		fn()
	}
}

func (c *Client) allocID() uint16 {
	for {
		c.nextID++
		if c.nextID == 0 {
			continue
		}
		if _, used := c.pending[c.nextID]; !used {
			return c.nextID
		}
	}
}

// Subscribe routes topic to the message handlers and subscribes now when
// connected, otherwise on the next connect.
func (c *Client) Subscribe(topic string) {
	if _, ok := c.subscriptions[topic]; !ok {
		c.subscriptions[topic] = struct{}{}
		c.router.RegisterHandler(topic, func(publish *paho.Publish) {
			topic, payload := publish.Topic, string(publish.Payload)
			c.loop.Post(func() {
				c.dispatch(topic, payload)
			})
		})
	}
	if !c.connected || c.link == nil {
		return
	}
	link := c.link
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if _, err := link.Subscribe(ctx, &paho.Subscribe{
			Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: 1}},
		}); err != nil {
			c.logger.Error("MQTT: subscribe failed", "topic", topic, "err", err)
			return
		}
		c.logger.Info("MQTT: subscribed to", "topic", topic)
	}()
}

func (c *Client) Unsubscribe(topic string) {
	if _, ok := c.subscriptions[topic]; !ok {
		return
	}
	delete(c.subscriptions, topic)
	c.router.UnregisterHandler(topic)
	if !c.connected || c.link == nil {
		return
	}
	link := c.link
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if _, err := link.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{topic}}); err != nil {
			c.logger.Warn("MQTT: unsubscribe failed", "topic", topic, "err", err)
		}
	}()
}

func (c *Client) dispatch(topic, payload string) {
	for _, fn := range c.onMessage {
		fn(topic, payload)
	}
}
