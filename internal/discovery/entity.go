package discovery

import (
	"strconv"
	"strings"

	"github.com/kuretru/hass-discovery-device/entity"
	"github.com/kuretru/hass-discovery-device/entity/hass"
	"github.com/kuretru/hass-discovery-device/internal/arena"
)

// Entity enumerates one family of sub-entities. Topic and Message are
// computed once per cursor position and cached until Advance.
type Entity interface {
	// OK reports whether the cursor points at a sub-entity.
	OK() bool
	Topic() string
	Message() (string, error)
	// Advance moves the cursor and reports whether another sub-entity exists.
	Advance() bool
}

type Relays interface {
	RelayCount() int
	RelayPayload(on bool) string
}

type Lights interface {
	LightChannels() int
	LightHasColor() bool
	LightHasWarmWhite() bool
	LightHasColdWhite() bool
	LightHasWhite() bool
	LightMiredsRange() (cold, warm int)
}

type Sensors interface {
	MagnitudeCount() int
	MagnitudeInfo(index int) entity.Magnitude
}

// Topics describes the device's own topic layout.
type Topics struct {
	Root    string
	Setter  string
	Status  string
	Online  string
	Offline string
}

func (t Topics) Topic(parts ...string) string {
	if len(parts) == 0 {
		return t.Root
	}
	return t.Root + "/" + strings.Join(parts, "/")
}

func (t Topics) SetterTopic(parts ...string) string {
	return t.Topic(parts...) + t.Setter
}

func (t Topics) Availability() string {
	return t.Topic(t.Status)
}

// cursor is the shared part of every family.
type cursor struct {
	ctx   *Context
	index int
	count int

	uniqueID string
	topic    string
	message  string
}

func (c *cursor) OK() bool {
	return c.count > 0 && c.index < c.count
}

// advance is called by the families after their own bookkeeping.
func (c *cursor) advance() bool {
	next := false
	if c.index < c.count {
		c.index++
		next = c.index < c.count
	}
	c.uniqueID, c.topic, c.message = "", "", ""
	return next
}

func (c *cursor) configTopic(domain, uniqueID string) string {
	if c.topic == "" {
		c.topic = c.ctx.Prefix() + "/" + domain + "/" + uniqueID + "/config"
	}
	return c.topic
}

// render builds the message for the current cursor position unless it is
// already cached.
func (c *cursor) render(fill func(*arena.Object) error) (string, error) {
	if c.message != "" {
		return c.message, nil
	}
	root, err := c.ctx.Object()
	if err != nil {
		return "", err
	}
	if err = fill(root); err != nil {
		return "", err
	}
	if c.message, err = root.String(); err != nil {
		return "", err
	}
	return c.message, nil
}

type pair struct {
	key   string
	value any
}

func setAll(obj *arena.Object, pairs ...pair) error {
	for _, p := range pairs {
		if err := obj.Set(p.key, p.value); err != nil {
			return err
		}
	}
	return nil
}

func setDevice(obj *arena.Object, ctx *Context) error {
	return obj.SetRaw(hass.FieldDevice, ctx.Device().Block())
}

func setAvailability(obj *arena.Object, topics Topics) error {
	return setAll(obj,
		pair{hass.FieldAvailabilityTopic, topics.Availability()},
		pair{hass.FieldPayloadAvailable, topics.Online},
		pair{hass.FieldPayloadUnavailable, topics.Offline},
	)
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
