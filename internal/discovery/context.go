// Package discovery advertises relays, lights and sensors to Home Assistant
// using MQTT discovery.
//
// A Task owns a queue of Entity values, one per family. Each Entity is a
// cursor over the members of its family and renders one config message at a
// time into the Context arena. The Driver publishes those messages one by
// one, waits for the broker to confirm each of them and restarts the whole
// run when the retry budget is spent.
package discovery

import (
	"encoding/json"

	"github.com/kuretru/hass-discovery-device/entity"
	"github.com/kuretru/hass-discovery-device/entity/hass"
	"github.com/kuretru/hass-discovery-device/internal/arena"
)

// DefaultCapacity fits the largest message (the light, with every color
// mode) with room to spare.
const DefaultCapacity = 2048

// Normalize makes value usable both as a topic level and as a unique id.
// Digits and lowercase letters are kept, uppercase letters are kept or
// lowered, everything else becomes '_'. A NUL byte ends the value.
func Normalize(value string, lower bool) string {
	out := []byte(value)
	for i, c := range out {
		switch {
		case c == 0:
			return string(out[:i])
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
			if lower {
				out[i] = c + ('a' - 'A')
			}
		default:
			out[i] = '_'
		}
	}
	return string(out)
}

// Descriptor is the identity of this device for one discovery run.
type Descriptor struct {
	Name         string
	Identifier   string
	Prefix       string
	Version      string
	Manufacturer string
	Model        string

	block []byte
}

func NewDescriptor(hostname, identifier, prefix string, build entity.BuildInfo) *Descriptor {
	d := &Descriptor{
		Name:         Normalize(hostname, false),
		Identifier:   Normalize(identifier, true),
		Prefix:       prefix,
		Version:      build.Version,
		Manufacturer: build.Manufacturer,
		Model:        build.Model,
	}
	d.block, _ = json.Marshal(hass.DeviceBlock{
		Name:         d.Name,
		Identifiers:  []string{d.Identifier},
		Version:      d.Version,
		Manufacturer: d.Manufacturer,
		Model:        d.Model,
	})
	return d
}

// Block is the encoded device block shared by every config message.
func (d *Descriptor) Block() []byte {
	return d.block
}

// Context pairs the device descriptor with the arena all messages of a run
// are built in. Objects returned by Object are invalid after Reset.
type Context struct {
	device   *Descriptor
	capacity int
	arena    *arena.Arena
}

func NewContext(device *Descriptor, capacity int) *Context {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Context{device: device, capacity: capacity}
}

func (c *Context) Device() *Descriptor {
	return c.device
}

func (c *Context) Name() string {
	return c.device.Name
}

func (c *Context) Prefix() string {
	return c.device.Prefix
}

func (c *Context) Identifier() string {
	return c.device.Identifier
}

func (c *Context) Capacity() int {
	return c.capacity
}

// Size is zero until the first Object call.
func (c *Context) Size() int {
	if c.arena == nil {
		return 0
	}
	return c.arena.Size()
}

// Object returns a fresh object, allocating the arena on first use.
func (c *Context) Object() (*arena.Object, error) {
	if c.arena == nil {
		c.arena = arena.New(c.capacity)
	}
	return c.arena.Object()
}

func (c *Context) Reset() {
	if c.arena != nil {
		c.arena.Reset()
	}
}
