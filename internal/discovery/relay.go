package discovery

import (
	"github.com/kuretru/hass-discovery-device/entity/hass"
	"github.com/kuretru/hass-discovery-device/internal/arena"
)

// Relay advertises one switch per relay channel.
type Relay struct {
	cursor
	relays Relays
	topics Topics
}

func NewRelay(ctx *Context, relays Relays, topics Topics) *Relay {
	return &Relay{
		cursor: cursor{ctx: ctx, count: relays.RelayCount()},
		relays: relays,
		topics: topics,
	}
}

func (r *Relay) UniqueID() string {
	if r.uniqueID == "" {
		r.uniqueID = r.ctx.Identifier() + "_relay_" + itoa(r.index)
	}
	return r.uniqueID
}

func (r *Relay) Topic() string {
	return r.configTopic(hass.DomainSwitch, r.UniqueID())
}

func (r *Relay) Message() (string, error) {
	return r.render(func(obj *arena.Object) error {
		if err := setDevice(obj, r.ctx); err != nil {
			return err
		}
		if err := setAvailability(obj, r.topics); err != nil {
			return err
		}
		return setAll(obj,
			pair{hass.FieldPayloadOn, r.relays.RelayPayload(true)},
			pair{hass.FieldPayloadOff, r.relays.RelayPayload(false)},
			pair{hass.FieldUniqueID, r.UniqueID()},
			pair{hass.FieldName, r.ctx.Name() + " " + itoa(r.index)},
			pair{hass.FieldStateTopic, r.topics.Topic("relay", itoa(r.index))},
			pair{hass.FieldCommandTopic, r.topics.SetterTopic("relay", itoa(r.index))},
		)
	})
}

func (r *Relay) Advance() bool {
	return r.advance()
}
