package discovery

import (
	"github.com/kuretru/hass-discovery-device/entity"
	"github.com/kuretru/hass-discovery-device/entity/hass"
	"github.com/kuretru/hass-discovery-device/internal/arena"
)

// Sensor advertises one sensor per reported magnitude.
type Sensor struct {
	cursor
	sensors Sensors
	topics  Topics
	info    entity.Magnitude
}

func NewSensor(ctx *Context, sensors Sensors, topics Topics) *Sensor {
	s := &Sensor{
		cursor:  cursor{ctx: ctx, count: sensors.MagnitudeCount()},
		sensors: sensors,
		topics:  topics,
	}
	if s.count > 0 {
		s.info = sensors.MagnitudeInfo(0)
	}
	return s
}

func (s *Sensor) UniqueID() string {
	if s.uniqueID == "" {
		s.uniqueID = s.ctx.Identifier() + "_" + s.info.Type + "_" + itoa(s.info.Index)
	}
	return s.uniqueID
}

func (s *Sensor) Topic() string {
	return s.configTopic(hass.DomainSensor, s.UniqueID())
}

func (s *Sensor) Message() (string, error) {
	return s.render(func(obj *arena.Object) error {
		if err := setDevice(obj, s.ctx); err != nil {
			return err
		}
		if err := setAvailability(obj, s.topics); err != nil {
			return err
		}
		return setAll(obj,
			pair{hass.FieldUniqueID, s.UniqueID()},
			pair{hass.FieldName, s.ctx.Name() + " " + s.info.Type + " " + itoa(s.info.Index)},
			pair{hass.FieldStateTopic, s.topics.Topic(s.info.Topic)},
			pair{hass.FieldUnitOfMeasurement, s.info.Units},
		)
	})
}

func (s *Sensor) Advance() bool {
	next := s.advance()
	if next {
		s.info = s.sensors.MagnitudeInfo(s.index)
	} else {
		s.info = entity.Magnitude{}
	}
	return next
}
