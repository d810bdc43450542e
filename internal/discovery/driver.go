package discovery

import (
	"log/slog"
	"time"
)

const (
	WaitShort   = 100 * time.Millisecond
	WaitRestart = 30 * time.Second

	// QoS 1 makes the broker acknowledge every config message.
	QoS byte = 1
)

// Bus is the part of the MQTT client the driver needs.
type Bus interface {
	Connected() bool
	// Publish returns the message id and whether the message was accepted.
	Publish(topic, payload string, retain bool, qos byte) (uint16, bool)
	// OnDelivered registers a one-shot callback for the acknowledgement of id.
	OnDelivered(id uint16, fn func())
}

// Timer runs callbacks on the same goroutine as every other Driver call.
type Timer interface {
	ScheduleOnce(d time.Duration, fn func())
	Stop()
	Active() bool
}

// Builder makes a new task from the current state of the entity providers.
type Builder func(State) *Task

// run is the handle of one scheduled task. confirmed is flipped by the
// delivery callback of the last publish.
type run struct {
	task      *Task
	confirmed bool
}

// Driver feeds a Task to the bus one message at a time. It is not safe for
// concurrent use: every method, the timer callbacks and the delivery
// callbacks must run on one goroutine.
type Driver struct {
	bus    Bus
	timer  Timer
	build  Builder
	logger *slog.Logger

	retain   bool
	sentOnce bool
	current  *run
}

func NewDriver(bus Bus, timer Timer, build Builder, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		bus:    bus,
		timer:  timer,
		build:  build,
		logger: logger,
	}
}

func (d *Driver) SetRetain(retain bool) {
	d.retain = retain
}

// SentOnce reports whether a run finished since the last disconnect.
func (d *Driver) SentOnce() bool {
	return d.sentOnce
}

// Active reports whether a run is scheduled.
func (d *Driver) Active() bool {
	return d.timer.Active()
}

// PublishForState starts a new run, replacing the scheduled one.
func (d *Driver) PublishForState(state State) {
	if !d.bus.Connected() {
		return
	}

	task := d.build(state)
	if task.Done() {
		d.logger.Info("Discovery: no entities available", "state", state)
		return
	}
	d.Schedule(WaitShort, task)
}

func (d *Driver) Schedule(wait time.Duration, task *Task) {
	d.logger.Debug("Discovery: scheduled", "state", task.State(), "wait", wait)
	d.schedule(wait, &run{task: task, confirmed: true})
}

// Stop cancels the current run and forgets that discovery was sent.
func (d *Driver) Stop() {
	d.timer.Stop()
	d.current = nil
	d.sentOnce = false
}

func (d *Driver) schedule(wait time.Duration, r *run) {
	d.current = r
	d.timer.ScheduleOnce(wait, func() {
		d.step(r)
	})
}

func (d *Driver) restart(state State) {
	d.logger.Warn("Discovery: too many retries, restarting", "state", state, "wait", WaitRestart)
	d.Schedule(WaitRestart, d.build(state))
}

func (d *Driver) step(r *run) {
	if r != d.current {
		return
	}

	if !d.bus.Connected() || r.task.Done() {
		d.logger.Info("Discovery: stopping", "state", r.task.State(), "empty", r.task.Len() == 0)
		d.timer.Stop()
		d.current = nil
		d.sentOnce = true
		return
	}

	if !r.confirmed {
		d.retryOrRestart(r)
		return
	}

	var id uint16
	accepted := r.task.Send(func(topic, payload string) bool {
		var ok bool
		id, ok = d.bus.Publish(topic, payload, d.retain, QoS)
		if ok {
			d.logger.Debug("Discovery: published", "topic", topic, "id", id, "size", len(payload))
		}
		return ok
	})

	if accepted {
		r.confirmed = false
		d.bus.OnDelivered(id, func() {
			r.confirmed = true
		})
		d.schedule(WaitShort, r)
		return
	}

	d.retryOrRestart(r)
}

func (d *Driver) retryOrRestart(r *run) {
	if r.task.Retry() {
		d.schedule(WaitShort, r)
		return
	}
	d.restart(r.task.State())
}
