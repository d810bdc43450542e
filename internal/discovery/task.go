package discovery

import (
	"log/slog"
)

type State int

const (
	// Disabled publishes empty payloads to retract earlier configs.
	Disabled State = iota
	Enabled
)

func (s State) String() string {
	if s == Enabled {
		return "enabled"
	}
	return "disabled"
}

// Retries is the retry budget, refilled whenever an entity is fully sent.
const Retries = 5

// PublishFunc submits one message and reports whether the bus accepted it.
type PublishFunc func(topic, payload string) bool

// Task is one discovery run. It is consumed front to back and never reused.
type Task struct {
	retries  int
	state    State
	entities []Entity
	ctx      *Context
	logger   *slog.Logger
}

func NewTask(ctx *Context, state State, logger *slog.Logger) *Task {
	if logger == nil {
		logger = slog.Default()
	}
	return &Task{
		retries: Retries,
		state:   state,
		ctx:     ctx,
		logger:  logger,
	}
}

// Add puts entity at the front of the queue.
func (t *Task) Add(entity Entity) {
	t.entities = append([]Entity{entity}, t.entities...)
}

func (t *Task) State() State {
	return t.state
}

func (t *Task) Context() *Context {
	return t.ctx
}

func (t *Task) Len() int {
	return len(t.entities)
}

// Retry consumes one retry and reports whether any are left.
func (t *Task) Retry() bool {
	if t.retries <= 0 {
		return false
	}
	t.retries--
	return t.retries > 0
}

// Done reports whether the retries are exhausted or nothing is queued.
func (t *Task) Done() bool {
	return t.retries <= 0 || len(t.entities) == 0
}

// OK reports whether the task is still running but none of the queued
// entities has anything left to send.
func (t *Task) OK() bool {
	if t.Done() {
		return false
	}
	for _, entity := range t.entities {
		if entity.OK() {
			return false
		}
	}
	return true
}

func (t *Task) pop() {
	t.entities[0] = nil
	t.entities = t.entities[1:]
	t.ctx.Reset()
}

// prune pops the entities at the front that have nothing to send.
func (t *Task) prune() {
	for len(t.entities) > 0 && !t.entities[0].OK() {
		t.pop()
	}
}

// Send publishes the current sub-entity of the front entity. Entities with
// nothing to send are dropped on the way. It returns true when publish
// accepted the message; a rejected message is offered again on the next
// call.
func (t *Task) Send(publish PublishFunc) bool {
	if t.retries <= 0 {
		return false
	}
	for {
		t.prune()
		if len(t.entities) == 0 {
			return false
		}
		entity := t.entities[0]

		topic := entity.Topic()
		payload := ""
		if t.state == Enabled {
			var err error
			if payload, err = entity.Message(); err != nil {
				t.logger.Error("Discovery: build message failed, entity dropped", "topic", topic, "err", err)
				t.pop()
				continue
			}
		}

		if !publish(topic, payload) {
			return false
		}

		if !entity.Advance() {
			t.retries = Retries
			t.pop()
			t.prune()
		} else {
			// the next sub-entity renders into a clean arena
			t.ctx.Reset()
		}
		return true
	}
}
