// v0
// internal/override/channel.go
package override

import (
	"context"
	"errors"
	"sync"

	"nrgchamp/greenhouse/internal/model"
)

var ErrQueueFull = errors.New("override queue is full")

// DefaultCapacity bounds the number of pending commands.
const DefaultCapacity = 64

// Channel carries operator commands from any number of producers to the
// pipeline, which is the only consumer. Pending steps accumulate on the
// drain side and persist until a reset command clears them.
type Channel struct {
	events chan Command
	inc    model.Steps

	steps model.Steps

	quitOnce sync.Once
	quit     chan struct{}
}

// NewChannel builds a channel with room for capacity pending commands.
func NewChannel(capacity int, increments model.Steps) *Channel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Channel{
		events: make(chan Command, capacity),
		inc:    increments,
		quit:   make(chan struct{}),
	}
}

// Submit enqueues cmd, blocking while the queue is full.
func (c *Channel) Submit(ctx context.Context, cmd Command) error {
	if cmd == Quit {
		c.requestQuit()
		return nil
	}
	select {
	case c.events <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit enqueues cmd or fails with ErrQueueFull.
func (c *Channel) TrySubmit(cmd Command) error {
	if cmd == Quit {
		c.requestQuit()
		return nil
	}
	select {
	case c.events <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Drain folds every pending command into the accumulated steps and returns
// them with the commands consumed. It never blocks.
func (c *Channel) Drain() (model.Steps, []Command) {
	var cmds []Command
	for {
		select {
		case cmd := <-c.events:
			c.steps = apply(c.steps, cmd, c.inc)
			cmds = append(cmds, cmd)
		default:
			return c.steps, cmds
		}
	}
}

// Quit is closed once the first quit command arrives.
func (c *Channel) Quit() <-chan struct{} { return c.quit }

func (c *Channel) requestQuit() {
	c.quitOnce.Do(func() { close(c.quit) })
}
