package clock

import (
	"sync"
	"time"
)

// Clock abstracts wall-clock reads so schedulers can be tested with a
// controllable time source.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func New() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

// Adjustable is a manually driven clock for tests.
type Adjustable struct {
	mu  sync.RWMutex
	now time.Time
}

func NewAdjustable(start time.Time) *Adjustable {
	return &Adjustable{now: start}
}

func (c *Adjustable) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *Adjustable) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *Adjustable) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
