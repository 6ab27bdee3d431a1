package event

import "sync"

// Handler Each kind of event has his own handler
// Based on the Chain of responsibility pattern
type Handler interface {
	Handle(event Event)
}

// Counter is shared between handlers and read by the stats endpoint.
type Counter struct {
	mu     sync.Mutex
	values map[Type]uint64
	labels map[string]uint64
}

func NewCounter() *Counter {
	return &Counter{values: make(map[Type]uint64), labels: make(map[string]uint64)}
}

func (c *Counter) Increment(t Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[t]++
}

func (c *Counter) Get(t Type) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[t]
}

// IncrementLabel counts sub-kinds of an event, e.g. delivery states.
func (c *Counter) IncrementLabel(label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.labels[label]++
}

func (c *Counter) GetLabel(label string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.labels[label]
}
