package core

import "time"

// Clock measures elapsed seconds since Start.
type Clock struct {
	start   time.Time
	elapsed float64
	running bool
}

func NewClock() *Clock {
	return &Clock{}
}

// Update refreshes the elapsed time. Should be called just before reading
// Elapsed. Has no effect on a stopped clock.
func (c *Clock) Update() {
	if c.running {
		c.elapsed = time.Since(c.start).Seconds()
	}
}

// Start resets the clock and starts it.
func (c *Clock) Start() {
	c.start = time.Now()
	c.elapsed = 0
	c.running = true
}

// Stop stops the clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.running = false
}

func (c *Clock) Elapsed() float64 {
	return c.elapsed
}
