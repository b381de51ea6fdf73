package render

import "time"

// Clock measures the time between render ticks.
type Clock struct {
	now     func() time.Time
	last    time.Time
	started bool
	elapsed float64
}

// NewClock returns a clock reading now, or time.Now when now is nil.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Delta returns the seconds since the previous call. The first call starts
// the clock and returns 0.
func (c *Clock) Delta() float64 {
	t := c.now()
	if !c.started {
		c.started = true
		c.last = t
		return 0
	}
	d := t.Sub(c.last).Seconds()
	c.last = t
	if d < 0 {
		d = 0
	}
	c.elapsed += d
	return d
}

// Elapsed returns the sum of all deltas.
func (c *Clock) Elapsed() float64 { return c.elapsed }

// Reset makes the next Delta return 0.
func (c *Clock) Reset() {
	c.started = false
	c.elapsed = 0
}
