package scene

import (
	"math"
	"math/rand/v2"
)

// Effect is a procedural animation advanced once per render tick.
type Effect interface {
	// Update advances the effect by dt seconds and reports whether it finished.
	Update(dt float64) bool
}

type runningEffect struct {
	name   string
	effect Effect
	onDone func()
}

// Effects is the set of running effects, keyed by name.
type Effects struct {
	running []runningEffect
}

// Start runs e under name, replacing any effect already using that name.
// onDone, if set, runs after the tick in which e finishes.
func (s *Effects) Start(name string, e Effect, onDone func()) {
	s.Stop(name)
	s.running = append(s.running, runningEffect{name: name, effect: e, onDone: onDone})
}

// Stop removes the named effect without calling its onDone.
func (s *Effects) Stop(name string) {
	for i, r := range s.running {
		if r.name == name {
			s.running = append(s.running[:i], s.running[i+1:]...)
			return
		}
	}
}

// Active reports whether the named effect is running.
func (s *Effects) Active(name string) bool {
	for _, r := range s.running {
		if r.name == name {
			return true
		}
	}
	return false
}

// Names returns the running effect names in start order.
func (s *Effects) Names() []string {
	out := make([]string, 0, len(s.running))
	for _, r := range s.running {
		out = append(out, r.name)
	}
	return out
}

// Clear stops every effect.
func (s *Effects) Clear() {
	s.running = nil
}

// Update advances every effect. Finished effects are removed before their
// onDone callbacks run, so callbacks may start new effects.
func (s *Effects) Update(dt float64) {
	var done []func()
	kept := s.running[:0]
	for _, r := range s.running {
		if r.effect.Update(dt) {
			if r.onDone != nil {
				done = append(done, r.onDone)
			}
			continue
		}
		kept = append(kept, r)
	}
	clear(s.running[len(kept):])
	s.running = kept
	for _, fn := range done {
		fn()
	}
}

// Spin rotates an object around Y at a constant rate.
type Spin struct {
	Target *Object
	Speed  float64 // rad/s
}

func (e *Spin) Update(dt float64) bool {
	e.Target.Rotation.Y += dt * e.Speed
	return false
}

// Sway rocks an object around Y: angle = sin(t*Freq)*Amplitude + Offset.
type Sway struct {
	Target    *Object
	Freq      float64
	Amplitude float64
	Offset    float64

	elapsed float64
}

// NewTreeSway returns the sway used for the revealed tree.
func NewTreeSway(target *Object) *Sway {
	s := &Sway{Target: target, Freq: 0.9, Amplitude: math.Pi / 6, Offset: -0.9}
	s.apply()
	return s
}

func (e *Sway) Update(dt float64) bool {
	e.elapsed += dt
	e.apply()
	return false
}

func (e *Sway) apply() {
	e.Target.Rotation.Y = math.Sin(e.elapsed*e.Freq)*e.Amplitude + e.Offset
}

// RingBurst grows a ring from nothing to MaxScale while fading it out.
type RingBurst struct {
	Target   *Object
	Duration float64
	MaxScale float64
	At       Vec3

	elapsed float64
}

// NewRingBurst returns the half-second burst played when the gift opens.
func NewRingBurst(target *Object) *RingBurst {
	return &RingBurst{Target: target, Duration: 0.5, MaxScale: 5, At: Vec3{0, 0, -15}}
}

func (e *RingBurst) Update(dt float64) bool {
	e.elapsed += dt
	e.Target.Position = e.At
	if e.elapsed < e.Duration {
		p := e.elapsed / e.Duration
		e.Target.Scale = p * e.MaxScale
		e.Target.Opacity = 1 - p
		e.Target.Visible = true
		return false
	}
	e.Target.Scale = 0
	e.Target.Opacity = 0
	e.Target.Visible = false
	return true
}

// Snowfall moves particles down and wraps them back above the scene.
type Snowfall struct {
	Target *Object
	Speed  float64
	Floor  float64
	Top    float64
}

// NewSnowfall returns the falling snow effect.
func NewSnowfall(target *Object) *Snowfall {
	return &Snowfall{Target: target, Speed: 0.2, Floor: -1, Top: 2}
}

func (e *Snowfall) Update(dt float64) bool {
	for i := range e.Target.Points {
		p := &e.Target.Points[i]
		p.Y -= dt * e.Speed
		if p.Y < e.Floor {
			p.Y = e.Top
		}
	}
	return false
}

// SnowPoints scatters n particles over x∈[-5,5), y∈[0,10), z∈[-15,-5).
func SnowPoints(n int, rng *rand.Rand) []Vec3 {
	pts := make([]Vec3, n)
	for i := range pts {
		pts[i] = Vec3{
			X: rng.Float64()*10 - 5,
			Y: rng.Float64() * 10,
			Z: rng.Float64()*10 - 15,
		}
	}
	return pts
}
