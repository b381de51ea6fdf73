// Package animation plays named clips for one actor and crossfades between them.
package animation

// LoopMode controls what a clip does when it reaches its duration.
type LoopMode int

const (
	// LoopRepeat wraps the local time back to zero.
	LoopRepeat LoopMode = iota
	// LoopOnce stops at the duration and fires the finished event.
	LoopOnce
)

func (m LoopMode) String() string {
	if m == LoopOnce {
		return "once"
	}
	return "repeat"
}

// Clip describes one animation of an actor.
type Clip struct {
	Name     string
	Duration float64 // seconds
	Loop     LoopMode

	// Fallback is faded to when a LoopOnce clip finishes. Empty means none.
	Fallback     string
	FallbackFade float64
}

// Action is the playback state of one clip inside a Mixer.
type Action struct {
	clip    Clip
	time    float64
	weight  float64
	running bool

	fading       bool
	fadeFrom     float64
	fadeTo       float64
	fadeElapsed  float64
	fadeDuration float64
}

// Clip returns the clip this action plays.
func (a *Action) Clip() Clip { return a.clip }

// Time returns the local playback time in seconds.
func (a *Action) Time() float64 { return a.time }

// Weight returns the current blend weight in [0, 1].
func (a *Action) Weight() float64 { return a.weight }

// IsRunning reports whether the action advances on Update.
func (a *Action) IsRunning() bool { return a.running }

// IsFading reports whether a weight fade is in progress.
func (a *Action) IsFading() bool { return a.fading }

// Reset rewinds the action to time zero and starts it.
func (a *Action) Reset() *Action {
	a.time = 0
	a.running = true
	return a
}

// Play starts the action without rewinding.
func (a *Action) Play() *Action {
	a.running = true
	return a
}

// Stop halts the action and drops its weight.
func (a *Action) Stop() *Action {
	a.running = false
	a.weight = 0
	a.fading = false
	return a
}

// SetWeight sets the weight immediately, cancelling any fade.
func (a *Action) SetWeight(w float64) *Action {
	a.weight = clamp01(w)
	a.fading = false
	return a
}

// FadeIn ramps the weight from 0 to 1 over d seconds.
func (a *Action) FadeIn(d float64) *Action {
	return a.fade(0, 1, d)
}

// FadeOut ramps the weight from its current value to 0 over d seconds.
func (a *Action) FadeOut(d float64) *Action {
	return a.fade(a.weight, 0, d)
}

func (a *Action) fade(from, to, d float64) *Action {
	if d <= 0 {
		a.fading = false
		a.weight = to
		if to == 0 {
			a.running = false
		}
		return a
	}
	a.fading = true
	a.fadeFrom = from
	a.fadeTo = to
	a.fadeElapsed = 0
	a.fadeDuration = d
	a.weight = from
	return a
}

// advance moves time and fade forward. It reports whether a LoopOnce clip
// reached its end during this step.
func (a *Action) advance(dt float64) bool {
	if a.fading {
		a.fadeElapsed += dt
		progress := a.fadeElapsed / a.fadeDuration
		if progress >= 1 {
			a.weight = a.fadeTo
			a.fading = false
			if a.fadeTo == 0 {
				a.running = false
			}
		} else {
			a.weight = a.fadeFrom + (a.fadeTo-a.fadeFrom)*progress
		}
	}

	if !a.running {
		return false
	}

	a.time += dt
	d := a.clip.Duration
	if d <= 0 {
		return false
	}

	switch a.clip.Loop {
	case LoopOnce:
		if a.time >= d {
			a.time = d
			a.running = false
			return true
		}
	default:
		for a.time >= d {
			a.time -= d
		}
	}
	return false
}

// FinishedFunc is called when a LoopOnce action reaches its end.
type FinishedFunc func(clip string)

// Mixer owns one Action per clip and advances them together.
// It is not safe for concurrent use; the scene loop owns it.
type Mixer struct {
	actions   map[string]*Action
	order     []string
	listeners []FinishedFunc
}

// NewMixer creates a mixer with an idle action for each clip. Later clips
// with a duplicate name are ignored.
func NewMixer(clips []Clip) *Mixer {
	m := &Mixer{actions: make(map[string]*Action, len(clips))}
	for _, c := range clips {
		if _, ok := m.actions[c.Name]; ok {
			continue
		}
		m.actions[c.Name] = &Action{clip: c}
		m.order = append(m.order, c.Name)
	}
	return m
}

// Action returns the action for a clip name.
func (m *Mixer) Action(name string) (*Action, bool) {
	a, ok := m.actions[name]
	return a, ok
}

// Clips returns the clip names in declaration order.
func (m *Mixer) Clips() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// OnFinished registers a listener for the finished event.
func (m *Mixer) OnFinished(fn FinishedFunc) {
	m.listeners = append(m.listeners, fn)
}

// StopAll stops every action.
func (m *Mixer) StopAll() {
	for _, a := range m.actions {
		a.Stop()
	}
}

// Update advances every action by dt seconds. Finished events are
// dispatched after all actions have moved, so listeners may start fades.
func (m *Mixer) Update(dt float64) {
	if dt < 0 {
		dt = 0
	}
	var finished []string
	for _, name := range m.order {
		if m.actions[name].advance(dt) {
			finished = append(finished, name)
		}
	}
	for _, name := range finished {
		for _, fn := range m.listeners {
			fn(name)
		}
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
