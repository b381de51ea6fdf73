package animation

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrUnknownClip is returned when a clip name is not part of the actor.
var ErrUnknownClip = errors.New("unknown clip")

// Blender keeps exactly one active clip for an actor and crossfades between clips.
// An actor with no clips accepts every call as a no-op.
type Blender struct {
	mixer  *Mixer
	active string
	logger *slog.Logger
}

// NewBlender creates a blender over clips and starts initial at full weight.
// An empty initial selects the first clip.
func NewBlender(clips []Clip, initial string, logger *slog.Logger) (*Blender, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &Blender{
		mixer:  NewMixer(clips),
		logger: logger,
	}
	b.mixer.OnFinished(b.onFinished)

	for _, c := range clips {
		if c.Fallback == "" {
			continue
		}
		if _, ok := b.mixer.Action(c.Fallback); !ok {
			return nil, fmt.Errorf("clip %q fallback %q: %w", c.Name, c.Fallback, ErrUnknownClip)
		}
	}

	if len(clips) == 0 {
		return b, nil
	}
	if initial == "" {
		initial = clips[0].Name
	}
	if err := b.Play(initial); err != nil {
		return nil, err
	}
	return b, nil
}

// Mixer exposes the underlying mixer.
func (b *Blender) Mixer() *Mixer { return b.mixer }

// Active returns the active clip name, or "" when the actor has no clips.
func (b *Blender) Active() string { return b.active }

// Play hard-cuts to name: every other action stops and name restarts at full weight.
func (b *Blender) Play(name string) error {
	if len(b.mixer.order) == 0 {
		return nil
	}
	next, ok := b.mixer.Action(name)
	if !ok {
		return fmt.Errorf("play %q: %w", name, ErrUnknownClip)
	}
	if name == b.active && next.IsRunning() && !next.IsFading() {
		return nil
	}
	for _, n := range b.mixer.order {
		if n != name {
			b.mixer.actions[n].Stop()
		}
	}
	next.Reset().SetWeight(1)
	b.active = name
	b.logger.Debug("clip started", "clip", name)
	return nil
}

// FadeTo makes name active and crossfades to it over duration seconds.
// It is a no-op when name is already active. Any crossfade in progress is
// superseded: every other clip fades out from its current weight.
func (b *Blender) FadeTo(name string, duration float64) error {
	if len(b.mixer.order) == 0 {
		return nil
	}
	next, ok := b.mixer.Action(name)
	if !ok {
		return fmt.Errorf("fade to %q: %w", name, ErrUnknownClip)
	}
	if name == b.active {
		return nil
	}

	for _, n := range b.mixer.order {
		a := b.mixer.actions[n]
		if n == name || (a.Weight() == 0 && !a.IsFading()) {
			continue
		}
		a.FadeOut(duration)
	}
	next.Reset().FadeIn(duration)

	b.logger.Debug("clip crossfade", "from", b.active, "to", name, "duration", duration)
	b.active = name
	return nil
}

// Update advances all clips by dt seconds.
func (b *Blender) Update(dt float64) {
	b.mixer.Update(dt)
}

// Weights returns the current weight of every clip.
func (b *Blender) Weights() map[string]float64 {
	out := make(map[string]float64, len(b.mixer.order))
	for _, n := range b.mixer.order {
		out[n] = b.mixer.actions[n].Weight()
	}
	return out
}

func (b *Blender) onFinished(name string) {
	if name != b.active {
		return
	}
	a, _ := b.mixer.Action(name)
	clip := a.Clip()
	if clip.Fallback == "" {
		return
	}
	if err := b.FadeTo(clip.Fallback, clip.FallbackFade); err != nil {
		b.logger.Warn("fallback failed", "clip", name, "err", err)
	}
}
