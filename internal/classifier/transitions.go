package classifier

import (
	"github.com/ayusman/arstage/internal/gesture"
	"github.com/ayusman/arstage/internal/scene"
)

// Clip names the transitions fade the actor to.
const (
	ClipWalk = "walk"
	ClipJump = "jump"
)

// FadeDuration is the crossfade used by gesture transitions, in seconds.
const FadeDuration = 0.1

// Actor is the animated character a gesture can drive.
type Actor interface {
	FadeTo(clip string, duration float64) error
}

// Overlay is the plane a gesture can show or hide.
type Overlay interface {
	ShowOverlay()
	HideOverlay()
}

// Target is what transitions mutate. It must only be touched on the scene goroutine.
type Target struct {
	Actor   Actor
	Overlay Overlay
	State   *scene.State
}

// Transition applies one gesture to the target and reports whether
// anything changed.
type Transition func(t Target) bool

// Transitions maps gesture names to their effect on the scene.
var Transitions = map[string]Transition{
	gesture.NameThumbsUp: fadeAndHide(ClipWalk),
	gesture.NameVictory:  fadeAndHide(ClipJump),
	gesture.NameRock:     revealOverlay,
	gesture.NameMiddleUp: revealOverlay,
}

func fadeAndHide(clip string) Transition {
	return func(t Target) bool {
		changed := false
		if t.Actor != nil && t.Actor.FadeTo(clip, FadeDuration) == nil {
			changed = true
		}
		if t.Overlay != nil {
			t.Overlay.HideOverlay()
			changed = true
		}
		return changed
	}
}

func revealOverlay(t Target) bool {
	if t.State == nil || !t.State.OverlayUnlocked || t.Overlay == nil {
		return false
	}
	t.Overlay.ShowOverlay()
	return true
}

// Apply runs the transition bound to name. Unknown names do nothing.
func Apply(t Target, name string) bool {
	fn, ok := Transitions[name]
	if !ok {
		return false
	}
	return fn(t)
}
