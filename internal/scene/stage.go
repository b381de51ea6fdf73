package scene

import (
	"image/color"
	"log/slog"
	"math/rand/v2"
)

// Object names used by the stage.
const (
	ObjectGift    = "gift"
	ObjectRing    = "ring"
	ObjectTree    = "tree"
	ObjectSnow    = "snow"
	ObjectActor   = "actor"
	ObjectOverlay = "overlay"
)

// Effect names used by the stage.
const (
	EffectGiftSpin  = "gift_spin"
	EffectRingBurst = "ring_burst"
	EffectTreeSway  = "tree_sway"
	EffectSnowfall  = "snowfall"
)

// StageConfig configures NewStage.
type StageConfig struct {
	MarkerID  int
	SnowCount int
	// Seed makes the snow layout reproducible.
	Seed   uint64
	Camera Camera
}

// DefaultStageConfig returns the stage used by the application.
func DefaultStageConfig() StageConfig {
	return StageConfig{MarkerID: 0, SnowCount: 1000, Seed: 1, Camera: DefaultCamera()}
}

// Stage is the scene content of one AR session: a gift that appears on the
// marker, opens into a tree with falling snow when tapped, an animated actor
// and an overlay plane driven by gestures.
type Stage struct {
	Graph   *Graph
	State   *State
	Effects *Effects
	Markers *StateMachine
	Camera  Camera

	cfg    StageConfig
	marker *Marker

	gift, ring, tree, snow, actor, overlay *Object

	logger *slog.Logger
}

// NewStage builds the graph, registers the marker and arms the gift.
func NewStage(cfg StageConfig, logger *slog.Logger) (*Stage, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Camera.FOV == 0 {
		cfg.Camera = DefaultCamera()
	}

	graph := NewGraph()
	state := NewState()
	s := &Stage{
		Graph:   graph,
		State:   state,
		Effects: &Effects{},
		Markers: NewStateMachine(graph, state, logger),
		Camera:  cfg.Camera,
		cfg:     cfg,
		logger:  logger,
	}
	s.build()

	s.marker = &Marker{
		ID:      cfg.MarkerID,
		Objects: []*Object{s.gift, s.actor},
		Hooks: []func(){
			func() { s.Effects.Start(EffectGiftSpin, &Spin{Target: s.gift, Speed: 1}, nil) },
		},
	}
	if err := s.Markers.Register(s.marker); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Stage) build() {
	s.gift = &Object{
		Name:      ObjectGift,
		Kind:      KindMesh,
		Position:  Vec3{0, -2, -20},
		Rotation:  Vec3{X: 0.3},
		Scale:     1,
		Color:     color.RGBA{R: 200, G: 30, B: 40, A: 255},
		Opacity:   1,
		Radius:    1.5,
		Clickable: true,
	}
	s.actor = &Object{
		Name:     ObjectActor,
		Kind:     KindMesh,
		Position: Vec3{-3, -2, -12},
		Scale:    1,
		Color:    color.RGBA{R: 140, G: 90, B: 50, A: 255},
		Opacity:  1,
		Radius:   1,
	}
	s.tree = &Object{
		Name:     ObjectTree,
		Kind:     KindMesh,
		Position: Vec3{2, -3, -20},
		Scale:    1.2,
		Color:    color.RGBA{R: 30, G: 140, B: 60, A: 255},
		Opacity:  1,
		Radius:   2,
	}
	s.snow = &Object{
		Name:    ObjectSnow,
		Kind:    KindPoints,
		Scale:   1,
		Color:   color.RGBA{R: 255, G: 255, B: 255, A: 255},
		Opacity: 0.8,
		Radius:  0.05,
		Points:  SnowPoints(s.cfg.SnowCount, rand.New(rand.NewPCG(s.cfg.Seed, s.cfg.Seed^0x9e3779b97f4a7c15))),
	}
	s.ring = &Object{
		Name:     ObjectRing,
		Kind:     KindRing,
		Position: Vec3{0, 0, -15},
		Color:    color.RGBA{R: 255, G: 215, B: 0, A: 255},
		Radius:   1,
	}
	s.overlay = &Object{
		Name:     ObjectOverlay,
		Kind:     KindPlane,
		Position: Vec3{0, 2.5, -10},
		Scale:    1,
		Color:    color.RGBA{R: 120, G: 180, B: 255, A: 255},
		Opacity:  0.9,
		Radius:   1.5,
		Label:    "overlay",
	}

	s.Graph.Add(s.ring)
	s.Graph.Add(s.overlay)
}

// Object returns one of the stage objects by name, whether or not it is in the graph.
func (s *Stage) Object(name string) (*Object, bool) {
	for _, o := range []*Object{s.gift, s.ring, s.tree, s.snow, s.actor, s.overlay} {
		if o.Name == name {
			return o, true
		}
	}
	return nil, false
}

// MarkerID returns the id of the stage marker.
func (s *Stage) MarkerID() int { return s.cfg.MarkerID }

// Update advances the effects by dt seconds.
func (s *Stage) Update(dt float64) {
	s.Effects.Update(dt)
}

// ShowOverlay makes the overlay plane visible.
func (s *Stage) ShowOverlay() { s.overlay.Visible = true }

// HideOverlay hides the overlay plane.
func (s *Stage) HideOverlay() { s.overlay.Visible = false }

// SetActorLabel shows text next to the actor, typically the active clip.
func (s *Stage) SetActorLabel(label string) { s.actor.Label = label }

// Tap hit-tests a normalized viewport point against the scene on a w×h
// viewport and returns the name of the clickable object hit.
// Tapping the gift starts the opening sequence once.
func (s *Stage) Tap(nx, ny float64, w, h int) (string, bool) {
	hit, ok := s.Camera.HitTest(s.Graph, nx, ny, w, h)
	if !ok {
		return "", false
	}
	if hit == s.gift && !s.State.GiftOpened {
		s.openGift()
	}
	return hit.Name, true
}

func (s *Stage) openGift() {
	s.State.GiftOpened = true
	s.gift.Clickable = false
	s.logger.Info("gift opened")
	s.Effects.Start(EffectRingBurst, NewRingBurst(s.ring), s.revealTree)
}

func (s *Stage) revealTree() {
	s.Effects.Stop(EffectGiftSpin)
	s.Graph.Remove(ObjectGift)

	s.tree.Visible = true
	s.tree.Clickable = true
	s.Graph.Add(s.tree)
	s.Effects.Start(EffectTreeSway, NewTreeSway(s.tree), nil)

	s.snow.Visible = true
	s.Graph.Add(s.snow)
	s.Effects.Start(EffectSnowfall, NewSnowfall(s.snow), nil)

	s.State.OverlayUnlocked = true
	s.logger.Info("tree revealed", "particles", len(s.snow.Points))
}

// Reset returns the stage to a fresh session: marker unseen, gift closed,
// effects stopped, overlay hidden.
func (s *Stage) Reset() {
	s.Effects.Clear()
	s.Markers.Reset()
	s.State.Reset()
	s.Graph.Clear()
	s.build()
	s.marker.Objects = []*Object{s.gift, s.actor}
}
