package scene

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphAddIsUnique(t *testing.T) {
	g := NewGraph()
	a := &Object{Name: "a"}

	assert.True(t, g.Add(a))
	assert.False(t, g.Add(&Object{Name: "a"}))
	assert.Equal(t, 1, g.Len())

	got, ok := g.Get("a")
	require.True(t, ok)
	assert.Same(t, a, got)

	assert.True(t, g.Add(&Object{Name: "b"}))
	assert.True(t, g.Remove("a"))
	assert.False(t, g.Remove("a"))
	assert.False(t, g.Contains("a"))
	require.Len(t, g.Objects(), 1)
	assert.Equal(t, "b", g.Objects()[0].Name)
}

func newTestMachine(t *testing.T) (*StateMachine, *Graph, *State, *Marker, *int) {
	t.Helper()
	g := NewGraph()
	st := NewState()
	sm := NewStateMachine(g, st, nil)
	hooks := 0
	m := &Marker{
		ID:      0,
		Objects: []*Object{{Name: "cube"}, {Name: "label"}},
		Hooks:   []func(){func() { hooks++ }},
	}
	require.NoError(t, sm.Register(m))
	return sm, g, st, m, &hooks
}

func TestMarkerRevealsOnce(t *testing.T) {
	sm, g, st, m, hooks := newTestMachine(t)
	assert.True(t, st.Scanning)

	for range 5 {
		sm.OnFound(0)
		sm.OnLost(0)
	}
	sm.OnFound(0)

	assert.Equal(t, 2, g.Len())
	assert.Equal(t, 1, *hooks)
	assert.Equal(t, Revealed, m.State())
	assert.True(t, m.Found())
	assert.False(t, st.Scanning)
	for _, o := range g.Objects() {
		assert.True(t, o.Visible, o.Name)
	}
}

func TestMarkerLostKeepsContent(t *testing.T) {
	sm, g, _, m, _ := newTestMachine(t)
	sm.OnFound(0)
	sm.OnLost(0)

	assert.False(t, m.Found())
	assert.Equal(t, Revealed, m.State())
	assert.Equal(t, 2, g.Len())
	cube, _ := g.Get("cube")
	assert.True(t, cube.Visible)
}

func TestMarkerUnknownIgnored(t *testing.T) {
	sm, g, _, _, hooks := newTestMachine(t)
	sm.OnFound(7)
	sm.OnLost(7)
	assert.Equal(t, 0, g.Len())
	assert.Equal(t, 0, *hooks)
}

func TestMarkerReset(t *testing.T) {
	sm, g, st, m, hooks := newTestMachine(t)
	sm.OnFound(0)
	sm.Reset()

	assert.Equal(t, Unseen, m.State())
	assert.Equal(t, 0, g.Len())
	assert.True(t, st.Scanning)

	sm.OnFound(0)
	assert.Equal(t, 2, *hooks)
}

func TestMarkerHookPanicRecovered(t *testing.T) {
	g := NewGraph()
	sm := NewStateMachine(g, NewState(), nil)
	ran := false
	require.NoError(t, sm.Register(&Marker{
		ID:    1,
		Hooks: []func(){func() { panic("boom") }, func() { ran = true }},
	}))

	assert.NotPanics(t, func() { sm.OnFound(1) })
	assert.True(t, ran)
}

func TestRegisterDuplicate(t *testing.T) {
	sm, _, _, _, _ := newTestMachine(t)
	assert.Error(t, sm.Register(&Marker{ID: 0}))
}

func TestProjectAndHitTest(t *testing.T) {
	cam := DefaultCamera()
	x, y, ok := cam.Project(Vec3{0, 0, -10}, 800, 600)
	require.True(t, ok)
	assert.InDelta(t, 400, x, 1e-9)
	assert.InDelta(t, 300, y, 1e-9)

	_, _, ok = cam.Project(Vec3{0, 0, 5}, 800, 600)
	assert.False(t, ok, "behind the camera")
	_, _, ok = cam.Project(Vec3{0, 0, -100}, 800, 600)
	assert.False(t, ok, "past the far plane")

	g := NewGraph()
	near := &Object{Name: "near", Position: Vec3{0, 0, -5}, Scale: 1, Radius: 1, Visible: true, Clickable: true}
	far := &Object{Name: "far", Position: Vec3{0, 0, -20}, Scale: 1, Radius: 1, Visible: true, Clickable: true}
	hidden := &Object{Name: "hidden", Position: Vec3{0, 0, -2}, Scale: 1, Radius: 1, Clickable: true}
	g.Add(far)
	g.Add(near)
	g.Add(hidden)

	hit, ok := cam.HitTest(g, 0.5, 0.5, 800, 600)
	require.True(t, ok)
	assert.Equal(t, "near", hit.Name)

	_, ok = cam.HitTest(g, 0.01, 0.01, 800, 600)
	assert.False(t, ok)
}

func TestEffectsLifecycle(t *testing.T) {
	var fx Effects
	obj := &Object{Name: "ring"}
	doneCalls := 0

	fx.Start("burst", NewRingBurst(obj), func() {
		doneCalls++
		fx.Start("after", &Spin{Target: obj, Speed: 1}, nil)
	})
	assert.True(t, fx.Active("burst"))

	fx.Update(0.25)
	assert.InDelta(t, 2.5, obj.Scale, 1e-9)
	assert.InDelta(t, 0.5, obj.Opacity, 1e-9)
	assert.True(t, obj.Visible)
	assert.Equal(t, Vec3{0, 0, -15}, obj.Position)

	fx.Update(0.25)
	assert.Equal(t, 1, doneCalls)
	assert.Equal(t, 0.0, obj.Scale)
	assert.False(t, obj.Visible)
	assert.Equal(t, []string{"after"}, fx.Names())

	fx.Stop("after")
	assert.Empty(t, fx.Names())
}

func TestEffectsStartReplaces(t *testing.T) {
	var fx Effects
	obj := &Object{}
	fx.Start("spin", &Spin{Target: obj, Speed: 1}, nil)
	fx.Start("spin", &Spin{Target: obj, Speed: 2}, nil)
	fx.Update(0.5)
	assert.InDelta(t, 1.0, obj.Rotation.Y, 1e-9)
}

func TestSwayAndSnowfall(t *testing.T) {
	tree := &Object{}
	sway := NewTreeSway(tree)
	assert.InDelta(t, -0.9, tree.Rotation.Y, 1e-9)
	sway.Update(1)
	assert.InDelta(t, math.Sin(0.9)*math.Pi/6-0.9, tree.Rotation.Y, 1e-9)

	snow := &Object{Points: []Vec3{{Y: 1}, {Y: -0.9}}}
	NewSnowfall(snow).Update(1)
	assert.InDelta(t, 0.8, snow.Points[0].Y, 1e-9)
	assert.Equal(t, 2.0, snow.Points[1].Y)
}

func TestSnowPointsRange(t *testing.T) {
	pts := SnowPoints(200, rand.New(rand.NewPCG(1, 2)))
	require.Len(t, pts, 200)
	for _, p := range pts {
		assert.True(t, p.X >= -5 && p.X < 5)
		assert.True(t, p.Y >= 0 && p.Y < 10)
		assert.True(t, p.Z >= -15 && p.Z < -5)
	}
}

func newTestStage(t *testing.T) *Stage {
	t.Helper()
	cfg := DefaultStageConfig()
	cfg.SnowCount = 10
	s, err := NewStage(cfg, nil)
	require.NoError(t, err)
	return s
}

func TestStageGiftSequence(t *testing.T) {
	s := newTestStage(t)
	assert.False(t, s.Graph.Contains(ObjectGift))

	// Nothing to tap before the marker is found.
	_, ok := s.Tap(0.5, 0.59, 1000, 1000)
	assert.False(t, ok)

	s.Markers.OnFound(s.MarkerID())
	s.Markers.OnLost(s.MarkerID())
	s.Markers.OnFound(s.MarkerID())
	assert.True(t, s.Graph.Contains(ObjectGift))
	assert.True(t, s.Graph.Contains(ObjectActor))
	assert.True(t, s.Effects.Active(EffectGiftSpin))
	assert.False(t, s.State.Scanning)

	s.Update(0.5)
	gift, _ := s.Object(ObjectGift)
	assert.InDelta(t, 0.5, gift.Rotation.Y, 1e-9)

	name, ok := s.Tap(0.5, 0.59, 1000, 1000)
	require.True(t, ok)
	assert.Equal(t, ObjectGift, name)
	assert.True(t, s.State.GiftOpened)
	assert.False(t, s.State.OverlayUnlocked)
	assert.True(t, s.Effects.Active(EffectRingBurst))

	s.Update(0.25)
	assert.True(t, s.Graph.Contains(ObjectGift))
	s.Update(0.25)

	assert.False(t, s.Graph.Contains(ObjectGift))
	assert.True(t, s.Graph.Contains(ObjectTree))
	assert.True(t, s.Graph.Contains(ObjectSnow))
	assert.True(t, s.State.OverlayUnlocked)
	assert.ElementsMatch(t, []string{EffectTreeSway, EffectSnowfall}, s.Effects.Names())
}

func TestStageReset(t *testing.T) {
	s := newTestStage(t)
	s.Markers.OnFound(s.MarkerID())
	s.Tap(0.5, 0.59, 1000, 1000)
	s.Update(0.5)
	s.ShowOverlay()

	s.Reset()
	assert.True(t, s.State.Scanning)
	assert.False(t, s.State.OverlayUnlocked)
	assert.False(t, s.Graph.Contains(ObjectTree))
	assert.Empty(t, s.Effects.Names())
	overlay, _ := s.Object(ObjectOverlay)
	assert.False(t, overlay.Visible)

	s.Markers.OnFound(s.MarkerID())
	gift, _ := s.Object(ObjectGift)
	assert.True(t, gift.Visible)
	assert.True(t, gift.Clickable)
	assert.True(t, s.Graph.Contains(ObjectGift))
}
