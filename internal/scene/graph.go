// Package scene holds the mutable scene graph and the logic that changes it:
// marker-driven reveals, procedural effects and the staged gift sequence.
//
// Nothing in this package is safe for concurrent use. A single owner
// goroutine (the session loop) performs every mutation.
package scene

import (
	"image/color"
	"math"
)

// Vec3 is a point or direction in camera space. The camera looks down -Z.
type Vec3 struct {
	X, Y, Z float64
}

// Add returns v+o.
func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Sub returns v-o.
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Scale returns v*s.
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// Kind selects how the renderer draws an object.
type Kind int

const (
	KindMesh Kind = iota
	KindRing
	KindPoints
	KindPlane
)

// Object is one node of the scene graph.
type Object struct {
	Name     string
	Kind     Kind
	Position Vec3
	Rotation Vec3 // radians
	Scale    float64
	Visible  bool

	Color   color.RGBA
	Opacity float64 // 0..1
	Radius  float64 // world units at Scale 1

	// Label is drawn next to the object when non-empty.
	Label string

	Clickable bool

	// Points are particle positions for KindPoints objects.
	Points []Vec3
}

// Graph is an ordered set of objects keyed by name.
type Graph struct {
	objects []*Object
	index   map[string]*Object
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{index: make(map[string]*Object)}
}

// Add inserts obj. It reports false, and leaves the graph unchanged, when
// an object with the same name is already present.
func (g *Graph) Add(obj *Object) bool {
	if _, ok := g.index[obj.Name]; ok {
		return false
	}
	g.objects = append(g.objects, obj)
	g.index[obj.Name] = obj
	return true
}

// Remove deletes the named object and reports whether it was present.
func (g *Graph) Remove(name string) bool {
	if _, ok := g.index[name]; !ok {
		return false
	}
	delete(g.index, name)
	for i, o := range g.objects {
		if o.Name == name {
			g.objects = append(g.objects[:i], g.objects[i+1:]...)
			break
		}
	}
	return true
}

// Get returns the named object.
func (g *Graph) Get(name string) (*Object, bool) {
	o, ok := g.index[name]
	return o, ok
}

// Contains reports whether the named object is in the graph.
func (g *Graph) Contains(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Objects returns the objects in insertion order.
func (g *Graph) Objects() []*Object {
	out := make([]*Object, len(g.objects))
	copy(out, g.objects)
	return out
}

// Len returns the number of objects.
func (g *Graph) Len() int { return len(g.objects) }

// Clear removes every object.
func (g *Graph) Clear() {
	g.objects = nil
	g.index = make(map[string]*Object)
}

// Camera is a pinhole camera at the origin looking down -Z.
type Camera struct {
	FOV  float64 // vertical field of view, degrees
	Near float64
	Far  float64
}

// DefaultCamera matches the clip planes used by the AR view.
func DefaultCamera() Camera {
	return Camera{FOV: 60, Near: 0.1, Far: 50}
}

// focal returns the focal length in pixels for a viewport of height h.
func (c Camera) focal(h int) float64 {
	return float64(h) / 2 / math.Tan(c.FOV*math.Pi/360)
}

// Project maps p to pixel coordinates on a w×h viewport. ok is false when
// p falls outside the near/far range.
func (c Camera) Project(p Vec3, w, h int) (x, y float64, ok bool) {
	depth := -p.Z
	if depth < c.Near || depth > c.Far {
		return 0, 0, false
	}
	f := c.focal(h)
	x = float64(w)/2 + f*p.X/depth
	y = float64(h)/2 - f*p.Y/depth
	return x, y, true
}

// ProjectedRadius returns the on-screen radius in pixels of a sphere of
// world radius r at p.
func (c Camera) ProjectedRadius(p Vec3, r float64, h int) float64 {
	depth := -p.Z
	if depth <= 0 {
		return 0
	}
	return c.focal(h) * r / depth
}

// HitTest returns the nearest visible clickable object whose projected disc
// contains the normalized viewport point (nx, ny), both in [0, 1] with the
// origin at the top left.
func (c Camera) HitTest(g *Graph, nx, ny float64, w, h int) (*Object, bool) {
	px, py := nx*float64(w), ny*float64(h)

	var hit *Object
	for _, o := range g.objects {
		if !o.Visible || !o.Clickable {
			continue
		}
		x, y, ok := c.Project(o.Position, w, h)
		if !ok {
			continue
		}
		r := c.ProjectedRadius(o.Position, o.Radius*o.Scale, h)
		if math.Hypot(px-x, py-y) > r {
			continue
		}
		if hit == nil || o.Position.Z > hit.Position.Z {
			hit = o
		}
	}
	return hit, hit != nil
}
