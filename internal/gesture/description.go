package gesture

import (
	"errors"
	"fmt"
)

// CurlConstraint accepts a curl on a finger with a confidence weight.
type CurlConstraint struct {
	Finger Finger  `json:"finger" yaml:"finger"`
	Curl   Curl    `json:"curl" yaml:"curl"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// DirectionConstraint accepts a pointing direction on a finger with a confidence weight.
type DirectionConstraint struct {
	Finger    Finger    `json:"finger" yaml:"finger"`
	Direction Direction `json:"direction" yaml:"direction"`
	Weight    float64   `json:"weight" yaml:"weight"`
}

// Description is a named gesture: a set of per-finger constraints.
type Description struct {
	Name       string                `json:"name" yaml:"name"`
	Curls      []CurlConstraint      `json:"curls,omitempty" yaml:"curls,omitempty"`
	Directions []DirectionConstraint `json:"directions,omitempty" yaml:"directions,omitempty"`
	Weights    map[Finger]float64    `json:"weights,omitempty" yaml:"weights,omitempty"`
}

// NewDescription creates an empty description.
func NewDescription(name string) *Description {
	return &Description{Name: name}
}

// AddCurl accepts curl on finger with the given weight.
func (d *Description) AddCurl(finger Finger, curl Curl, weight float64) *Description {
	d.Curls = append(d.Curls, CurlConstraint{Finger: finger, Curl: curl, Weight: weight})
	return d
}

// AddDirection accepts direction on finger with the given weight.
func (d *Description) AddDirection(finger Finger, direction Direction, weight float64) *Description {
	d.Directions = append(d.Directions, DirectionConstraint{Finger: finger, Direction: direction, Weight: weight})
	return d
}

// SetWeight changes how much a finger counts relative to the others (default 1).
func (d *Description) SetWeight(finger Finger, weight float64) *Description {
	if d.Weights == nil {
		d.Weights = make(map[Finger]float64)
	}
	d.Weights[finger] = weight
	return d
}

// Validate checks the description for structural errors.
func (d *Description) Validate() error {
	if d == nil {
		return errors.New("nil description")
	}
	if d.Name == "" {
		return errors.New("gesture name cannot be empty")
	}
	if len(d.Curls) == 0 && len(d.Directions) == 0 {
		return fmt.Errorf("gesture %q has no constraints", d.Name)
	}
	for _, c := range d.Curls {
		if c.Finger < 0 || int(c.Finger) >= NumFingers {
			return fmt.Errorf("gesture %q: invalid finger %d", d.Name, int(c.Finger))
		}
		if c.Weight < 0 {
			return fmt.Errorf("gesture %q: negative weight on %s", d.Name, c.Finger)
		}
	}
	for _, c := range d.Directions {
		if c.Finger < 0 || int(c.Finger) >= NumFingers {
			return fmt.Errorf("gesture %q: invalid finger %d", d.Name, int(c.Finger))
		}
		if c.Weight < 0 {
			return fmt.Errorf("gesture %q: negative weight on %s", d.Name, c.Finger)
		}
	}
	for f, w := range d.Weights {
		if w <= 0 {
			return fmt.Errorf("gesture %q: finger weight for %s must be positive", d.Name, f)
		}
	}
	return nil
}

// relativeWeights scales finger weights so that they sum to NumFingers.
func (d *Description) relativeWeights() [NumFingers]float64 {
	var weights [NumFingers]float64
	var total float64
	for f := range weights {
		w, ok := d.Weights[Finger(f)]
		if !ok {
			w = 1
		}
		weights[f] = w
		total += w
	}
	for f := range weights {
		weights[f] = weights[f] * NumFingers / total
	}
	return weights
}

// Score rates a pose against the description on a 0..10 scale.
// Each finger with at least one curl (or direction) constraint counts as one
// parameter; the best matching constraint weight is added, scaled by the
// finger's relative weight.
func (d *Description) Score(pose Pose) float64 {
	weights := d.relativeWeights()

	var score float64
	var params int

	for f := Finger(0); f < NumFingers; f++ {
		found := false
		best := 0.0
		for _, c := range d.Curls {
			if c.Finger != f {
				continue
			}
			found = true
			if c.Curl == pose[f].Curl && c.Weight > best {
				best = c.Weight
			}
		}
		if found {
			params++
			score += best * weights[f]
		}
	}

	for f := Finger(0); f < NumFingers; f++ {
		found := false
		best := 0.0
		for _, c := range d.Directions {
			if c.Finger != f {
				continue
			}
			found = true
			if c.Direction == pose[f].Direction && c.Weight > best {
				best = c.Weight
			}
		}
		if found {
			params++
			score += best * weights[f]
		}
	}

	if params == 0 {
		return 0
	}
	return score / float64(params) * 10
}
