package gesture

import (
	"fmt"

	"github.com/ayusman/arstage/internal/detector"
)

// DefaultMinScore is the score a candidate must reach to be reported.
const DefaultMinScore = 8.5

// Candidate is one scored gesture.
type Candidate struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Estimation is the result of scoring one hand.
type Estimation struct {
	Pose Pose
	// Candidates above the threshold, in library declaration order.
	Candidates []Candidate
}

// Estimator scores hands against an ordered library of descriptions.
type Estimator struct {
	library []*Description
}

// NewEstimator validates the library and returns an Estimator over it.
// Declaration order is kept: it breaks ties in Best.
func NewEstimator(library []*Description) (*Estimator, error) {
	seen := make(map[string]bool, len(library))
	for _, d := range library {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("duplicate gesture %q", d.Name)
		}
		seen[d.Name] = true
	}

	lib := make([]*Description, len(library))
	copy(lib, library)
	return &Estimator{library: lib}, nil
}

// Library returns the descriptions in declaration order.
func (e *Estimator) Library() []*Description {
	out := make([]*Description, len(e.library))
	copy(out, e.library)
	return out
}

// Estimate scores points against every description and keeps those scoring at least minScore.
func (e *Estimator) Estimate(points *[detector.NumLandmarks]detector.Point3D, minScore float64) Estimation {
	pose := EstimatePose(points)
	est := Estimation{Pose: pose}
	for _, d := range e.library {
		score := d.Score(pose)
		if score >= minScore {
			est.Candidates = append(est.Candidates, Candidate{Name: d.Name, Score: score})
		}
	}
	return est
}

// Best returns the highest scoring candidate. On equal scores the earlier
// candidate wins, so callers must pass candidates in library order.
func Best(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Score > best.Score {
			best = c
		}
	}
	return best, true
}
