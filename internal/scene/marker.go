package scene

import (
	"fmt"
	"log/slog"
)

// MarkerState is the one-way reveal state of a marker.
type MarkerState int

const (
	// Unseen markers have not been found since the last reset.
	Unseen MarkerState = iota
	// Revealed markers have shown their content and never hide it again.
	Revealed
)

func (s MarkerState) String() string {
	if s == Revealed {
		return "revealed"
	}
	return "unseen"
}

// Marker binds scene objects to a tracked image target.
type Marker struct {
	ID      int
	Objects []*Object
	// Hooks run once, right after the objects are revealed.
	Hooks []func()

	state MarkerState
	found bool
}

// State returns the reveal state.
func (m *Marker) State() MarkerState { return m.state }

// Found reports whether the tracker currently sees the marker.
func (m *Marker) Found() bool { return m.found }

// State carries session-progress flags shared by the state machine, the
// stage and the gesture transitions.
type State struct {
	// Scanning is true until the first marker is revealed.
	Scanning bool
	// GiftOpened is set when the gift has been tapped.
	GiftOpened bool
	// OverlayUnlocked gates the gestures that reveal the overlay plane.
	OverlayUnlocked bool
}

// NewState returns the flags of a fresh session.
func NewState() *State {
	return &State{Scanning: true}
}

// Reset returns the flags to a fresh session.
func (s *State) Reset() {
	*s = State{Scanning: true}
}

// RevealFunc observes a marker reveal.
type RevealFunc func(m *Marker)

// StateMachine reacts to marker found/lost callbacks.
type StateMachine struct {
	graph    *Graph
	state    *State
	markers  map[int]*Marker
	onReveal []RevealFunc
	logger   *slog.Logger
}

// NewStateMachine creates a state machine that reveals into graph.
func NewStateMachine(graph *Graph, state *State, logger *slog.Logger) *StateMachine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StateMachine{
		graph:   graph,
		state:   state,
		markers: make(map[int]*Marker),
		logger:  logger,
	}
}

// Register adds a marker. Markers are created once per session.
func (sm *StateMachine) Register(m *Marker) error {
	if _, ok := sm.markers[m.ID]; ok {
		return fmt.Errorf("marker %d already registered", m.ID)
	}
	sm.markers[m.ID] = m
	return nil
}

// Marker returns a registered marker.
func (sm *StateMachine) Marker(id int) (*Marker, bool) {
	m, ok := sm.markers[id]
	return m, ok
}

// OnReveal registers an observer called after each reveal.
func (sm *StateMachine) OnReveal(fn RevealFunc) {
	sm.onReveal = append(sm.onReveal, fn)
}

// OnFound handles the tracker's found callback. The first call per session
// reveals the bound objects and runs the hooks; later calls only record
// visibility.
func (sm *StateMachine) OnFound(id int) {
	m, ok := sm.markers[id]
	if !ok {
		sm.logger.Warn("found unknown marker", "marker_id", id)
		return
	}
	m.found = true
	if m.state == Revealed {
		return
	}
	m.state = Revealed

	for _, obj := range m.Objects {
		sm.graph.Add(obj)
		obj.Visible = true
	}
	sm.state.Scanning = false
	sm.logger.Info("marker revealed", "marker_id", id, "objects", len(m.Objects))

	for i, hook := range m.Hooks {
		sm.runHook(id, i, hook)
	}
	for _, fn := range sm.onReveal {
		fn(m)
	}
}

// OnLost records that the tracker lost the marker. Revealed content stays.
func (sm *StateMachine) OnLost(id int) {
	m, ok := sm.markers[id]
	if !ok {
		sm.logger.Warn("lost unknown marker", "marker_id", id)
		return
	}
	m.found = false
	sm.logger.Debug("marker lost", "marker_id", id)
}

// Reset returns every marker to Unseen and removes its objects from the graph.
func (sm *StateMachine) Reset() {
	for _, m := range sm.markers {
		m.state = Unseen
		m.found = false
		for _, obj := range m.Objects {
			sm.graph.Remove(obj.Name)
		}
	}
	sm.state.Scanning = true
}

func (sm *StateMachine) runHook(id, i int, hook func()) {
	defer func() {
		if r := recover(); r != nil {
			sm.logger.Error("marker hook panicked", "marker_id", id, "hook", i, "panic", r)
		}
	}()
	hook()
}
