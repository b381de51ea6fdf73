package compositor

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

// DefaultGalleryDepth is how many snapshots stay on screen.
const DefaultGalleryDepth = 8

// Snapshot is one encoded capture.
type Snapshot struct {
	ID        string    `json:"id"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CreatedAt time.Time `json:"created_at"`
	PNG       []byte    `json:"-"`
}

// EncodeSnapshot encodes a captured Mat as PNG.
func EncodeSnapshot(img gocv.Mat) (*Snapshot, error) {
	buf, err := gocv.IMEncode(gocv.PNGFileExt, img)
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())

	return &Snapshot{
		ID:        uuid.New().String(),
		Width:     img.Cols(),
		Height:    img.Rows(),
		CreatedAt: time.Now(),
		PNG:       data,
	}, nil
}

// Gallery is the stack of snapshots shown to the user, newest on top.
// Each snapshot stays until dismissed; past the depth the oldest drops off.
// It is safe for concurrent use.
type Gallery struct {
	mu    sync.RWMutex
	depth int
	shots []*Snapshot
}

// NewGallery creates a gallery holding at most depth snapshots.
func NewGallery(depth int) *Gallery {
	if depth <= 0 {
		depth = DefaultGalleryDepth
	}
	return &Gallery{depth: depth}
}

// Push puts s on top. It returns the snapshot evicted to make room, if any.
func (g *Gallery) Push(s *Snapshot) *Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.shots = append(g.shots, s)
	if len(g.shots) <= g.depth {
		return nil
	}
	evicted := g.shots[0]
	g.shots = append(g.shots[:0], g.shots[1:]...)
	return evicted
}

// List returns the snapshots, newest first.
func (g *Gallery) List() []*Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*Snapshot, 0, len(g.shots))
	for i := len(g.shots) - 1; i >= 0; i-- {
		out = append(out, g.shots[i])
	}
	return out
}

// Top returns the newest snapshot.
func (g *Gallery) Top() (*Snapshot, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if len(g.shots) == 0 {
		return nil, false
	}
	return g.shots[len(g.shots)-1], true
}

// Get returns the snapshot with id.
func (g *Gallery) Get(id string) (*Snapshot, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, s := range g.shots {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// Dismiss removes the snapshot with id and reports whether it was shown.
func (g *Gallery) Dismiss(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, s := range g.shots {
		if s.ID == id {
			g.shots = append(g.shots[:i], g.shots[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of snapshots shown.
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.shots)
}

// Clear dismisses every snapshot.
func (g *Gallery) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.shots = nil
}
