// Package tray provides the system tray menu for a running arstage session.
package tray

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/ayusman/arstage/internal/classifier"
	"github.com/ayusman/arstage/internal/compositor"
	"github.com/ayusman/arstage/internal/session"
)

// snapshotTimeout bounds a capture started from the menu.
const snapshotTimeout = 10 * time.Second

// Controller is the session surface the tray drives.
type Controller interface {
	GesturesEnabled() bool
	SetGesturesEnabled(enabled bool)
	Capture(ctx context.Context) (*compositor.Snapshot, error)
	Restart(ctx context.Context) error
	Subscribe(buffer int) (<-chan session.Event, func())
}

// menuItem is the part of *systray.MenuItem the tray updates.
type menuItem interface {
	SetTitle(title string)
	Enable()
	Disable()
}

// Tray represents the system tray application.
type Tray struct {
	ctrl   Controller
	logger *slog.Logger

	onOpen func()
	onQuit func()
	mu     sync.RWMutex

	capturing bool
	snapMu    sync.Mutex
	wg        sync.WaitGroup

	// Menu items stored for later updates
	menuToggle      menuItem
	menuSnapshot    menuItem
	menuLastGesture menuItem
}

// New creates a Tray for ctrl.
func New(ctrl Controller, logger *slog.Logger) *Tray {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tray{ctrl: ctrl, logger: logger}
}

// OnOpen sets the callback for the "Open in Browser" item.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application. It blocks until Quit is called
// or the quit item is clicked.
func (t *Tray) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	systray.Run(func() { t.onReady(ctx) }, cancel)
	t.wg.Wait()
}

// Quit closes the tray from outside the menu.
func Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady(ctx context.Context) {
	systray.SetTitle("arstage")
	systray.SetTooltip("arstage AR session")

	toggle := systray.AddMenuItem("", "Toggle gesture recognition")
	snapshot := systray.AddMenuItem("Take Snapshot", "Capture the camera and scene")
	systray.AddSeparator()

	last := systray.AddMenuItem("Last: none", "Last detected gesture")
	last.Disable()
	systray.AddSeparator()

	restart := systray.AddMenuItem("Restart Session", "Reset the scene and start scanning again")
	open := systray.AddMenuItem("Open in Browser...", "Open the session page")
	systray.AddSeparator()

	quit := systray.AddMenuItem("Quit", "Quit arstage")

	t.mu.Lock()
	t.menuToggle, t.menuSnapshot, t.menuLastGesture = toggle, snapshot, last
	t.mu.Unlock()
	t.setEnabled(t.ctrl.GesturesEnabled())

	events, unsubscribe := t.ctrl.Subscribe(32)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer unsubscribe()
		t.follow(ctx, events)
	}()

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-toggle.ClickedCh:
				t.handleToggle()
			case <-snapshot.ClickedCh:
				t.handleSnapshot(ctx)
			case <-restart.ClickedCh:
				t.handleRestart(ctx)
			case <-open.ClickedCh:
				t.handleOpen()
			case <-quit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// follow mirrors session events into the menu until ctx ends.
func (t *Tray) follow(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case session.EventGesture:
				if m, ok := ev.Data.(classifier.Match); ok {
					t.SetLastGesture(m.Gesture)
				}
			case session.EventGesturesToggled:
				if data, ok := ev.Data.(map[string]bool); ok {
					t.setEnabled(data["enabled"])
				}
			case session.EventRestarted:
				t.SetLastGesture("")
			}
		}
	}
}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	enabled := !t.ctrl.GesturesEnabled()
	t.ctrl.SetGesturesEnabled(enabled)
	t.setEnabled(enabled)
}

func (t *Tray) setEnabled(enabled bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.menuToggle == nil {
		return
	}
	if enabled {
		t.menuToggle.SetTitle("● Gestures On")
	} else {
		t.menuToggle.SetTitle("○ Gestures Off")
	}
}

// handleSnapshot starts a capture. The item stays disabled until it ends.
func (t *Tray) handleSnapshot(ctx context.Context) {
	t.snapMu.Lock()
	if t.capturing {
		t.snapMu.Unlock()
		return
	}
	t.capturing = true
	t.snapMu.Unlock()
	t.setSnapshotEnabled(false)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			t.snapMu.Lock()
			t.capturing = false
			t.snapMu.Unlock()
			t.setSnapshotEnabled(true)
		}()

		ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
		defer cancel()
		snap, err := t.ctrl.Capture(ctx)
		if err != nil {
			t.logger.Warn("snapshot from tray", "err", err)
			return
		}
		t.logger.Info("snapshot taken", "capture_id", snap.ID)
	}()
}

func (t *Tray) setSnapshotEnabled(enabled bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.menuSnapshot == nil {
		return
	}
	if enabled {
		t.menuSnapshot.Enable()
	} else {
		t.menuSnapshot.Disable()
	}
}

func (t *Tray) handleRestart(ctx context.Context) {
	if err := t.ctrl.Restart(ctx); err != nil {
		t.logger.Warn("restart from tray", "err", err)
	}
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetLastGesture updates the last gesture display in the menu.
func (t *Tray) SetLastGesture(name string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuLastGesture != nil {
		if name == "" {
			t.menuLastGesture.SetTitle("Last: none")
		} else {
			t.menuLastGesture.SetTitle("Last: " + name)
		}
	}
}

// Capturing reports whether a snapshot started from the menu is running.
func (t *Tray) Capturing() bool {
	t.snapMu.Lock()
	defer t.snapMu.Unlock()
	return t.capturing
}
