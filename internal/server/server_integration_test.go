package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"

	"github.com/ayusman/arstage/internal/capture"
	"github.com/ayusman/arstage/internal/compositor"
	"github.com/ayusman/arstage/internal/detector"
	"github.com/ayusman/arstage/internal/gesture"
	"github.com/ayusman/arstage/internal/render"
	"github.com/ayusman/arstage/internal/session"
	"github.com/ayusman/arstage/internal/store"
	"github.com/ayusman/arstage/internal/tracker"
)

func TestAPI_GestureWorkflow(t *testing.T) {
	tmpDir := t.TempDir()
	s, err := store.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	srv := New(Config{Store: s})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	// 1. Create a gesture
	body, _ := json.Marshal(gesture.Rock())
	resp, err := client.Post(ts.URL+"/api/gestures", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/gestures error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var created struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	if created.Name != gesture.NameRock {
		t.Errorf("created name = %s, want %s", created.Name, gesture.NameRock)
	}

	// 2. List gestures
	resp, _ = client.Get(ts.URL + "/api/gestures")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/gestures status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var listed struct {
		Gestures []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"gestures"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()

	if len(listed.Gestures) != 1 {
		t.Fatalf("len(gestures) = %d, want 1", len(listed.Gestures))
	}

	// 3. Get single gesture
	resp, _ = client.Get(ts.URL + "/api/gestures/" + created.ID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/gestures/%s status = %d, want %d", created.ID, resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()

	// 4. Delete gesture
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/gestures/"+created.ID, nil)
	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	resp.Body.Close()

	// 5. Verify deleted
	resp, _ = client.Get(ts.URL + "/api/gestures/" + created.ID)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()
}

func TestAPI_HealthCheck(t *testing.T) {
	srv := New(Config{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	json.NewDecoder(resp.Body).Decode(&health)

	if health.Status != "ok" {
		t.Errorf("status = %s, want ok", health.Status)
	}
}

// markerTracker reports marker 0 when told to.
type markerTracker struct {
	mu    sync.Mutex
	found []tracker.EventFunc
}

func (m *markerTracker) AddAnchor(int, gocv.Mat) error { return nil }
func (m *markerTracker) OnLost(tracker.EventFunc)      {}

func (m *markerTracker) OnFound(fn tracker.EventFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.found = append(m.found, fn)
}

func (m *markerTracker) Run(ctx context.Context, _ capture.FrameSource) error {
	<-ctx.Done()
	return nil
}

func (m *markerTracker) fire() {
	m.mu.Lock()
	fns := append([]tracker.EventFunc(nil), m.found...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(0)
	}
}

func newSessionServer(t *testing.T) (*httptest.Server, *session.Session, *markerTracker) {
	t.Helper()

	dir := t.TempDir()
	st, err := store.New(filepath.Join(dir, "arstage.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}

	frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	frame.SetTo(gocv.NewScalar(30, 60, 90, 0))
	cam := capture.NewMockCamera([]*gocv.Mat{&frame}, true)
	cam.SetFPS(100)

	tr := &markerTracker{}
	sess, err := session.New(session.Config{
		Camera:      cam,
		Detector:    detector.NewMockDetector(),
		Tracker:     tr,
		Renderer:    render.NewSoftwareRenderer(320, 240),
		RefreshHz:   120,
		Viewport:    compositor.Viewport{Width: 320, Height: 240, DPR: 1},
		CapturesDir: filepath.Join(dir, "captures"),
		Store:       st,
	})
	if err != nil {
		t.Fatalf("session.New() error = %v", err)
	}
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for deadline := time.Now().Add(5 * time.Second); sess.Feed().Seq() == 0; {
		if time.Now().After(deadline) {
			t.Fatal("no camera frame arrived")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ts := httptest.NewServer(New(Config{Session: sess, Store: st}))
	t.Cleanup(func() {
		ts.Close()
		sess.Close()
		st.Close()
		frame.Close()
	})
	return ts, sess, tr
}

func postJSON(t *testing.T, ts *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := ts.Client().Post(ts.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s error = %v", path, err)
	}
	return resp
}

func getStatus(t *testing.T, ts *httptest.Server) session.Status {
	t.Helper()
	resp, err := ts.Client().Get(ts.URL + "/api/session")
	if err != nil {
		t.Fatalf("GET /api/session error = %v", err)
	}
	defer resp.Body.Close()
	var st session.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return st
}

func TestAPI_SessionWorkflow(t *testing.T) {
	ts, _, tr := newSessionServer(t)

	st := getStatus(t, ts)
	if !st.Running || !st.Scanning || st.ID == "" {
		t.Fatalf("unexpected initial status %+v", st)
	}
	firstID := st.ID

	// Nothing to hit before the marker shows up.
	resp := postJSON(t, ts, "/api/scene/tap", `{"x":0.5,"y":0.59}`)
	var tap session.TapResult
	json.NewDecoder(resp.Body).Decode(&tap)
	resp.Body.Close()
	if tap.Hit {
		t.Errorf("tap hit %q before the marker was found", tap.Object)
	}

	tr.fire()
	resp = postJSON(t, ts, "/api/scene/tap", `{"x":0.5,"y":0.59}`)
	json.NewDecoder(resp.Body).Decode(&tap)
	resp.Body.Close()
	if !tap.Hit || !tap.GiftOpened {
		t.Errorf("expected the tap to open the gift, got %+v", tap)
	}

	// Capture, fetch, dismiss.
	resp = postJSON(t, ts, "/api/captures", "")
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("POST /api/captures status = %d: %s", resp.StatusCode, b)
	}
	var snap compositor.Snapshot
	json.NewDecoder(resp.Body).Decode(&snap)
	resp.Body.Close()
	if snap.Width != 320 || snap.Height != 240 {
		t.Errorf("snapshot is %dx%d, want 320x240", snap.Width, snap.Height)
	}

	resp, _ = ts.Client().Get(ts.URL + "/api/captures/" + snap.ID)
	png, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Errorf("GET capture status = %d, %d bytes", resp.StatusCode, len(png))
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/captures/"+snap.ID, nil)
	resp, _ = ts.Client().Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE capture status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	// Dismissed snapshots are still served from disk.
	resp, _ = ts.Client().Get(ts.URL + "/api/captures/" + snap.ID)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET dismissed capture status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	resp, _ = ts.Client().Get(ts.URL + "/metrics")
	metrics, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(metrics), `arstage_captures_total{result="ok"} 1`) {
		t.Errorf("metrics missing the capture counter:\n%s", metrics)
	}

	// Restart brings the scene back to scanning under a new id.
	resp = postJSON(t, ts, "/api/session/restart", "")
	resp.Body.Close()
	st = getStatus(t, ts)
	if !st.Scanning || st.GiftOpened || st.ID == firstID {
		t.Errorf("unexpected status after restart %+v", st)
	}
}

func TestAPI_EventStream(t *testing.T) {
	ts, _, _ := newSessionServer(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/events", nil)
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	defer conn.Close()

	// The subscription starts after the upgrade; keep toggling until one lands.
	got := make(chan session.Event, 1)
	go func() {
		for {
			var ev session.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			if ev.Type == session.EventGesturesToggled {
				got <- ev
				return
			}
		}
	}()

	deadline := time.After(5 * time.Second)
	enabled := false
	for {
		resp := postJSON(t, ts, "/api/session/gestures", `{"enabled":`+strconv.FormatBool(enabled)+`}`)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("POST /api/session/gestures status = %d", resp.StatusCode)
		}
		select {
		case <-got:
			return
		case <-deadline:
			t.Fatal("no gestures_toggled event received")
		case <-time.After(50 * time.Millisecond):
			enabled = !enabled
		}
	}
}
