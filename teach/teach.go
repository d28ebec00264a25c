// Package teach implements the Teach Session Manager: a live browser proxy
// that turns a WebSocket bridge's pointer/keyboard events, plus on-demand DOM
// probes, into an ordered recording bundle (frames, markers, events) that
// synthesis later turns into a Plan.
package teach

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/google/uuid"

	"github.com/jianyangg/show-and-tell/browser"
	"github.com/jianyangg/show-and-tell/dom"
	"github.com/jianyangg/show-and-tell/runnererr"
)

// Message is one event pushed to a teach session's live subscriber, mirroring
// the run orchestrator's runstate.Message shape (type + free-form data).
type Message struct {
	Type string
	Data map[string]any
}

// Sink receives the live frame stream and DOM-probe/event-log notifications
// for one teach session. A transport layer built on a WebSocket library
// implements this to forward messages to the browser.
type Sink interface {
	Send(Message)
}

// Frame is one sampled screenshot, timestamped relative to session start.
type Frame struct {
	Timestamp float64
	PNG       []byte
}

// Marker is an operator-placed bookmark in the recording timeline.
type Marker struct {
	Timestamp float64
	Label     string
}

// Event is one logged interaction: its Kind names the payload shape
// (click, drag, scroll, keydown, keyup, key_hold, dom_probe, tab_*).
type Event struct {
	Timestamp float64
	Kind      string
	Payload   map[string]any
}

// Config tunes frame sampling.
type Config struct {
	FrameInterval time.Duration
	MaxFrames     int
	Headless      bool
}

// DefaultConfig returns the documented default tunables.
func DefaultConfig() Config {
	return Config{FrameInterval: time.Second, MaxFrames: 360, Headless: true}
}

type downState struct {
	x, y   float64
	button string
	at     time.Time
	probe  *dom.ProbeResult
}

type keyState struct {
	at   time.Time
	code string
	mods string
}

// Session is one live teach recording. Its event list, pressed-key set, and
// mouse-down state are mutated only by the WS handler goroutine for this
// session; the live frame pump only ever reads running.
type Session struct {
	ID          string
	RecordingID string
	StartedAt   time.Time

	cfg     Config
	b       *browser.Browser
	rodBr   *rod.Browser
	sink    Sink

	mu           sync.Mutex
	events       []Event
	markers      []Marker
	frames       []Frame
	lastFrameAt  time.Time
	pressedKeys  map[string]*keyState
	down         *downState
	lastProbeMap *dom.ElementMap
	running      bool
	stopPump     chan struct{}
}

// Manager enforces the single-active-teach-session invariant and owns the
// browser lifecycle for whichever session is active.
type Manager struct {
	cfg Config

	mu     sync.Mutex
	active *Session
}

// NewManager constructs a Manager. A zero FrameInterval or MaxFrames falls
// back to DefaultConfig's value; Headless is used as given.
func NewManager(cfg Config) *Manager {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = time.Second
	}
	if cfg.MaxFrames <= 0 {
		cfg.MaxFrames = 360
	}
	return &Manager{cfg: cfg}
}

// Start launches a new teach session, rejecting the call if one is already
// active. startURL is optional; when given, https:// is prefixed if no
// scheme is present.
func (m *Manager) Start(ctx context.Context, recordingID, startURL string, sink Sink) (*Session, browser.Viewport, error) {
	m.mu.Lock()
	if m.active != nil {
		m.mu.Unlock()
		return nil, browser.Viewport{}, runnererr.New("a teach session is already active")
	}
	m.mu.Unlock()

	viewport := browser.Viewport{Width: 1440, Height: 900}
	rodBr, b, err := browser.Launch(m.cfg.Headless, viewport)
	if err != nil {
		return nil, viewport, runnererr.New("failed to launch teach browser: %v", err)
	}

	if _, err := b.NewTab(ctx, "about:blank"); err != nil {
		_ = b.Close()
		return nil, viewport, runnererr.New("failed to open teach page: %v", err)
	}

	if startURL != "" {
		url := startURL
		if !strings.Contains(url, "://") {
			url = "https://" + url
		}
		if err := b.Navigate(ctx, url); err != nil {
			_ = b.Close()
			return nil, viewport, runnererr.New("failed to navigate teach session: %v", err)
		}
	}

	s := &Session{
		ID:          uuid.New().String(),
		RecordingID: recordingID,
		StartedAt:   time.Now(),
		cfg:         m.cfg,
		b:           b,
		rodBr:       rodBr,
		sink:        sink,
		pressedKeys: make(map[string]*keyState),
		running:     true,
		stopPump:    make(chan struct{}),
	}

	m.mu.Lock()
	m.active = s
	m.mu.Unlock()

	s.captureFrame(true)
	go s.pumpFrames()

	return s, viewport, nil
}

// Get returns the active session if its id matches, or (nil, false)
// otherwise. A blank id matches whatever session is currently active.
func (m *Manager) Get(teachID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, false
	}
	if teachID != "" && m.active.ID != teachID {
		return nil, false
	}
	return m.active, true
}

// Bundle is the finalized teach recording returned by Stop.
type Bundle struct {
	RecordingID string
	TeachID     string
	Frames      []Frame
	Markers     []Marker
	Events      []Event
}

// Stop pops the active session (if it matches teachID, or unconditionally
// when teachID is empty), marks it not-running, forces a final frame
// capture, and tears down its browser. Cleanup errors never surface as a
// returned error; the bundle is returned regardless.
func (m *Manager) Stop(teachID string) (Bundle, error) {
	m.mu.Lock()
	s := m.active
	if s == nil || (teachID != "" && s.ID != teachID) {
		m.mu.Unlock()
		return Bundle{}, runnererr.New("no active teach session")
	}
	m.active = nil
	m.mu.Unlock()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	close(s.stopPump)

	s.captureFrame(true)

	_ = s.b.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	return Bundle{
		RecordingID: s.RecordingID,
		TeachID:     s.ID,
		Frames:      append([]Frame(nil), s.frames...),
		Markers:     append([]Marker(nil), s.markers...),
		Events:      append([]Event(nil), s.events...),
	}, nil
}

func (s *Session) elapsed() float64 {
	return time.Since(s.StartedAt).Seconds()
}

// captureFrame samples the current screenshot into the bounded frame FIFO,
// skipping the sample unless enough time elapsed since the last stored
// frame, the buffer is empty, or force is set.
func (s *Session) captureFrame(force bool) {
	s.mu.Lock()
	due := force || len(s.frames) == 0 || time.Since(s.lastFrameAt) >= s.cfg.FrameInterval
	s.mu.Unlock()
	if !due {
		return
	}

	png, err := s.b.Screenshot(context.Background())
	if err != nil {
		return
	}

	s.mu.Lock()
	s.lastFrameAt = time.Now()
	s.frames = append(s.frames, Frame{Timestamp: s.elapsed(), PNG: png})
	if len(s.frames) > s.cfg.MaxFrames {
		s.frames = s.frames[len(s.frames)-s.cfg.MaxFrames:]
	}
	s.mu.Unlock()
}

// pumpFrames streams live frames to the session's sink at ~150ms cadence
// until Stop closes stopPump. It only reads running; it never mutates
// session state the WS handler owns.
func (s *Session) pumpFrames() {
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopPump:
			return
		case <-ticker.C:
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()
			if !running {
				return
			}
			png, err := s.b.Screenshot(context.Background())
			if err != nil {
				continue
			}
			if s.sink != nil {
				s.sink.Send(Message{Type: "runner_frame", Data: map[string]any{
					"frame":  png,
					"cursor": nil,
				}})
			}
		}
	}
}

func (s *Session) appendEvent(kind string, payload map[string]any) {
	s.mu.Lock()
	s.events = append(s.events, Event{Timestamp: s.elapsed(), Kind: kind, Payload: payload})
	s.mu.Unlock()
}

// AddMarker appends an operator-placed bookmark at the current session time.
func (s *Session) AddMarker(label string) {
	s.mu.Lock()
	s.markers = append(s.markers, Marker{Timestamp: s.elapsed(), Label: label})
	s.mu.Unlock()
}

const (
	dragDistanceThreshold = 8.0
	dragDurationThreshold = 300 * time.Millisecond
)

// OnMouseMove updates nothing by itself beyond sampling a frame; drag
// tracking is resolved entirely from the down/up pair in OnMouseUp.
func (s *Session) OnMouseMove(x, y float64) {
	s.captureFrame(false)
}

// OnMouseDown records the down position/button and, best-effort, the
// click-probe metadata at that point. No event is emitted yet.
func (s *Session) OnMouseDown(x, y float64, button string) {
	probe, _ := dom.RunClickProbe(s.b, x, y)
	s.mu.Lock()
	s.down = &downState{x: x, y: y, button: button, at: time.Now(), probe: probe}
	s.mu.Unlock()
}

// OnMouseUp closes out a pending mouse-down: if the pointer moved past the
// distance threshold or the gesture lasted past the duration threshold, it
// emits a drag event; otherwise a click event using the probe captured on
// the way down.
func (s *Session) OnMouseUp(x, y float64, button string) {
	s.mu.Lock()
	down := s.down
	s.down = nil
	s.mu.Unlock()

	if down == nil {
		return
	}

	dx, dy := x-down.x, y-down.y
	dist := dx*dx + dy*dy
	duration := time.Since(down.at)

	if dist > dragDistanceThreshold*dragDistanceThreshold || duration > dragDurationThreshold {
		payload := map[string]any{
			"start_xy": [2]float64{down.x, down.y},
			"end_xy":   [2]float64{x, y},
			"duration": duration.Seconds(),
			"button":   down.button,
		}
		if down.probe != nil && down.probe.Element != nil {
			payload["end_element"] = down.probe.Element
		}
		s.appendEvent("drag", payload)
		return
	}

	payload := map[string]any{"x": x, "y": y, "button": button}
	if down.probe != nil {
		payload["element"] = down.probe.Element
		payload["actionable"] = down.probe.ActionableAncestor != nil
		payload["selector"] = down.probe.BestSelector
		payload["primaryLocator"] = down.probe.PrimaryLocator
		payload["selectorCandidates"] = down.probe.SelectorCandidates
	}
	s.appendEvent("click", payload)
}

// OnWheel emits a scroll event for one wheel delta.
func (s *Session) OnWheel(deltaX, deltaY float64) {
	s.appendEvent("scroll", map[string]any{"deltaX": deltaX, "deltaY": deltaY})
}

// OnKeyDown records a down timestamp for key if it is not already pressed
// (emitting keydown), or emits keydown_repeat if it is.
func (s *Session) OnKeyDown(key, code, mods string) {
	s.mu.Lock()
	_, already := s.pressedKeys[key]
	if !already {
		s.pressedKeys[key] = &keyState{at: time.Now(), code: code, mods: mods}
	}
	s.mu.Unlock()

	kind := "keydown"
	if already {
		kind = "keydown_repeat"
	}
	s.appendEvent(kind, map[string]any{"key": key, "code": code, "mods": mods})
}

// OnKeyUp pops key from the pressed set, emits keyup, then emits key_hold
// using the retained down timestamp for the full press duration.
func (s *Session) OnKeyUp(key string) {
	s.mu.Lock()
	state, ok := s.pressedKeys[key]
	delete(s.pressedKeys, key)
	s.mu.Unlock()

	s.appendEvent("keyup", map[string]any{"key": key})
	if !ok {
		return
	}
	s.appendEvent("key_hold", map[string]any{
		"key":      key,
		"code":     state.code,
		"mods":     state.mods,
		"duration": time.Since(state.at).Seconds(),
	})
}

// OnProbeDOM runs the focus probe (for reason "focus" or "activeElement") or
// the click probe (for any other reason, using x,y) and pushes a dom_probe
// message to the sink in addition to logging it as an event. Probe failures
// are swallowed: when the probe errors or finds nothing, the event is still
// logged, without a "result" entry.
func (s *Session) OnProbeDOM(reason string, x, y float64) {
	var result *dom.ProbeResult
	var err error
	if reason == "focus" || reason == "activeElement" {
		result, err = dom.RunFocusProbe(s.b)
	} else {
		result, err = dom.RunClickProbe(s.b, x, y)
	}

	payload := map[string]any{"reason": reason, "x": x, "y": y}
	if err == nil && result != nil {
		payload["result"] = result
		s.flashProbeAnnotation(result)
	}
	s.appendEvent("dom_probe", payload)
	if s.sink != nil {
		s.sink.Send(Message{Type: "dom_probe", Data: payload})
	}
}

// flashProbeAnnotation draws an overlay over the element(s) a DOM probe
// resolved, captures one frame with it visible, then hides it again, so an
// operator watching the live teach frame sees what was detected. Annotation
// is a visualization aid only: failures here never affect the recording.
func (s *Session) flashProbeAnnotation(result *dom.ProbeResult) {
	em := dom.NewElementMap()
	if result.Element != nil {
		el := *result.Element
		el.Index = 0
		em.Add(&el)
	}
	if result.ActionableAncestor != nil {
		anc := *result.ActionableAncestor
		anc.Index = 1
		em.Add(&anc)
	}
	if em.Count() == 0 {
		return
	}

	ctx := context.Background()
	if err := s.b.ShowAnnotations(ctx, em, browser.DefaultAnnotationConfig()); err != nil {
		return
	}
	s.mu.Lock()
	s.lastProbeMap = em
	s.mu.Unlock()
	s.captureFrame(true)
	_ = s.b.HideAnnotations(ctx)
}

// ToggleAnnotations shows or hides an overlay over the elements resolved by
// the most recent DOM probe, for an operator manually re-inspecting what was
// detected. Returns an error if no probe has run yet in this session.
func (s *Session) ToggleAnnotations() (bool, error) {
	s.mu.Lock()
	em := s.lastProbeMap
	s.mu.Unlock()
	if em == nil {
		return false, runnererr.New("no probed elements to annotate")
	}
	return s.b.ToggleAnnotations(context.Background(), em, browser.DefaultAnnotationConfig())
}

// Close is a convenience for discarding a session's browser outside of a
// normal Stop call, e.g. on manager shutdown. Safe to call more than once.
func (s *Session) Close() error {
	if s.b == nil {
		return nil
	}
	return s.b.Close()
}
