package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"ocular/pkg/button"
	"ocular/pkg/geo"
	"ocular/pkg/sensor/mocksensor"
	"ocular/pkg/speech"
)

// MockHandler drives the simulated device: its buttons, microphone and
// walker.
type MockHandler struct {
	buttons map[string]*button.Virtual
	speech  *speech.Scripted
	walker  *mocksensor.Walker
}

// NewMockHandler creates a MockHandler. Returns nil if no mock device runs.
func NewMockHandler(control, emergency *button.Virtual, sp *speech.Scripted, w *mocksensor.Walker) *MockHandler {
	if control == nil && emergency == nil && sp == nil && w == nil {
		return nil
	}
	b := map[string]*button.Virtual{}
	if control != nil {
		b["control"] = control
	}
	if emergency != nil {
		b["emergency"] = emergency
	}
	return &MockHandler{buttons: b, speech: sp, walker: w}
}

// ButtonRequest presses, releases or clicks a virtual button. A click holds
// the button for HoldMS (default 200ms).
type ButtonRequest struct {
	Action string `json:"action"` // "press", "release", "click"
	HoldMS int    `json:"hold_ms"`
}

// HandleButton handles POST /api/mock/button/{name}
func (h *MockHandler) HandleButton(w http.ResponseWriter, r *http.Request) {
	b, ok := h.buttons[r.PathValue("name")]
	if !ok {
		http.Error(w, "unknown button", http.StatusNotFound)
		return
	}
	var req ButtonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	switch req.Action {
	case "press":
		b.Press()
	case "release":
		b.Release()
	case "click":
		hold := time.Duration(req.HoldMS) * time.Millisecond
		if hold <= 0 {
			hold = 200 * time.Millisecond
		}
		b.Press()
		time.AfterFunc(hold, b.Release)
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}
	slog.Debug("Mock button", "name", r.PathValue("name"), "action", req.Action)
	writeJSON(w, map[string]string{"status": "ok"})
}

// SayRequest queues a phrase for the next listen.
type SayRequest struct {
	Text string `json:"text"`
}

// HandleSay handles POST /api/mock/say
func (h *MockHandler) HandleSay(w http.ResponseWriter, r *http.Request) {
	if h.speech == nil {
		http.Error(w, "no scripted microphone", http.StatusNotFound)
		return
	}
	var req SayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !h.speech.Say(req.Text) {
		http.Error(w, "phrase queue full", http.StatusTooManyRequests)
		return
	}
	writeJSON(w, map[string]string{"status": "queued"})
}

// WalkerRequest moves the simulated wearer.
type WalkerRequest struct {
	Command string         `json:"command"` // "walk", "stop", "turn", "teleport"
	Args    map[string]any `json:"args"`
}

// HandleWalker handles POST /api/mock/walker
func (h *MockHandler) HandleWalker(w http.ResponseWriter, r *http.Request) {
	if h.walker == nil {
		http.Error(w, "no simulated walker", http.StatusNotFound)
		return
	}
	var req WalkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	switch req.Command {
	case "walk":
		h.walker.Walk(true)
	case "stop":
		h.walker.Walk(false)
	case "turn":
		hdg, ok := req.Args["heading"].(float64)
		if !ok {
			http.Error(w, "heading required", http.StatusBadRequest)
			return
		}
		h.walker.TurnTo(hdg)
	case "teleport":
		lat, ok1 := req.Args["lat"].(float64)
		lon, ok2 := req.Args["lon"].(float64)
		p := geo.Point{Lat: lat, Lon: lon}
		if !ok1 || !ok2 || !p.Valid() {
			http.Error(w, "lat and lon required", http.StatusBadRequest)
			return
		}
		h.walker.Teleport(p)
	default:
		http.Error(w, "unknown command", http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]string{"status": "ok", "stage": h.walker.Stage()})
}
