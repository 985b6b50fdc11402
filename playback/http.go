package playback

import (
	"encoding/json"
	"go/types"
	"net/http"

	"github.com/jlarkin/scanaux/blanking"
	"github.com/jlarkin/scanaux/server"
)

// HTTPPlayback exposes a Playback over HTTP
type HTTPPlayback struct {
	p *Playback

	// RouteTable maps methods and paths to handlers
	RouteTable server.RouteTable
}

// NewHTTPPlayback wraps p in an HTTP interface
func NewHTTPPlayback(p *Playback) HTTPPlayback {
	h := HTTPPlayback{p: p}
	rt := server.RouteTable{
		server.MethodPath{Method: http.MethodGet, Path: "/timing"}:       h.GetTiming,
		server.MethodPath{Method: http.MethodPost, Path: "/timing"}:      h.StageTiming,
		server.MethodPath{Method: http.MethodPost, Path: "/apply"}:       h.Apply,
		server.MethodPath{Method: http.MethodPost, Path: "/start"}:       h.Start,
		server.MethodPath{Method: http.MethodPost, Path: "/stop"}:        h.Stop,
		server.MethodPath{Method: http.MethodGet, Path: "/waveform"}:     h.GetWaveform,
		server.MethodPath{Method: http.MethodGet, Path: "/running"}:      h.GetRunning,
		server.MethodPath{Method: http.MethodGet, Path: "/trigger/line"}: h.GetTriggerLine,

		server.MethodPath{Method: http.MethodPost, Path: "/trigger/line"}: h.SetTriggerLine,
		server.MethodPath{Method: http.MethodGet, Path: "/trigger/edge"}:  h.GetTriggerEdge,
		server.MethodPath{Method: http.MethodPost, Path: "/trigger/edge"}: h.SetTriggerEdge,
	}
	h.RouteTable = rt
	return h
}

// RT satisfies server.HTTPer
func (h HTTPPlayback) RT() server.RouteTable {
	return h.RouteTable
}

// GetTiming returns the committed timing spec as JSON
func (h HTTPPlayback) GetTiming(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(h.p.Timing())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// StageTiming parses a timing spec from the request body and stages it.
// The hardware is untouched until /apply.
func (h HTTPPlayback) StageTiming(w http.ResponseWriter, r *http.Request) {
	var ts blanking.TimingSpec
	err := json.NewDecoder(r.Body).Decode(&ts)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.p.Stage(ts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Apply commits the staged timing spec
func (h HTTPPlayback) Apply(w http.ResponseWriter, r *http.Request) {
	err := h.p.Apply()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Start arms the task
func (h HTTPPlayback) Start(w http.ResponseWriter, r *http.Request) {
	err := h.p.Start()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Stop disarms the task
func (h HTTPPlayback) Stop(w http.ResponseWriter, r *http.Request) {
	err := h.p.Stop()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// waveformJSON widens the sample bytes to ints; []uint8 would JSON encode
// as base64, which plotting clients cannot use directly
type waveformJSON struct {
	Primary      []int `json:"primary"`
	Shadow       []int `json:"shadow"`
	Truncated    bool  `json:"truncated"`
	ShadowForced bool  `json:"shadowForced"`
}

// GetWaveform returns the built waveform, including warning flags
func (h HTTPPlayback) GetWaveform(w http.ResponseWriter, r *http.Request) {
	wf := h.p.Waveform()
	out := waveformJSON{
		Primary:      make([]int, len(wf.Primary)),
		Shadow:       make([]int, len(wf.Shadow)),
		Truncated:    wf.Truncated,
		ShadowForced: wf.ShadowForced,
	}
	for i, v := range wf.Primary {
		out.Primary[i] = int(v)
	}
	for i, v := range wf.Shadow {
		out.Shadow[i] = int(v)
	}
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(out)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GetRunning returns whether the task is armed
func (h HTTPPlayback) GetRunning(w http.ResponseWriter, r *http.Request) {
	hp := server.HumanPayload{T: types.Bool, Bool: h.p.Running()}
	hp.EncodeAndRespond(w, r)
}

// GetTriggerLine returns the trigger line name
func (h HTTPPlayback) GetTriggerLine(w http.ResponseWriter, r *http.Request) {
	line, err := h.p.GetTriggerLine()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	hp := server.HumanPayload{T: types.String, String: line}
	hp.EncodeAndRespond(w, r)
}

// SetTriggerLine sets the trigger line name
func (h HTTPPlayback) SetTriggerLine(w http.ResponseWriter, r *http.Request) {
	str := server.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.p.SetTriggerLine(str.Str)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetTriggerEdge returns the trigger polarity
func (h HTTPPlayback) GetTriggerEdge(w http.ResponseWriter, r *http.Request) {
	edge, err := h.p.GetTriggerEdge()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	hp := server.HumanPayload{T: types.String, String: edge}
	hp.EncodeAndRespond(w, r)
}

// SetTriggerEdge sets the trigger polarity
func (h HTTPPlayback) SetTriggerEdge(w http.ResponseWriter, r *http.Request) {
	str := server.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.p.SetTriggerEdge(str.Str)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}
