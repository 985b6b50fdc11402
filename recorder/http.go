package recorder

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jlarkin/scanaux/server"
)

// Template is a goroutine-safe holder for the metadata applied to new
// sessions.  The server snapshots it when wiring the bridge; edits made over
// HTTP land in the template and in saved settings, taking effect at the next
// server start.
type Template struct {
	mu sync.Mutex
	m  Metadata
}

// NewTemplate returns a Template seeded with m
func NewTemplate(m Metadata) *Template {
	return &Template{m: m}
}

// Snapshot returns a copy of the current metadata
func (t *Template) Snapshot() Metadata {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.m
}

// Update replaces the current metadata
func (t *Template) Update(m Metadata) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m = m
}

// HTTPRecorder exposes the metadata template and settings persistence over
// HTTP.  Saved settings live as YAML files in a single directory.
type HTTPRecorder struct {
	t   *Template
	dir string

	// RouteTable maps methods and paths to handlers
	RouteTable server.RouteTable
}

// NewHTTPRecorder wraps t in an HTTP interface; dir is where named settings
// are saved
func NewHTTPRecorder(t *Template, dir string) HTTPRecorder {
	h := HTTPRecorder{t: t, dir: dir}
	rt := server.RouteTable{
		server.MethodPath{Method: http.MethodGet, Path: "/metadata"}:       h.GetMetadata,
		server.MethodPath{Method: http.MethodPost, Path: "/metadata"}:      h.SetMetadata,
		server.MethodPath{Method: http.MethodGet, Path: "/settings"}:       h.ListSettings,
		server.MethodPath{Method: http.MethodPost, Path: "/settings/save"}: h.SaveNamed,
		server.MethodPath{Method: http.MethodPost, Path: "/settings/load"}: h.LoadNamed,
	}
	h.RouteTable = rt
	return h
}

// RT satisfies server.HTTPer
func (h HTTPRecorder) RT() server.RouteTable {
	return h.RouteTable
}

// GetMetadata returns the metadata template as JSON
func (h HTTPRecorder) GetMetadata(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(h.t.Snapshot())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// SetMetadata replaces the metadata template
func (h HTTPRecorder) SetMetadata(w http.ResponseWriter, r *http.Request) {
	var m Metadata
	err := json.NewDecoder(r.Body).Decode(&m)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(m.ChannelNames) != 0 && len(m.ChannelNames) != len(m.ChannelIndices) {
		http.Error(w, "channel names and indices must be the same length", http.StatusBadRequest)
		return
	}
	h.t.Update(m)
	w.WriteHeader(http.StatusOK)
}

// settingsPath resolves a bare settings name to its YAML file, refusing
// names that escape the settings directory
func (h HTTPRecorder) settingsPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid settings name %q", name)
	}
	return filepath.Join(h.dir, name+".yaml"), nil
}

// ListSettings returns the saved settings names as a JSON array
func (h HTTPRecorder) ListSettings(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(h.dir)
	if err != nil && !os.IsNotExist(err) {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	names := []string{}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
		}
	}
	w.Header().Set("Content-Type", "application/json")
	err = json.NewEncoder(w).Encode(names)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// SaveNamed stores the current template under the name in {"str": name}
func (h HTTPRecorder) SaveNamed(w http.ResponseWriter, r *http.Request) {
	str := server.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	path, err := h.settingsPath(str.Str)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := os.MkdirAll(h.dir, 0755); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	err = SaveSettings(path, FromMetadata(h.t.Snapshot()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// LoadNamed applies the named saved settings to the template
func (h HTTPRecorder) LoadNamed(w http.ResponseWriter, r *http.Request) {
	str := server.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	path, err := h.settingsPath(str.Str)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s, err := LoadSettings(path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	m := h.t.Snapshot()
	s.Apply(&m)
	h.t.Update(m)
	w.WriteHeader(http.StatusOK)
}
