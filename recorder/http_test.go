package recorder

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func tmplMeta() Metadata {
	return Metadata{
		ChannelIndices: []int{0, 1},
		ChannelNames:   []string{"pmt", "pockels"},
		VoltageRange:   [2]float64{-10, 10},
		SampleRate:     125e3,
	}
}

func TestSettingsSaveLoadOverHTTP(t *testing.T) {
	tmpl := NewTemplate(tmplMeta())
	h := NewHTTPRecorder(tmpl, t.TempDir())

	body, _ := json.Marshal(map[string]string{"str": "twochan"})
	w := httptest.NewRecorder()
	h.SaveNamed(w, httptest.NewRequest(http.MethodPost, "/settings/save", bytes.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("save returned %d: %s", w.Code, w.Body.String())
	}

	// mutate the template, then load the saved settings back
	m := tmplMeta()
	m.SampleRate = 250e3
	m.ChannelIndices = []int{0}
	m.ChannelNames = []string{"pmt"}
	tmpl.Update(m)

	w = httptest.NewRecorder()
	h.LoadNamed(w, httptest.NewRequest(http.MethodPost, "/settings/load", bytes.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("load returned %d: %s", w.Code, w.Body.String())
	}
	got := tmpl.Snapshot()
	if got.SampleRate != 125e3 {
		t.Errorf("sample rate not restored, got %f", got.SampleRate)
	}
	if len(got.ChannelIndices) != 2 {
		t.Errorf("channel list not restored, got %v", got.ChannelIndices)
	}

	w = httptest.NewRecorder()
	h.ListSettings(w, httptest.NewRequest(http.MethodGet, "/settings", nil))
	var names []string
	if err := json.NewDecoder(w.Body).Decode(&names); err != nil {
		t.Fatalf("decoding settings list: %v", err)
	}
	if len(names) != 1 || names[0] != "twochan" {
		t.Errorf("unexpected settings list %v", names)
	}
}

func TestLoadMissingSettingsIs404(t *testing.T) {
	h := NewHTTPRecorder(NewTemplate(tmplMeta()), t.TempDir())
	body, _ := json.Marshal(map[string]string{"str": "nosuch"})
	w := httptest.NewRecorder()
	h.LoadNamed(w, httptest.NewRequest(http.MethodPost, "/settings/load", bytes.NewReader(body)))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestSettingsNameCannotEscapeDirectory(t *testing.T) {
	h := NewHTTPRecorder(NewTemplate(tmplMeta()), t.TempDir())
	for _, name := range []string{"../evil", "/etc/passwd", ".hidden", ""} {
		body, _ := json.Marshal(map[string]string{"str": name})
		w := httptest.NewRecorder()
		h.SaveNamed(w, httptest.NewRequest(http.MethodPost, "/settings/save", bytes.NewReader(body)))
		if w.Code != http.StatusBadRequest {
			t.Errorf("name %q: expected 400, got %d", name, w.Code)
		}
	}
}

func TestSetMetadataValidatesShape(t *testing.T) {
	tmpl := NewTemplate(tmplMeta())
	h := NewHTTPRecorder(tmpl, t.TempDir())
	m := tmplMeta()
	m.ChannelNames = []string{"only-one"}
	body, _ := json.Marshal(m)
	w := httptest.NewRecorder()
	h.SetMetadata(w, httptest.NewRequest(http.MethodPost, "/metadata", bytes.NewReader(body)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 on ragged channel names, got %d", w.Code)
	}
}
