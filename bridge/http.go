package bridge

import (
	"encoding/json"
	"go/types"
	"net/http"

	"github.com/jlarkin/scanaux/server"
)

// HTTPBridge exposes a Bridge over HTTP
type HTTPBridge struct {
	b *Bridge

	// RouteTable maps methods and paths to handlers
	RouteTable server.RouteTable
}

// NewHTTPBridge wraps b in an HTTP interface
func NewHTTPBridge(b *Bridge) HTTPBridge {
	h := HTTPBridge{b: b}
	rt := server.RouteTable{
		server.MethodPath{Method: http.MethodPost, Path: "/notify"}: h.Notify,
		server.MethodPath{Method: http.MethodGet, Path: "/state"}:   h.GetState,
		server.MethodPath{Method: http.MethodGet, Path: "/session"}: h.GetSession,
	}
	h.RouteTable = rt
	return h
}

// RT satisfies server.HTTPer
func (h HTTPBridge) RT() server.RouteTable {
	return h.RouteTable
}

// Notify reports an engine state transition.  The body is {"str": "grab"}
// and so forth.
func (h HTTPBridge) Notify(w http.ResponseWriter, r *http.Request) {
	str := server.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s, err := ValidateState(str.Str)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	err = h.b.Notify(s)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetState returns the current acquisition state
func (h HTTPBridge) GetState(w http.ResponseWriter, r *http.Request) {
	hp := server.HumanPayload{T: types.String, String: FormatState(h.b.State())}
	hp.EncodeAndRespond(w, r)
}

// GetSession returns the path of the open log session, empty if none
func (h HTTPBridge) GetSession(w http.ResponseWriter, r *http.Request) {
	hp := server.HumanPayload{T: types.String, String: h.b.SessionPath()}
	hp.EncodeAndRespond(w, r)
}
