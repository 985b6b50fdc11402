// Package server contains the HTTP plumbing shared by the device wrappers:
// route tables, the HTTPer interface, and the JSON payload envelopes.
package server

import (
	"encoding/json"
	"fmt"
	"go/types"
	"net/http"
	"sort"

	"github.com/go-chi/chi"
	"goji.io"
	"goji.io/pat"
)

// MethodPath is an HTTP method and path pair, the key of a RouteTable
type MethodPath struct {
	Method string
	Path   string
}

// RouteTable maps method+path to handlers.  Wrappers populate one and cmd
// programs bind it to their mux of choice.
type RouteTable map[MethodPath]http.HandlerFunc

// Bind attaches the table's routes to a chi router
func (rt RouteTable) Bind(r chi.Router) {
	for mp, handler := range rt {
		r.Method(mp.Method, mp.Path, handler)
	}
}

// BindGoji attaches the table's routes to a goji mux
func (rt RouteTable) BindGoji(mux *goji.Mux) {
	for mp, handler := range rt {
		mux.HandleFunc(pat.NewWithMethods(mp.Path, mp.Method), handler)
	}
}

// Endpoints lists the routes in the table as "METHOD path" strings, sorted
func (rt RouteTable) Endpoints() []string {
	routes := make([]string, 0, len(rt))
	for mp := range rt {
		routes = append(routes, mp.Method+" "+mp.Path)
	}
	sort.Strings(routes)
	return routes
}

// HTTPer is an object which exposes a route table
type HTTPer interface {
	RT() RouteTable
}

// HumanPayload is a struct that can hold any of the payload types,
// and the information to retrieve the correct one
type HumanPayload struct {
	// T is the type of the payload
	T types.BasicKind

	// Int holds an integer payload
	Int int

	// Float holds a float64 payload
	Float float64

	// Bool holds a bool payload
	Bool bool

	// String holds a string payload
	String string
}

// EncodeAndRespond writes the payload to w as JSON in the typed envelope
// format, {"f64": value} and so forth
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var err error
	switch hp.T {
	case types.Int:
		err = json.NewEncoder(w).Encode(IntT{Int: hp.Int})
	case types.Float64:
		err = json.NewEncoder(w).Encode(FloatT{F64: hp.Float})
	case types.Bool:
		err = json.NewEncoder(w).Encode(BoolT{Bool: hp.Bool})
	case types.String:
		err = json.NewEncoder(w).Encode(StrT{Str: hp.String})
	default:
		err = fmt.Errorf("unknown payload type %v", hp.T)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// StrT is a struct with a single Str field for JSON requests and replies
type StrT struct {
	Str string `json:"str"`
}

// FloatT is a struct with a single F64 field for JSON requests and replies
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a struct with a single Int field for JSON requests and replies
type IntT struct {
	Int int `json:"int"`
}

// BoolT is a struct with a single Bool field for JSON requests and replies
type BoolT struct {
	Bool bool `json:"bool"`
}
