// Package server contains the shared HTTP plumbing: route tables bound to
// goji muxes, and the single-value JSON payload conventions used by every
// endpoint.
package server

import (
	"encoding/json"
	"fmt"
	"go/types"
	"net/http"

	"goji.io"
)

// FloatT is a JSON payload of a single float, {"f64": value}
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a JSON payload of a single int, {"int": value}
type IntT struct {
	Int int `json:"int"`
}

// BoolT is a JSON payload of a single bool, {"bool": value}
type BoolT struct {
	Bool bool `json:"bool"`
}

// StrT is a JSON payload of a single string, {"str": value}
type StrT struct {
	Str string `json:"str"`
}

// HumanPayload is a single value and the kind tag needed to encode it with
// the response conventions above
type HumanPayload struct {
	// T is the type of the value
	T types.BasicKind

	Int    int
	Float  float64
	Bool   bool
	String string
}

// EncodeAndRespond writes the payload to w as JSON
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var err error
	switch hp.T {
	case types.Float64:
		err = json.NewEncoder(w).Encode(FloatT{F64: hp.Float})
	case types.Int:
		err = json.NewEncoder(w).Encode(IntT{Int: hp.Int})
	case types.Bool:
		err = json.NewEncoder(w).Encode(BoolT{Bool: hp.Bool})
	case types.String:
		err = json.NewEncoder(w).Encode(StrT{Str: hp.String})
	default:
		err = fmt.Errorf("unsupported payload kind %v", hp.T)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// RouteTable maps goji patterns to their handlers
type RouteTable map[goji.Pattern]http.HandlerFunc

// Bind attaches every route in the table to m
func (rt RouteTable) Bind(m *goji.Mux) {
	for p, h := range rt {
		m.Handle(p, h)
	}
}

// Endpoints lists the patterns in the table
func (rt RouteTable) Endpoints() []string {
	eps := make([]string, 0, len(rt))
	for p := range rt {
		eps = append(eps, fmt.Sprintf("%v", p))
	}
	return eps
}

// HTTPer is a type which exposes a route table that extensions may inject
// additional routes into
type HTTPer interface {
	RT() RouteTable
}
