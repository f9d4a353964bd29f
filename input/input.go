// Package input holds what the ingestion listeners share: the parser
// resolution and dispatch hooks through which a listener hands an accepted
// request to the delivery pipeline.
//
// Listeners live in the sub-packages: rest (HTTP), udp and natsin.
package input

import (
	"github.com/c360/ngsiadapter/parser"
	"github.com/c360/ngsiadapter/request"
)

// Resolver finds the parser for a probe.
type Resolver interface {
	Resolve(name string) (parser.Parser, error)
	ResolveFromPath(path string) (parser.Parser, error)
}

// Dispatcher runs the delivery pipeline for an accepted request. Dispatch
// must not block on the delivery itself.
type Dispatcher interface {
	Dispatch(rc *request.Context)
}

// DispatchFunc adapts a function to the Dispatcher interface.
type DispatchFunc func(rc *request.Context)

// Dispatch implements Dispatcher.
func (f DispatchFunc) Dispatch(rc *request.Context) {
	f(rc)
}
