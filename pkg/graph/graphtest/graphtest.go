// Package graphtest provides scripted graph endpoints for tests.
package graphtest

import (
	"context"
	"sync"

	"github.com/openfroyo/pathq/pkg/errdefs"
	"github.com/openfroyo/pathq/pkg/graph"
)

// Result is one scripted fetch outcome.
type Result struct {
	Value any
	Err   error
}

// OK returns a successful result.
func OK(v any) Result { return Result{Value: v} }

// Fail returns a transport failure of the given kind.
func Fail(kind errdefs.TransportKind) Result {
	return Result{Err: errdefs.NewTransportError(kind, "scripted failure", nil)}
}

// Endpoint is a graph.Endpoint that replays scripted results. The last
// result repeats once the script is exhausted.
type Endpoint struct {
	*graph.Object

	bulk   bool
	single bool

	mu       sync.Mutex
	script   []Result
	allCalls int
	oneCalls int
}

// NewEndpoint creates a scripted endpoint.
func NewEndpoint(bulk, single bool, script ...Result) *Endpoint {
	return &Endpoint{
		Object: graph.NewObject(),
		bulk:   bulk,
		single: single,
		script: script,
	}
}

// Push appends results to the script.
func (e *Endpoint) Push(results ...Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.script = append(e.script, results...)
}

// Fetchable implements graph.Endpoint.
func (e *Endpoint) Fetchable() bool { return e.single }

// BulkFetchable implements graph.Endpoint.
func (e *Endpoint) BulkFetchable() bool { return e.bulk }

// FetchAll implements graph.Endpoint.
func (e *Endpoint) FetchAll(context.Context) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.allCalls++
	return e.next()
}

// FetchOne implements graph.Endpoint.
func (e *Endpoint) FetchOne(context.Context) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.oneCalls++
	return e.next()
}

func (e *Endpoint) next() (any, error) {
	if len(e.script) == 0 {
		return nil, nil
	}
	r := e.script[0]
	if len(e.script) > 1 {
		e.script = e.script[1:]
	}
	return r.Value, r.Err
}

// Calls returns the total number of fetches.
func (e *Endpoint) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allCalls + e.oneCalls
}

// BulkCalls returns the number of FetchAll calls.
func (e *Endpoint) BulkCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allCalls
}

// SingleCalls returns the number of FetchOne calls.
func (e *Endpoint) SingleCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.oneCalls
}
