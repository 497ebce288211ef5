// Package graph defines the capability interfaces of the remote resource graph
// walked by the resolver.
//
// A Node exposes named children and, optionally, indexed children. A node
// that can be fetched from the remote side additionally implements Endpoint.
// Nothing in this package uses reflection: concrete graphs either implement
// the interfaces directly or assemble them from Object and Resource, which map
// names and index types to accessor functions.
package graph

import (
	"context"

	"github.com/openfroyo/pathq/pkg/query"
)

// Node is a step in the capability graph.
type Node interface {
	// Child returns the named child, or false if the node has none.
	Child(name string) (Node, bool)

	// AcceptsIndex reports whether the node can be indexed with values of t.
	AcceptsIndex(t query.IndexType) bool

	// IndexedChild returns the child addressed by an index value. It is only
	// called when AcceptsIndex(t) is true. ok is false when the value does not
	// address anything.
	IndexedChild(t query.IndexType, value any) (child Node, ok bool)
}

// Endpoint is a node that can be fetched from the remote side.
//
// Fetch methods return errors classified with errdefs transport kinds when the
// failure originates on the remote side; see ClassifyGRPC and ClassifyHTTP.
type Endpoint interface {
	Node

	// Fetchable reports whether FetchOne is supported.
	Fetchable() bool

	// BulkFetchable reports whether FetchAll is supported.
	BulkFetchable() bool

	// FetchAll retrieves every item of the resource.
	FetchAll(ctx context.Context) (any, error)

	// FetchOne retrieves the resource as a single document.
	FetchOne(ctx context.Context) (any, error)
}

// AsEndpoint reports whether n exposes the endpoint capability.
func AsEndpoint(n Node) (Endpoint, bool) {
	ep, ok := n.(Endpoint)
	return ep, ok
}

// Authenticated is implemented by endpoints that know whether access requires
// an authorized caller.
type Authenticated interface {
	RequiresAuthorization() bool
}
