package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/openfroyo/pathq/pkg/errdefs"
	"github.com/openfroyo/pathq/pkg/query"
)

// Accessor returns a child node on demand.
type Accessor func() Node

// Indexer returns the child addressed by an index value.
type Indexer func(value any) (Node, bool)

// FetchFunc retrieves a resource.
type FetchFunc func(ctx context.Context) (any, error)

// Object is a Node assembled from accessor registrations.
// It is safe for concurrent use.
type Object struct {
	mu       sync.RWMutex
	children map[string]Accessor
	indexers map[query.IndexType]Indexer
}

// NewObject creates an empty object.
func NewObject() *Object {
	return &Object{
		children: make(map[string]Accessor),
		indexers: make(map[query.IndexType]Indexer),
	}
}

// Set registers a static child.
func (o *Object) Set(name string, child Node) *Object {
	return o.SetFunc(name, func() Node { return child })
}

// SetFunc registers a child accessor.
func (o *Object) SetFunc(name string, fn Accessor) *Object {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.children[name] = fn
	return o
}

// Index registers an indexer for an index type.
func (o *Object) Index(t query.IndexType, fn Indexer) *Object {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.indexers[t] = fn
	return o
}

// Child implements Node.
func (o *Object) Child(name string) (Node, bool) {
	o.mu.RLock()
	fn, ok := o.children[name]
	o.mu.RUnlock()
	if !ok {
		return nil, false
	}
	child := fn()
	return child, child != nil
}

// AcceptsIndex implements Node.
func (o *Object) AcceptsIndex(t query.IndexType) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.indexers[t]
	return ok
}

// IndexedChild implements Node.
func (o *Object) IndexedChild(t query.IndexType, value any) (Node, bool) {
	o.mu.RLock()
	fn, ok := o.indexers[t]
	o.mu.RUnlock()
	if !ok {
		return nil, false
	}
	child, ok := fn(value)
	return child, ok && child != nil
}

// Resource is an Endpoint assembled from an Object and fetch functions.
// A nil fetch function disables the corresponding capability.
type Resource struct {
	*Object
	name       string
	all        FetchFunc
	one        FetchFunc
	authorized bool
}

// NewResource creates a resource. name is only used in error messages.
func NewResource(name string, all, one FetchFunc) *Resource {
	return &Resource{Object: NewObject(), name: name, all: all, one: one}
}

// RequireAuthorization marks the resource as requiring an authorized caller.
func (r *Resource) RequireAuthorization() *Resource {
	r.authorized = true
	return r
}

// RequiresAuthorization implements Authenticated.
func (r *Resource) RequiresAuthorization() bool { return r.authorized }

// Fetchable implements Endpoint.
func (r *Resource) Fetchable() bool { return r.one != nil }

// BulkFetchable implements Endpoint.
func (r *Resource) BulkFetchable() bool { return r.all != nil }

// FetchAll implements Endpoint.
func (r *Resource) FetchAll(ctx context.Context) (any, error) {
	if r.all == nil {
		return nil, errdefs.NewInternalError(fmt.Sprintf("resource %s is not bulk fetchable", r.name), nil)
	}
	return r.all(ctx)
}

// FetchOne implements Endpoint.
func (r *Resource) FetchOne(ctx context.Context) (any, error) {
	if r.one == nil {
		return nil, errdefs.NewInternalError(fmt.Sprintf("resource %s is not fetchable", r.name), nil)
	}
	return r.one(ctx)
}

// String returns the resource name.
func (r *Resource) String() string { return r.name }
