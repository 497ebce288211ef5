// Package query implements the structural model and text grammar of path queries.
//
// A path query addresses a value inside a remote resource graph:
//
//	Account.Bank[INT:5]
//	Characters[STRING:$name].Equipment
//	Guild[GUID:116e0c0e-0035-44a9-bb22-4ae3e23127e5].Members
//
// The text is a sequence of parts joined by a separator. Each part is a name
// optionally followed by one or more bracketed indices. An index is a type tag,
// a type separator and either a literal or a variable reference introduced by
// the variable marker. Variables are resolved later through a VariableResolver.
//
// # Syntax
//
// Every structural token is configurable through Syntax. The defaults are
//
//	separator       .
//	index brackets  [ ]
//	type separator  :
//	variable marker $
//	optional tag    OPTIONAL
//
// The optional tag is never valid in a query. It is reserved for catalog
// descriptors (see package catalog) and is validated here so that both grammars
// share one token set.
//
// # Types
//
// Index types are registered through Converter values held in a Registry. The
// default registry knows INTEGER/INT, STRING/STR and GUID. Rendering always
// uses a converter's primary tag, so "INT:5" renders as "INTEGER:5".
//
// # Values
//
// Query, Part and Index are immutable. Their Equal methods compare structure,
// which makes them usable with go-cmp and guarantees
//
//	Parse(Render(Parse(x))) == Parse(x)
//
// for every text x that parses.
package query
