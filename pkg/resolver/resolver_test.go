package resolver

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/pathq/pkg/catalog"
	"github.com/openfroyo/pathq/pkg/errdefs"
	"github.com/openfroyo/pathq/pkg/graph"
	"github.com/openfroyo/pathq/pkg/graph/graphtest"
	"github.com/openfroyo/pathq/pkg/query"
)

// fixture builds:
//
//	Account            endpoint
//	  Bank             endpoint, no indexer
//	  Achievements     plain node
//	    Daily          endpoint
//	Characters         plain node, STRING indexer
//	  [name]           endpoint
//	    Equipment      endpoint
type fixture struct {
	root       *graph.Object
	account    *graphtest.Endpoint
	bank       *graphtest.Endpoint
	daily      *graphtest.Endpoint
	character  *graphtest.Endpoint
	equipment  *graphtest.Endpoint
	characters *graph.Object
}

func newFixture() *fixture {
	f := &fixture{
		root:      graph.NewObject(),
		account:   graphtest.NewEndpoint(false, true),
		bank:      graphtest.NewEndpoint(true, false),
		daily:     graphtest.NewEndpoint(false, true),
		character: graphtest.NewEndpoint(false, true),
		equipment: graphtest.NewEndpoint(false, true),
	}
	f.account.Set("Bank", f.bank)
	f.account.Set("Achievements", graph.NewObject().Set("Daily", f.daily))
	f.character.Set("Equipment", f.equipment)
	f.characters = graph.NewObject().Index(query.TypeString, func(v any) (graph.Node, bool) {
		return f.character, v == "Zed"
	})
	f.root.Set("Account", f.account).Set("Characters", f.characters)
	return f
}

func mustParse(t *testing.T, text string) query.Query {
	t.Helper()
	q, err := query.Parse(text)
	require.NoError(t, err)
	return q
}

func paths(candidates []Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Path.String()
	}
	return out
}

func TestResolveCandidates(t *testing.T) {
	f := newFixture()
	r := New()
	ctx := context.Background()

	candidates, err := r.Resolve(ctx, f.root, mustParse(t, "Account.Bank"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Account", "Account.Bank"}, paths(candidates))

	last := candidates[1]
	assert.Same(t, f.bank, last.Endpoint)
	assert.False(t, last.HasSubQuery())
	assert.Empty(t, last.Remaining)

	first := candidates[0]
	assert.True(t, first.HasSubQuery())
	assert.Equal(t, "Bank", first.SubQuery.String())
}

func TestResolveRemainingIndices(t *testing.T) {
	f := newFixture()
	r := New()

	candidates, err := r.Resolve(context.Background(), f.root, mustParse(t, "Account.Bank[INT:5].Count"), nil)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	last := candidates[1]
	assert.Equal(t, "Account.Bank", last.Path.String(), "unconsumed indices are dropped from the path")
	if diff := cmp.Diff([]query.Index{query.Literal(query.TypeInt, 5)}, last.Remaining); diff != "" {
		t.Errorf("remaining mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Count", last.SubQuery.String())
}

func TestResolveStopsAfterRemainingIndices(t *testing.T) {
	f := newFixture()
	f.bank.Set("Tabs", graphtest.NewEndpoint(false, true))
	r := New()

	candidates, err := r.Resolve(context.Background(), f.root, mustParse(t, "Account.Bank[INT:1].Tabs"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Account", "Account.Bank"}, paths(candidates),
		"Tabs must not be reached once Bank left an index unconsumed")
}

func TestResolveIndexedChild(t *testing.T) {
	f := newFixture()
	r := New()
	vars := query.VariableResolverFunc(func(_ context.Context, name string) (string, bool, error) {
		return "Zed", name == "who", nil
	})

	candidates, err := r.Resolve(context.Background(), f.root, mustParse(t, "Characters[STRING:$who].Equipment"), vars)
	require.NoError(t, err)
	assert.Equal(t, []string{"Characters[STRING:Zed]", "Characters[STRING:Zed].Equipment"}, paths(candidates),
		"consumed variables are bound in the path")
	assert.Same(t, f.equipment, candidates[1].Endpoint)

	_, err = r.Resolve(context.Background(), f.root, mustParse(t, "Characters[STRING:Nobody]"), nil)
	assert.True(t, errdefs.IsResolve(err))

	_, err = r.Resolve(context.Background(), f.root, mustParse(t, "Characters[STRING:$ghost]"), vars)
	assert.True(t, errdefs.IsResolve(err))

	_, err = r.Resolve(context.Background(), f.root, mustParse(t, "Characters[STRING:$who]"), nil)
	assert.True(t, errdefs.IsConfiguration(err))
}

func TestResolveMissingChild(t *testing.T) {
	f := newFixture()
	r := New()
	ctx := context.Background()

	_, err := r.Resolve(ctx, f.root, mustParse(t, "Wallet"), nil)
	require.Error(t, err)
	assert.True(t, errdefs.IsResolve(err))

	candidates, err := r.Resolve(ctx, f.root, mustParse(t, "Account.Name"), nil)
	require.NoError(t, err, "a missing child after an endpoint stops the walk silently")
	assert.Equal(t, []string{"Account"}, paths(candidates))
	assert.Equal(t, "Name", candidates[0].SubQuery.String())

	candidates, err = r.Resolve(ctx, f.root, mustParse(t, "Account.Achievements.Daily"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Account", "Account.Achievements.Daily"}, paths(candidates))
}

func TestResolveCatalogValidation(t *testing.T) {
	f := newFixture()
	r := New(WithCatalog(catalog.Default()))

	_, err := r.Resolve(context.Background(), f.root, mustParse(t, "Account.Bank[STRING:x]"), nil)
	require.Error(t, err)
	assert.True(t, errdefs.IsResolve(err))
}

func TestDeepest(t *testing.T) {
	f := newFixture()
	r := New()

	c, err := r.Deepest(context.Background(), f.root, mustParse(t, "Account.Bank"), nil)
	require.NoError(t, err)
	assert.Same(t, f.bank, c.Endpoint)

	f.root.Set("Plain", graph.NewObject())
	_, err = r.Deepest(context.Background(), f.root, mustParse(t, "Plain"), nil)
	assert.True(t, errdefs.IsResolve(err))
}

func TestApply(t *testing.T) {
	r := New()
	ctx := context.Background()
	items := []any{
		map[string]any{"Id": 10, "Count": 1},
		map[string]any{"Id": 11, "Count": 250, "Upgrades": []any{24615}},
	}

	c := Candidate{
		Path:      mustParse(t, "Account.Bank"),
		SubQuery:  mustParse(t, "Upgrades[INT:0]"),
		Remaining: []query.Index{query.Literal(query.TypeInt, 1)},
	}
	v, err := r.Apply(ctx, items, c, nil)
	require.NoError(t, err)
	assert.Equal(t, 24615, v)

	c.SubQuery = query.Query{}
	v, err = r.Apply(ctx, items, c, nil)
	require.NoError(t, err)
	assert.Equal(t, items[1], v)

	c.Remaining = []query.Index{query.Literal(query.TypeInt, 7)}
	_, err = r.Apply(ctx, items, c, nil)
	assert.True(t, errdefs.IsResolve(err))

	c.Remaining = []query.Index{query.Literal(query.TypeString, "x")}
	_, err = r.Apply(ctx, items, c, nil)
	assert.True(t, errdefs.IsResolve(err))

	c.Remaining = nil
	c.SubQuery = mustParse(t, "Missing")
	_, err = r.Apply(ctx, map[string]any{"Present": 1}, c, nil)
	assert.True(t, errdefs.IsResolve(err))

	_, err = r.Apply(ctx, nil, Candidate{Path: mustParse(t, "Account")}, nil)
	assert.True(t, errdefs.IsResolve(err))
}
