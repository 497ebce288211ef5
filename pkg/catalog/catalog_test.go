package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/pathq/pkg/errdefs"
	"github.com/openfroyo/pathq/pkg/query"
)

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		text  string
		parts []Part
	}{
		{
			text:  "Pvp.Stats",
			parts: []Part{{Name: "Pvp", DirectlyFetchable: true}, {Name: "Stats", DirectlyFetchable: true}},
		},
		{
			text: "Account.Bank[OPTIONAL:INT]",
			parts: []Part{
				{Name: "Account", DirectlyFetchable: true},
				{Name: "Bank", DirectlyFetchable: true, IndexTypes: []query.IndexType{query.TypeInt}},
			},
		},
		{
			text: "Characters[OPTIONAL:INT:STRING]",
			parts: []Part{
				{Name: "Characters", DirectlyFetchable: true, IndexTypes: []query.IndexType{query.TypeInt, query.TypeString}},
			},
		},
		{
			text:  "Guild[GUID]",
			parts: []Part{{Name: "Guild", IndexTypes: []query.IndexType{query.TypeGUID}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			e, err := ParseEndpoint(tt.text, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.parts, e.Parts)
		})
	}
}

func TestParseEndpointErrors(t *testing.T) {
	for _, text := range []string{"", "Bank[]", "Bank[INT", "Bank]", "Bank[FLOAT]", "Bank[OPTIONAL]", "Account..Bank"} {
		t.Run(text, func(t *testing.T) {
			_, err := ParseEndpoint(text, nil)
			require.Error(t, err)
			assert.True(t, errdefs.IsConfiguration(err))
		})
	}
}

func TestEndpointFormat(t *testing.T) {
	e, err := ParseEndpoint("Characters[OPTIONAL:INT:STR]", nil)
	require.NoError(t, err)
	assert.Equal(t, "Characters[OPTIONAL:INTEGER:STRING]", e.String())

	e, err = ParseEndpoint("Guild[GUID]", nil)
	require.NoError(t, err)
	assert.Equal(t, "Guild[GUID]", e.String())
}

func TestSupports(t *testing.T) {
	bank, err := ParseEndpoint("Account.Bank[OPTIONAL:INT]", nil)
	require.NoError(t, err)
	guild, err := ParseEndpoint("Guild[GUID]", nil)
	require.NoError(t, err)

	tests := []struct {
		endpoint Endpoint
		text     string
		want     bool
	}{
		{bank, "Account.Bank", true},
		{bank, "Account.Bank[INT:5]", true},
		{bank, "Account.Bank[INT:5].Count", true},
		{bank, "Account.Bank[STRING:x]", false},
		{bank, "Account", false},
		{bank, "Account.Wallet", false},
		{guild, "Guild", false},
		{guild, "Guild[GUID:116e0c0e-0035-44a9-bb22-4ae3e23127e5]", true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			q, err := query.Parse(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tt.endpoint.Supports(q))
		})
	}
}

func TestDefaultCatalogMatch(t *testing.T) {
	c := Default()
	require.Greater(t, c.Len(), 30)

	q, err := query.Parse("Account.Bank[INT:5]")
	require.NoError(t, err)
	e, ok := c.Match(q)
	require.True(t, ok)
	assert.Equal(t, []string{"Account", "Bank"}, e.Names())
	assert.Equal(t, []string{"account", "inventories"}, e.Requires)

	q, err = query.Parse("Account.Name")
	require.NoError(t, err)
	e, ok = c.Match(q)
	require.True(t, ok)
	assert.Equal(t, []string{"Account"}, e.Names(), "falls back to the longest supporting endpoint")

	q, err = query.Parse("Items[INT:1]")
	require.NoError(t, err)
	_, ok = c.Match(q)
	assert.False(t, ok)

	guild, ok := c.Lookup([]string{"Guild"})
	require.True(t, ok)
	assert.False(t, guild.Public)
	assert.Empty(t, guild.Requires)
}

func TestValidateIndices(t *testing.T) {
	c := Default()

	ok := []string{
		"Account.Bank[INT:5]",
		"Characters[STRING:$who].Equipment",
		"Items[GUID:116e0c0e-0035-44a9-bb22-4ae3e23127e5]",
	}
	for _, text := range ok {
		q, err := query.Parse(text)
		require.NoError(t, err)
		assert.NoError(t, c.ValidateIndices(q), text)
	}

	bad := []string{
		"Account.Bank[STRING:x]",
		"Guild.Members",
	}
	for _, text := range bad {
		q, err := query.Parse(text)
		require.NoError(t, err)
		err = c.ValidateIndices(q)
		require.Error(t, err, text)
		assert.True(t, errdefs.IsResolve(err))
	}
}

func TestNewRejectsInvalidParts(t *testing.T) {
	_, err := New(Endpoint{Parts: []Part{{Name: "Broken"}}})
	assert.True(t, errdefs.IsConfiguration(err))

	_, err = New(Endpoint{})
	assert.True(t, errdefs.IsConfiguration(err))
}

func TestCustomSyntaxCatalog(t *testing.T) {
	syntax := query.DefaultSyntax()
	syntax.Separator = "/"
	syntax.OptionalTag = "ANY"
	parser, err := query.NewParser(syntax, nil)
	require.NoError(t, err)

	c, err := DefaultFor(parser)
	require.Error(t, err, "built-in entries use the default separator and optional tag")
	assert.Nil(t, c)

	c, err = Parse([]byte(`endpoints: [{path: "Account/Bank[ANY:INT]", public: true}]`), parser)
	require.NoError(t, err)
	e := c.Endpoints()[0]
	assert.True(t, e.Public)
	assert.True(t, e.Parts[1].DirectlyFetchable)
}

func TestRequirements(t *testing.T) {
	r := NewRequirements(zerolog.Nop(), map[string][]string{
		"Account.Bank": {"account", "inventories"},
		"Build":        nil,
	})

	caps, ok := r.Lookup("Account.Bank")
	require.True(t, ok)
	assert.Equal(t, []string{"account", "inventories"}, caps)

	caps, ok = r.Lookup("Build")
	require.True(t, ok)
	assert.NotNil(t, caps)
	assert.Empty(t, caps)

	_, ok = r.Lookup("Guild")
	assert.False(t, ok)

	var nilTable *Requirements
	_, ok = nilTable.Lookup("Account")
	assert.False(t, ok)
}

func TestRequirementsWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "requirements.yaml")
	require.NoError(t, os.WriteFile(path, []byte("requirements: {Account: [account]}\n"), 0o600))

	r := NewRequirements(zerolog.Nop(), nil)
	require.NoError(t, r.LoadFile(path))
	caps, ok := r.Lookup("Account")
	require.True(t, ok)
	assert.Equal(t, []string{"account"}, caps)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Watch(ctx, path))
	defer func() { _ = r.StopWatching() }()

	require.NoError(t, os.WriteFile(path, []byte("requirements: {Account: [account, wallet]}\n"), 0o600))

	assert.Eventually(t, func() bool {
		caps, _ := r.Lookup("Account")
		return len(caps) == 2
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRequirementsLoadErrors(t *testing.T) {
	r := NewRequirements(zerolog.Nop(), nil)
	err := r.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errdefs.IsConfiguration(err))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("requirements: [oops"), 0o600))
	assert.True(t, errdefs.IsConfiguration(r.LoadFile(path)))
}
