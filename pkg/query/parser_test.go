package query

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/pathq/pkg/errdefs"
)

func TestParseLiteralIndex(t *testing.T) {
	q, err := Parse("Account.Bank[INT:5]")
	require.NoError(t, err)

	want := MustNew(
		NewPart("Account"),
		NewPart("Bank", Literal(TypeInt, 5)),
	)
	if diff := cmp.Diff(want, q); diff != "" {
		t.Fatalf("Parse() mismatch (-want +got):\n%s", diff)
	}

	require.Equal(t, 2, q.Len())
	bank := q.Part(1)
	assert.True(t, bank.Enumerate())
	require.Equal(t, 1, bank.NumIndices())
	assert.Equal(t, TypeInt, bank.Index(0).Type())
	assert.Equal(t, 5, bank.Index(0).Value())
	assert.False(t, q.ContainsVariable())
}

func TestParseForms(t *testing.T) {
	guid := uuid.MustParse("116e0c0e-0035-44a9-bb22-4ae3e23127e5")

	tests := []struct {
		name string
		text string
		want Query
	}{
		{
			name: "single part",
			text: "Build",
			want: MustNew(NewPart("Build")),
		},
		{
			name: "variable index",
			text: "Characters[STRING:$name].Equipment",
			want: MustNew(
				NewPart("Characters", Variable(TypeString, "name")),
				NewPart("Equipment"),
			),
		},
		{
			name: "multiple indices",
			text: "Items[INT:1][INT:$id]",
			want: MustNew(NewPart("Items", Literal(TypeInt, 1), Variable(TypeInt, "id"))),
		},
		{
			name: "guid index",
			text: "Guild[GUID:116e0c0e-0035-44a9-bb22-4ae3e23127e5].Members",
			want: MustNew(NewPart("Guild", Literal(TypeGUID, guid)), NewPart("Members")),
		},
		{
			name: "alias and case",
			text: "Commerce.Prices[integer:19684]",
			want: MustNew(NewPart("Commerce"), NewPart("Prices", Literal(TypeInt, 19684))),
		},
		{
			name: "string literal with separator",
			text: "Characters[STR:Mr. Bean]",
			want: MustNew(NewPart("Characters", Literal(TypeString, "Mr. Bean"))),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.text)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.text, diff)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		text string
		code string
	}{
		{"", errdefs.ErrCodeEmptySegment},
		{".Bank", errdefs.ErrCodeEmptySegment},
		{"Account.", errdefs.ErrCodeEmptySegment},
		{"Account..Bank", errdefs.ErrCodeEmptySegment},
		{"Bank[INT:5", errdefs.ErrCodeUnbalancedBracket},
		{"Bank[INT:5]]", errdefs.ErrCodeUnbalancedBracket},
		{"Bank]INT:5]", errdefs.ErrCodeUnbalancedBracket},
		{"Bank[INT:[5]]", errdefs.ErrCodeUnbalancedBracket},
		{"Bank[]", errdefs.ErrCodeEmptySegment},
		{"Bank[INT:]", errdefs.ErrCodeEmptySegment},
		{"Bank[:5]", errdefs.ErrCodeEmptySegment},
		{"Bank[INT:$]", errdefs.ErrCodeEmptySegment},
		{"Bank[5]", errdefs.ErrCodeUnknownType},
		{"Bank[FLOAT:5]", errdefs.ErrCodeUnknownType},
		{"Bank[OPTIONAL:5]", errdefs.ErrCodeUnknownType},
		{"Bank[INT:five]", errdefs.ErrCodeBadLiteral},
		{"Guild[GUID:nope]", errdefs.ErrCodeBadLiteral},
		{"Bank[INT:5]x", errdefs.ErrCodeUnexpectedToken},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			_, err := Parse(tt.text)
			require.Error(t, err)
			assert.True(t, errdefs.IsParse(err), "expected parse error, got %v", err)

			var e *errdefs.Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.text, e.Query)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	texts := []string{
		"Account",
		"Account.Bank[INT:5]",
		"Account.Bank[INTEGER:-3]",
		"Characters[STR:$who].Equipment",
		"Characters[STRING:Zoë Quinn].Inventory[INT:0][INT:$slot]",
		"Guild[GUID:{116E0C0E-0035-44A9-BB22-4AE3E23127E5}].Log",
		"Commerce.Prices[int:+42]",
	}

	for _, text := range texts {
		t.Run(text, func(t *testing.T) {
			first, err := Parse(text)
			require.NoError(t, err)

			rendered := DefaultParser().Render(first)
			second, err := Parse(rendered)
			require.NoError(t, err, "rendered %q", rendered)

			if diff := cmp.Diff(first, second); diff != "" {
				t.Errorf("round trip mismatch for %q -> %q (-first +second):\n%s", text, rendered, diff)
			}
			assert.Equal(t, rendered, second.String(), "render must be canonical")
		})
	}
}

func FuzzRoundTrip(f *testing.F) {
	custom := MustNewParser(Syntax{
		Separator:      "/",
		IndexOpen:      "(",
		IndexClose:     ")",
		TypeSeparator:  "=",
		VariableMarker: "@",
		OptionalTag:    "MAYBE",
	}, nil)

	for _, text := range []string{
		"Account",
		"Account.Bank[INT:5]",
		"Account.Bank[INTEGER:-3]",
		"Characters[STR:$who].Equipment",
		"Characters[STRING:Zoë Quinn].Inventory[INT:0][INT:$slot]",
		"Guild[GUID:{116E0C0E-0035-44A9-BB22-4AE3E23127E5}].Log",
		"Commerce.Prices[int:+42]",
		"Chars[STRING:a.b:c]",
	} {
		f.Add(text, false)
	}
	for _, text := range []string{
		"Account/Bank(INT=5)(STRING=@who)",
		"Guild(GUID=116e0c0e-0035-44a9-bb22-4ae3e23127e5)/Log",
		"Chars(STRING=a.b[c])",
	} {
		f.Add(text, true)
	}

	f.Fuzz(func(t *testing.T, text string, useCustom bool) {
		p := DefaultParser()
		if useCustom {
			p = custom
		}
		first, err := p.Parse(text)
		if err != nil {
			return
		}

		rendered := p.Render(first)
		second, err := p.Parse(rendered)
		require.NoError(t, err, "rendered %q from %q", rendered, text)
		assert.True(t, first.Equal(second), "%q -> %q", text, rendered)
		assert.Equal(t, first.Key(), second.Key())
		assert.Equal(t, rendered, p.Render(second))
	})
}

func TestRenderNormalizesAliases(t *testing.T) {
	q, err := Parse("Account.Bank[INT:5].Items[STR:$x]")
	require.NoError(t, err)
	assert.Equal(t, "Account.Bank[INTEGER:5].Items[STRING:$x]", q.String())
}

func TestCustomSyntax(t *testing.T) {
	syntax := Syntax{
		Separator:      "/",
		IndexOpen:      "(",
		IndexClose:     ")",
		TypeSeparator:  "=",
		VariableMarker: "@",
		OptionalTag:    "MAYBE",
	}
	p, err := NewParser(syntax, nil)
	require.NoError(t, err)

	q, err := p.Parse("Account/Bank(INT=5)(STRING=@who)")
	require.NoError(t, err)

	want := MustNew(
		NewPart("Account"),
		NewPart("Bank", Literal(TypeInt, 5), Variable(TypeString, "who")),
	)
	if diff := cmp.Diff(want, q); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Account/Bank(INTEGER=5)(STRING=@who)", p.Render(q))
}

func TestSyntaxValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Syntax)
	}{
		{"empty separator", func(s *Syntax) { s.Separator = "" }},
		{"same brackets", func(s *Syntax) { s.IndexClose = "[" }},
		{"overlapping tokens", func(s *Syntax) { s.VariableMarker = ".$" }},
		{"optional contains token", func(s *Syntax) { s.OptionalTag = "OPT:IONAL" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSyntax()
			tt.mutate(&s)
			_, err := NewParser(s, nil)
			require.Error(t, err)
			assert.True(t, errdefs.IsConfiguration(err))
		})
	}

	require.NoError(t, DefaultSyntax().Validate())
}

func TestRegistryRejectsCollisions(t *testing.T) {
	_, err := NewRegistry(IntConverter(), IntConverter())
	require.Error(t, err)
	assert.True(t, errdefs.IsConfiguration(err))

	s := DefaultSyntax()
	s.OptionalTag = "GUID"
	_, err = NewParser(s, nil)
	require.Error(t, err)
	assert.True(t, errdefs.IsConfiguration(err))
}

func TestRegistryValue(t *testing.T) {
	ctx := context.Background()
	reg := DefaultRegistry()
	vars := VariableResolverFunc(func(_ context.Context, name string) (string, bool, error) {
		switch name {
		case "slot":
			return "7", true, nil
		case "broken":
			return "", false, errors.New("backend down")
		case "word":
			return "seven", true, nil
		}
		return "", false, nil
	})

	v, err := reg.Value(ctx, Literal(TypeInt, 3), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	v, err = reg.Value(ctx, Variable(TypeInt, "slot"), vars)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	_, err = reg.Value(ctx, Variable(TypeInt, "slot"), nil)
	assert.True(t, errdefs.IsConfiguration(err))

	_, err = reg.Value(ctx, Variable(TypeInt, "missing"), vars)
	assert.True(t, errdefs.IsResolve(err))

	_, err = reg.Value(ctx, Variable(TypeInt, "broken"), vars)
	assert.True(t, errdefs.IsResolve(err))

	_, err = reg.Value(ctx, Variable(TypeInt, "word"), vars)
	assert.True(t, errdefs.IsParse(err))
}

func TestQuerySlice(t *testing.T) {
	q := MustNew(NewPart("A"), NewPart("B"), NewPart("C"))

	sub, ok := q.Slice(1, 3)
	require.True(t, ok)
	assert.Equal(t, []string{"B", "C"}, sub.Names())

	_, ok = q.Slice(3, 3)
	assert.False(t, ok)

	_, err := New()
	assert.True(t, errdefs.IsParse(err))
}

func TestQueryKey(t *testing.T) {
	nested := MustNew(NewPart("Chars", Literal(TypeString, "a"), Literal(TypeString, "b")))
	single := MustNew(NewPart("Chars", Literal(TypeString, "a][STRING:b")))

	assert.Equal(t, nested.String(), single.String())
	assert.NotEqual(t, nested.Key(), single.Key())
	assert.False(t, nested.Equal(single))

	q, err := Parse("Chars[STRING:a][STRING:b]")
	require.NoError(t, err)
	assert.Equal(t, nested.Key(), q.Key())

	tests := []struct {
		name string
		a, b Query
	}{
		{
			"separator in name",
			MustNew(NewPart("a.b")),
			MustNew(NewPart("a"), NewPart("b")),
		},
		{
			"int and string",
			MustNew(NewPart("X", Literal(TypeInt, 1))),
			MustNew(NewPart("X", Literal(TypeString, "1"))),
		},
		{
			"variable and literal",
			MustNew(NewPart("X", Variable(TypeString, "v"))),
			MustNew(NewPart("X", Literal(TypeString, "$v"))),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, tt.a.Key(), tt.b.Key())
		})
	}
}
