package rdf

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	triples := []Triple{
		{Local("case/1"), Local("name"), NewLiteral(`Build "vs" buy`)},
		{Local("case/1"), Local("note"), Term{Kind: Literal, Value: "hej", Lang: "sv"}},
		{Local("case/1"), Local("budget"), Term{Kind: Literal, Value: "10", Datatype: "http://www.w3.org/2001/XMLSchema#integer"}},
		{NewBlank("b0"), Local("title"), NewLiteral("line1\nline2")},
	}

	got := Marshal(triples)
	want := `<http://coach.example/ns#case/1> <http://coach.example/ns#name> "Build \"vs\" buy" .
<http://coach.example/ns#case/1> <http://coach.example/ns#note> "hej"@sv .
<http://coach.example/ns#case/1> <http://coach.example/ns#budget> "10"^^<http://www.w3.org/2001/XMLSchema#integer> .
_:b0 <http://coach.example/ns#title> "line1\nline2" .
`
	assert.Equal(t, want, got)

	back, err := Unmarshal(got)
	require.NoError(t, err)
	assert.Equal(t, triples, back)
}

func TestDecode_SkipsCommentsAndBlankLines(t *testing.T) {
	doc := `
# exported case
<http://a> <http://b> <http://c> . # trailing comment

_:x <http://b> "v" .
`
	triples, err := Unmarshal(doc)
	require.NoError(t, err)
	require.Len(t, triples, 2)
	assert.Equal(t, NewIRI("http://c"), triples[0].Object)
	assert.Equal(t, NewBlank("x"), triples[1].Subject)
}

func TestDecode_UnicodeEscapes(t *testing.T) {
	triples, err := Unmarshal(`<http://a> <http://b> "café \U0001F600" .`)
	require.NoError(t, err)
	assert.Equal(t, "café 😀", triples[0].Object.Value)

	iri := NewIRI("http://x/a b")
	back, err := Unmarshal(Triple{iri, iri, iri}.String())
	require.NoError(t, err)
	assert.Equal(t, iri, back[0].Subject)
}

func TestDecode_SyntaxErrors(t *testing.T) {
	cases := map[string]string{
		"missing dot":        `<http://a> <http://b> <http://c>`,
		"literal subject":    `"a" <http://b> <http://c> .`,
		"blank predicate":    `<http://a> _:p <http://c> .`,
		"unterminated iri":   `<http://a <http://b> <http://c> .`,
		"unterminated lit":   `<http://a> <http://b> "abc .`,
		"junk after dot":     `<http://a> <http://b> <http://c> . extra`,
		"bad escape":         `<http://a> <http://b> "\q" .`,
		"short unicode":      `<http://a> <http://b> "\u12" .`,
		"bare word":          `hello world .`,
		"empty language tag": `<http://a> <http://b> "x"@ .`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader("\n" + doc))
			require.Error(t, err)
			var syn *SyntaxError
			require.True(t, errors.As(err, &syn))
			assert.Equal(t, 2, syn.Line)
		})
	}
}

func TestSort(t *testing.T) {
	triples := []Triple{
		{Local("b"), Local("p"), NewLiteral("2")},
		{Local("a"), Local("p"), NewLiteral("1")},
	}
	Sort(triples)
	assert.Equal(t, Local("a"), triples[0].Subject)
}
