package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/codeindexd/internal/types"
)

func TestHeuristicParserGo(t *testing.T) {
	content := "package a\n\nimport (\n\t\"fmt\"\n)\n\nfunc Foo() {\n\tfmt.Println(1)\n}\n"
	p := NewHeuristicParser()
	parsed, err := p.Parse("a.go", content)
	require.NoError(t, err)
	require.Contains(t, parsed.Symbols, "Foo")
	require.Equal(t, types.KindFunction, parsed.Symbols["Foo"].Kind)
	require.Contains(t, parsed.Imports, "fmt")
}

func TestHeuristicParserPython(t *testing.T) {
	content := "import os\n\ndef foo():\n    return 1\n\n\nclass Bar:\n    pass\n"
	p := NewHeuristicParser()
	parsed, err := p.Parse("a.py", content)
	require.NoError(t, err)
	require.Equal(t, 3, parsed.Symbols["foo"].Line)
	require.Contains(t, parsed.Symbols, "Bar")
	require.Equal(t, types.KindClass, parsed.Symbols["Bar"].Kind)
	require.Contains(t, parsed.Imports, "os")
}

func TestRegistryFallsBackToHeuristic(t *testing.T) {
	r := NewRegistry()
	parsed, err := r.Parse(".go", "a.go", "func Foo() {}\n")
	require.NoError(t, err)
	require.Contains(t, parsed.Symbols, "Foo")
}

type stubProvider struct{}

func (stubProvider) SupportedExtensions() []string { return []string{".stub"} }
func (stubProvider) Parse(path, content string) (types.ParsedFile, error) {
	return types.ParsedFile{Symbols: map[string]types.ParsedSymbol{"stubbed": {Kind: types.KindOther, Line: 1}}}, nil
}

func TestRegistryPrefersRegisteredProvider(t *testing.T) {
	r := NewRegistry()
	r.Register(stubProvider{})
	parsed, err := r.Parse(".stub", "a.stub", "anything")
	require.NoError(t, err)
	require.Contains(t, parsed.Symbols, "stubbed")
}
