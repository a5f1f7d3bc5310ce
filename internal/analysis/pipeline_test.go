package analysis

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_EnglishAndFrenchStopWordsAndStemming(t *testing.T) {
	// Given: a pipeline for English and French
	p, err := New([]string{"en", "fr"}, nil)
	require.NoError(t, err)

	// When: analyzing text with stop words from both languages
	terms := p.Analyze("The cat and le chat")

	// Then: both stop words are removed
	assert.NotContains(t, terms, "the")
	assert.NotContains(t, terms, "le")
	assert.Contains(t, terms, "cat")
	assert.Contains(t, terms, "chat")

	// And: inflected forms share a stem
	running := p.Analyze("running")
	runs := p.Analyze("runs")
	require.Len(t, running, 1)
	require.Len(t, runs, 1)
	assert.Equal(t, running[0], runs[0])
}

func TestPipeline_LowercasesBeforeStopRemoval(t *testing.T) {
	p, err := New([]string{"en"}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"forum"}, p.Analyze("THE Forum"))
	assert.True(t, p.IsStopWord("The"))
}

func TestPipeline_Deterministic(t *testing.T) {
	p1, err := New([]string{"fr", "en"}, nil)
	require.NoError(t, err)
	p2, err := New([]string{"en", "fr", "EN"}, nil)
	require.NoError(t, err)

	text := "Les utilisateurs indexing posts in the forum"
	assert.Equal(t, p1.Analyze(text), p2.Analyze(text))
	assert.Equal(t, p1.Fingerprint(), p2.Fingerprint())
	assert.Equal(t, p1.Analyze(text), p1.Analyze(text))
}

func TestNew_NormalizesAndIgnoresUnknown(t *testing.T) {
	// Given: a logger capturing output
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	// When: building with aliases, duplicates and an unknown code
	p, err := New([]string{" cz", "br", "pt", "xx", ""}, logger)

	// Then: aliases resolve, duplicates collapse and the unknown code is logged
	require.NoError(t, err)
	assert.Equal(t, []string{"cs", "pt"}, p.Languages())
	assert.Contains(t, buf.String(), "unknown_stopword_language")
	assert.Contains(t, buf.String(), "xx")
}

func TestNew_NoLanguagesKeepsStopWords(t *testing.T) {
	p, err := New(nil, nil)
	require.NoError(t, err)

	assert.Empty(t, p.Languages())
	assert.Contains(t, p.Analyze("the"), "the")
}

func TestPipeline_FingerprintDiffersByLanguage(t *testing.T) {
	en, err := New([]string{"en"}, nil)
	require.NoError(t, err)
	de, err := New([]string{"de"}, nil)
	require.NoError(t, err)

	assert.NotEqual(t, en.Fingerprint(), de.Fingerprint())
}

func TestPipeline_RegisterMatchesAnalyze(t *testing.T) {
	// Given: a mapping with the pipeline registered
	p, err := New([]string{"en", "fr"}, nil)
	require.NoError(t, err)
	m := mapping.NewIndexMapping()
	require.NoError(t, p.Register(m))

	// When: analyzing through the mapping's analyzer
	analyzer := m.AnalyzerNamed(AnalyzerName)
	require.NotNil(t, analyzer)

	var got []string
	for _, tok := range analyzer.Analyze([]byte("The runners were running le matin")) {
		got = append(got, string(tok.Term))
	}

	// Then: it produces the same terms as the pipeline itself
	assert.Equal(t, p.Analyze("The runners were running le matin"), got)
}

func TestUnionStopConstructor_AcceptsDecodedJSONList(t *testing.T) {
	m := mapping.NewIndexMapping()
	require.NoError(t, m.AddCustomTokenFilter("decoded", map[string]interface{}{
		"type":      UnionStopType,
		"languages": []interface{}{"en"},
	}))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("EN"))
	assert.True(t, Supported("cz"))
	assert.False(t, Supported("klingon"))
	assert.Contains(t, SupportedLanguages(), "ckb")
}
