// Package analysis builds the text analysis chain used for forum posts:
// unicode word tokenization, lowercasing, removal of the merged stop words of
// every active language, then porter stemming.
package analysis

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/porter"
	"github.com/blevesearch/bleve/v2/analysis/token/stop"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// AnalyzerName is the analyzer registered on the index mapping.
	AnalyzerName = "forum_text"

	// UnionStopType is the token filter type merging several stop lists.
	UnionStopType = "forum_union_stop"

	stopFilterName = "forum_stop"
	languagesKey   = "languages"
)

func init() {
	if err := registry.RegisterTokenFilter(UnionStopType, unionStopConstructor); err != nil {
		panic(err)
	}
}

// unionStopConstructor builds the merged stop filter when bleve loads a mapping,
// including mappings read back from an existing index directory.
func unionStopConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	var langs []string
	switch v := config[languagesKey].(type) {
	case []string:
		langs = v
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				langs = append(langs, s)
			}
		}
	case nil:
	default:
		return nil, fmt.Errorf("%s: languages must be a list, got %T", UnionStopType, v)
	}

	merged, err := mergeStopWords(cache, langs)
	if err != nil {
		return nil, err
	}
	return stop.NewStopTokensFilter(merged), nil
}

// mergeStopWords returns a fresh token map holding the union of the stop
// lists of langs. langs must already be normalized.
func mergeStopWords(cache *registry.Cache, langs []string) (analysis.TokenMap, error) {
	merged := analysis.NewTokenMap()
	for _, code := range langs {
		words, err := cache.TokenMapNamed(stopMapName(code))
		if err != nil {
			return nil, fmt.Errorf("stop words for %q: %w", code, err)
		}
		for w := range words {
			merged.AddToken(w)
		}
	}
	return merged, nil
}

// Pipeline is an immutable analysis chain for a fixed set of languages.
type Pipeline struct {
	languages []string
	stopWords analysis.TokenMap

	tokenizer analysis.Tokenizer
	filters   []analysis.TokenFilter
}

// New builds a pipeline for the given language codes. Codes are trimmed,
// lowercased and de-duplicated; cz and br are read as cs and pt. Unknown
// codes are logged and ignored. A nil logger uses slog.Default().
func New(languages []string, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	langs := normalize(languages, logger)

	stopWords, err := mergeStopWords(registry.NewCache(), langs)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		languages: langs,
		stopWords: stopWords,
		tokenizer: unicode.NewUnicodeTokenizer(),
		filters: []analysis.TokenFilter{
			lowercase.NewLowerCaseFilter(),
			stop.NewStopTokensFilter(stopWords),
			porter.NewPorterStemmer(),
		},
	}

	logger.Debug("analysis_pipeline_built",
		slog.String("languages", strings.Join(langs, ",")),
		slog.Int("stop_words", len(stopWords)))

	return p, nil
}

// Languages returns the normalized active language codes, sorted.
func (p *Pipeline) Languages() []string {
	out := make([]string, len(p.languages))
	copy(out, p.languages)
	return out
}

// IsStopWord reports whether the lowercased word is in the merged stop list.
func (p *Pipeline) IsStopWord(word string) bool {
	return p.stopWords[strings.ToLower(word)]
}

// Analyze runs text through the chain and returns the resulting terms.
func (p *Pipeline) Analyze(text string) []string {
	stream := p.tokenizer.Tokenize([]byte(text))
	for _, f := range p.filters {
		stream = f.Filter(stream)
	}

	terms := make([]string, 0, len(stream))
	for _, tok := range stream {
		terms = append(terms, string(tok.Term))
	}
	return terms
}

// Fingerprint identifies the analysis configuration. Two pipelines with the
// same fingerprint produce the same terms for the same input.
func (p *Pipeline) Fingerprint() string {
	return "porter;" + strings.Join(p.languages, ",")
}

// Register adds the pipeline's stop filter and analyzer to m under
// AnalyzerName.
func (p *Pipeline) Register(m *mapping.IndexMappingImpl) error {
	langs := make([]interface{}, len(p.languages))
	for i, code := range p.languages {
		langs[i] = code
	}

	if err := m.AddCustomTokenFilter(stopFilterName, map[string]interface{}{
		"type":       UnionStopType,
		languagesKey: langs,
	}); err != nil {
		return fmt.Errorf("register stop filter: %w", err)
	}

	if err := m.AddCustomAnalyzer(AnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": unicode.Name,
		"token_filters": []string{
			lowercase.Name,
			stopFilterName,
			porter.Name,
		},
	}); err != nil {
		return fmt.Errorf("register analyzer: %w", err)
	}

	return nil
}

func normalize(languages []string, logger *slog.Logger) []string {
	seen := make(map[string]bool, len(languages))
	out := make([]string, 0, len(languages))

	for _, raw := range languages {
		code := canonical(raw)
		if code == "" || seen[code] {
			continue
		}
		if !supported[code] {
			logger.Info("unknown_stopword_language", slog.String("language", raw))
			continue
		}
		seen[code] = true
		out = append(out, code)
	}

	sort.Strings(out)
	return out
}

func canonical(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if alias, ok := aliases[code]; ok {
		return alias
	}
	return code
}
