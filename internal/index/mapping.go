package index

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/xHumanityRO/forumsearch/internal/analysis"
)

// MappingVersion changes whenever the field layout below changes. Indexes
// written with another version are treated as incompatible and rebuilt.
const MappingVersion = 1

// schemaKey is the bleve internal key holding the schema fingerprint.
var schemaKey = []byte("_forumsearch_schema")

func schemaFingerprint(p *analysis.Pipeline) string {
	return fmt.Sprintf("v%d;%s", MappingVersion, p.Fingerprint())
}

// buildMapping returns the post mapping using the pipeline's analyzer for
// subject and contents.
func buildMapping(p *analysis.Pipeline) (*mapping.IndexMappingImpl, error) {
	m := bleve.NewIndexMapping()
	if err := p.Register(m); err != nil {
		return nil, err
	}
	m.DefaultAnalyzer = analysis.AnalyzerName

	numeric := func() *mapping.FieldMapping {
		f := bleve.NewNumericFieldMapping()
		f.Store = true
		f.Index = true
		f.DocValues = true
		return f
	}

	text := func() *mapping.FieldMapping {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = analysis.AnalyzerName
		f.Store = true
		f.IncludeTermVectors = true
		return f
	}

	date := bleve.NewDateTimeFieldMapping()
	date.Store = true
	date.DocValues = true

	post := bleve.NewDocumentMapping()
	post.AddFieldMappingsAt(FieldPostID, numeric())
	post.AddFieldMappingsAt(FieldForumID, numeric())
	post.AddFieldMappingsAt(FieldTopicID, numeric())
	post.AddFieldMappingsAt(FieldUserID, numeric())
	post.AddFieldMappingsAt(FieldDate, date)
	post.AddFieldMappingsAt(FieldSubject, text())
	post.AddFieldMappingsAt(FieldContents, text())

	m.DefaultMapping = post
	return m, nil
}
