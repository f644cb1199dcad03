package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/document"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	index "github.com/blevesearch/bleve_index_api"
	"github.com/hyperjump/vectorscore/internal/models"
)

// docValuePrefix namespaces stored vector fields away from mapped text fields.
const docValuePrefix = "dv."

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index   bleve.Index
	mapping *mapping.IndexMappingImpl
}

func newIndexMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// standard analyzer: lowercase + tokenize, no stemming
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("id", keywordFieldMapping)
	im.AddDocumentMapping("document", docMapping)
	im.DefaultType = "document"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path.
// If you change the index mapping in code, remove the index directory to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := newIndexMapping()

	if _, err := os.Stat(path); err == nil {
		idx, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: idx, mapping: im}, nil
	}

	idx, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: idx, mapping: im}, nil
}

// Index maps the document's text fields through the index mapping and adds one stored-only
// field per doc value. Doc values are not analyzed or searchable.
func (b *BleveIndex) Index(ctx context.Context, doc *models.Document, values map[string][]byte) error {
	bdoc := document.NewDocument(doc.ID)
	err := b.mapping.MapDocument(bdoc, map[string]interface{}{
		"id":      doc.ID,
		"title":   doc.Title,
		"content": doc.Content,
	})
	if err != nil {
		return fmt.Errorf("failed to map document: %w", err)
	}
	for field, value := range values {
		bdoc.AddField(document.NewTextFieldCustom(docValuePrefix+field, nil, value, index.StoreField, nil))
	}

	batch := b.index.NewBatch()
	if err := batch.IndexAdvanced(bdoc); err != nil {
		return fmt.Errorf("failed to add document to batch: %w", err)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	return nil
}

// BinaryValue returns the stored doc value of field for docID. ok is false when the document
// or the field does not exist.
func (b *BleveIndex) BinaryValue(ctx context.Context, field, docID string) ([]byte, bool, error) {
	doc, err := b.index.Document(docID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load document %s: %w", docID, err)
	}
	if doc == nil {
		return nil, false, nil
	}
	name := docValuePrefix + field
	var value []byte
	found := false
	doc.VisitFields(func(f index.Field) {
		if !found && f.Name() == name {
			value = f.Value()
			found = true
		}
	})
	return value, found, nil
}

// Candidates runs a match query (match-all when query is blank) and returns up to limit hits.
// With TitleBoost > 1 title matches are boosted; with FuzzyEnabled terms match within the edit distance.
func (b *BleveIndex) Candidates(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error) {
	titleBoost := 1.0
	fuzzyEnabled := false
	fuzziness := 2
	if opts != nil {
		if opts.TitleBoost > 0 {
			titleBoost = opts.TitleBoost
		}
		fuzzyEnabled = opts.FuzzyEnabled
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	var q blevequery.Query
	switch {
	case strings.TrimSpace(query) == "":
		q = bleve.NewMatchAllQuery()
	case titleBoost > 1.0:
		title := b.textQuery(query, "title", fuzzyEnabled, fuzziness)
		if bq, ok := title.(blevequery.BoostableQuery); ok {
			bq.SetBoost(titleBoost)
		}
		q = bleve.NewDisjunctionQuery(title, b.textQuery(query, "content", fuzzyEnabled, fuzziness))
	default:
		q = b.textQuery(query, "", fuzzyEnabled, fuzziness)
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*KeywordResult, len(results.Hits))
	for i, hit := range results.Hits {
		out[i] = &KeywordResult{ID: hit.ID, Score: hit.Score}
	}
	return out, nil
}

func (b *BleveIndex) textQuery(query, field string, fuzzyEnabled bool, fuzziness int) blevequery.Query {
	if fuzzyEnabled {
		return buildFuzzyQuery(query, fuzziness, field)
	}
	mq := bleve.NewMatchQuery(query)
	if field != "" {
		mq.SetField(field)
	}
	return mq
}

func tokenizeQuery(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildFuzzyQuery ORs one FuzzyQuery per term, matching MatchQuery's any-term semantics.
func buildFuzzyQuery(queryStr string, fuzziness int, field string) blevequery.Query {
	terms := tokenizeQuery(queryStr)
	if len(terms) == 0 {
		mq := bleve.NewMatchQuery(queryStr)
		if field != "" {
			mq.SetField(field)
		}
		return mq
	}

	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		if field != "" {
			fq.SetField(field)
		}
		queries = append(queries, fq)
	}
	if len(queries) == 1 {
		return queries[0]
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Delete removes a document and its doc values from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// DocCount returns the total number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}
