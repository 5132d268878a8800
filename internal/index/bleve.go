package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/sha1n/relic-digest/internal/domain"
)

// IndexSuffix is the suffix for index directories
const IndexSuffix = ".bleve"

// BleveStore keeps summaries in local Bleve indexes, one per index target.
// Open handles are cached because Bleve allows a single writer per path.
type BleveStore struct {
	baseDir string
	mu      sync.Mutex
	indexes map[string]bleve.Index
}

// SearchHit is a single summary matched by Search.
type SearchHit struct {
	ID         string
	Repository string
	FilePath   string
	Text       string
	Score      float64
}

// SearchResult is the outcome of a Search.
type SearchResult struct {
	Total uint64
	Hits  []SearchHit
}

// NewBleveStore creates a store rooted at baseDir/indexes.
func NewBleveStore(baseDir string) (*BleveStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("%w: bleve base directory required", ErrInvalidConfig)
	}
	if err := os.MkdirAll(filepath.Join(baseDir, "indexes"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create indexes directory: %w", err)
	}
	return &BleveStore{
		baseDir: baseDir,
		indexes: make(map[string]bleve.Index),
	}, nil
}

// indexPath returns the path to an index for a given target.
func (b *BleveStore) indexPath(target string) string {
	return filepath.Join(b.baseDir, "indexes", target+IndexSuffix)
}

// CreateIndexMapping creates the Bleve index mapping for summary documents.
func CreateIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	// Summary text - analyzed for full-text search
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = true
	textField.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(domain.FieldText, textField)

	// Repository and file path - keyword, stored for filtering and display
	repoField := bleve.NewTextFieldMapping()
	repoField.Analyzer = keyword.Name
	repoField.Store = true
	docMapping.AddFieldMappingsAt(domain.FieldRepository, repoField)

	pathField := bleve.NewTextFieldMapping()
	pathField.Analyzer = keyword.Name
	pathField.Store = true
	docMapping.AddFieldMappingsAt(domain.FieldFilePath, pathField)

	// ID and index target - stored only
	for _, name := range []string{domain.FieldID, domain.FieldIndex} {
		f := bleve.NewTextFieldMapping()
		f.Index = false
		f.Store = true
		docMapping.AddFieldMappingsAt(name, f)
	}

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

// open returns the cached index for target. A missing index is created when
// create is set; otherwise open returns a nil index and no error. Existing indexes
// that fail to open are reported as is.
func (b *BleveStore) open(target string, create bool) (bleve.Index, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if idx, ok := b.indexes[target]; ok {
		return idx, nil
	}

	path := b.indexPath(target)
	var idx bleve.Index
	_, err := os.Stat(path)
	switch {
	case err == nil:
		if idx, err = bleve.Open(path); err != nil {
			return nil, fmt.Errorf("failed to open index %s: %w", target, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("failed to stat index %s: %w", target, err)
	case !create:
		return nil, nil
	default:
		if idx, err = bleve.New(path, CreateIndexMapping()); err != nil {
			return nil, fmt.Errorf("failed to create index %s: %w", target, err)
		}
	}
	b.indexes[target] = idx
	return idx, nil
}

// IndexMany writes docs in one Bleve batch per target.
func (b *BleveStore) IndexMany(_ context.Context, docs []domain.IndexDocument) error {
	byTarget := make(map[string][]domain.IndexDocument)
	for _, doc := range docs {
		byTarget[doc.IndexTarget] = append(byTarget[doc.IndexTarget], doc)
	}

	for target, group := range byTarget {
		idx, err := b.open(target, true)
		if err != nil {
			return err
		}

		batch := idx.NewBatch()
		for _, doc := range group {
			if err := batch.Index(doc.ID, doc.ToSearchDocument()); err != nil {
				return fmt.Errorf("failed to add %s to batch: %w", doc.ID, err)
			}
		}
		if err := idx.Batch(batch); err != nil {
			return fmt.Errorf("batch index failed: %w", err)
		}
	}
	return nil
}

// Search runs a full-text query over summaries in target, optionally filtered by repository.
func (b *BleveStore) Search(target, text, repository string, size int) (*SearchResult, error) {
	idx, err := b.open(target, false)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return &SearchResult{}, nil
	}

	textQuery := bleve.NewMatchQuery(text)
	textQuery.SetField(domain.FieldText)

	var q query.Query = textQuery
	if repository != "" {
		repoQuery := bleve.NewTermQuery(repository)
		repoQuery.SetField(domain.FieldRepository)
		q = bleve.NewConjunctionQuery(textQuery, repoQuery)
	}

	req := bleve.NewSearchRequest(q)
	if size > 0 {
		req.Size = size
	}
	req.Fields = []string{domain.FieldRepository, domain.FieldFilePath, domain.FieldText}

	res, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	result := &SearchResult{Total: res.Total}
	for _, hit := range res.Hits {
		result.Hits = append(result.Hits, SearchHit{
			ID:         hit.ID,
			Repository: stringField(hit.Fields, domain.FieldRepository),
			FilePath:   stringField(hit.Fields, domain.FieldFilePath),
			Text:       stringField(hit.Fields, domain.FieldText),
			Score:      hit.Score,
		})
	}
	return result, nil
}

// Get fetches a single summary by document ID. ok is false when it does not exist.
func (b *BleveStore) Get(target, id string) (hit SearchHit, ok bool, err error) {
	idx, err := b.open(target, false)
	if err != nil || idx == nil {
		return SearchHit{}, false, err
	}

	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{id}))
	req.Fields = []string{domain.FieldRepository, domain.FieldFilePath, domain.FieldText}

	res, err := idx.Search(req)
	if err != nil {
		return SearchHit{}, false, fmt.Errorf("lookup failed: %w", err)
	}
	if len(res.Hits) == 0 {
		return SearchHit{}, false, nil
	}

	h := res.Hits[0]
	return SearchHit{
		ID:         h.ID,
		Repository: stringField(h.Fields, domain.FieldRepository),
		FilePath:   stringField(h.Fields, domain.FieldFilePath),
		Text:       stringField(h.Fields, domain.FieldText),
		Score:      h.Score,
	}, true, nil
}

// DocCount returns the number of documents in target.
func (b *BleveStore) DocCount(target string) (uint64, error) {
	idx, err := b.open(target, false)
	if err != nil || idx == nil {
		return 0, err
	}
	return idx.DocCount()
}

// Close closes all open indexes.
func (b *BleveStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for target, idx := range b.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close index %s: %w", target, err)
		}
		delete(b.indexes, target)
	}
	return firstErr
}

func stringField(fields map[string]any, name string) string {
	if v, ok := fields[name].(string); ok {
		return v
	}
	return ""
}
