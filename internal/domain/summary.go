// Package domain holds the summary, index document and job status types shared
// across the digest pipeline.
package domain

import (
	"encoding/base64"
	"strings"

	"github.com/google/uuid"
)

// PathKey is an ordered sequence of path segments relative to the repository root.
// The zero value identifies the root itself.
type PathKey []string

// Child returns a new PathKey extended by one segment. The receiver is never modified.
func (p PathKey) Child(name string) PathKey {
	child := make(PathKey, len(p)+1)
	copy(child, p)
	child[len(p)] = name
	return child
}

// String joins the segments with forward slashes. The root renders as "".
func (p PathKey) String() string {
	return strings.Join(p, "/")
}

// IsRoot reports whether the key identifies the repository root.
func (p PathKey) IsRoot() bool {
	return len(p) == 0
}

// Name returns the last segment, or "" for the root.
func (p PathKey) Name() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// ParsePathKey splits a slash separated relative path into a PathKey.
// Empty segments and "." are dropped.
func ParsePathKey(path string) PathKey {
	var key PathKey
	for _, segment := range strings.Split(path, "/") {
		if segment == "" || segment == "." {
			continue
		}
		key = append(key, segment)
	}
	return key
}

// SummaryRecord pairs a path with the summary produced for it.
// Summary is "" when the path was ignored or could not be summarized.
type SummaryRecord struct {
	Path    PathKey
	Label   string
	Summary string
}

// DigestLine renders the record the way it appears in a directory digest.
func (r SummaryRecord) DigestLine() string {
	summary := r.Summary
	if summary == "" {
		summary = NotAvailable
	}
	return r.Label + ": " + summary
}

// NotAvailable is the digest placeholder for children without a summary.
const NotAvailable = "n/a"

// IndexDocument is one summary ready to be sent to an index.
type IndexDocument struct {
	// ID is derived from (namespace, repository, path) and is stable across runs.
	ID string `json:"id"`

	// IndexTarget identifies the destination index or collection.
	IndexTarget string `json:"index"`

	// Text is the natural-language summary.
	Text string `json:"text"`

	Metadata DocumentMetadata `json:"metadata"`
}

// DocumentMetadata is attached to every IndexDocument.
type DocumentMetadata struct {
	// Repository is the repository identity, URL-safe base64 encoded.
	Repository string `json:"repository"`

	// FilePath is the PathKey joined with "/". The root is "".
	FilePath string `json:"filepath"`
}

// NewIndexDocument builds the document for a summarized path.
func NewIndexDocument(namespace, target, repository string, path PathKey, text string) IndexDocument {
	return IndexDocument{
		ID:          DocumentID(namespace, repository, path),
		IndexTarget: target,
		Text:        text,
		Metadata: DocumentMetadata{
			Repository: EncodeRepository(repository),
			FilePath:   path.String(),
		},
	}
}

// DocumentID derives a name-based UUID (version 3) from namespace, repository and path.
// The result is a valid Qdrant point id and never depends on time or randomness.
func DocumentID(namespace, repository string, path PathKey) string {
	name := strings.Join([]string{namespace, repository, path.String()}, ":")
	return uuid.NewMD5(uuid.NameSpaceURL, []byte(name)).String()
}

// EncodeRepository encodes a repository identity for document metadata.
func EncodeRepository(repository string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(repository))
}

// DecodeRepository reverses EncodeRepository.
func DecodeRepository(encoded string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Bleve field name constants for consistent field references in queries and mappings.
const (
	FieldID         = "id"
	FieldIndex      = "index"
	FieldText       = "text"
	FieldRepository = "repository"
	FieldFilePath   = "file_path"
)

// SearchDocument is the flattened form stored in the local full-text index.
// Repository is kept decoded so it can be filtered with a term query.
type SearchDocument struct {
	ID         string `json:"id"`
	Index      string `json:"index"`
	Text       string `json:"text"`
	Repository string `json:"repository"`
	FilePath   string `json:"file_path"`
}

// ToSearchDocument flattens an IndexDocument for the local index.
func (d IndexDocument) ToSearchDocument() SearchDocument {
	repository, err := DecodeRepository(d.Metadata.Repository)
	if err != nil {
		repository = d.Metadata.Repository
	}
	return SearchDocument{
		ID:         d.ID,
		Index:      d.IndexTarget,
		Text:       d.Text,
		Repository: repository,
		FilePath:   d.Metadata.FilePath,
	}
}
