package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/qdrant/go-client/qdrant"
	"github.com/sha1n/relic-digest/internal/domain"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"google.golang.org/grpc"
)

// Qdrant payload keys.
const (
	PayloadText       = "text"
	PayloadRepository = "repository"
	PayloadFilePath   = "filepath"
	PayloadIndex      = "index"
)

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (6334 by default, not the 6333 REST port).
	Port int

	APIKey string `json:"-"`
	UseTLS bool

	// VectorSize must match the embedding model output, e.g. 1536 for text-embedding-3-small.
	VectorSize uint64

	// MaxMessageSize is the maximum gRPC message size in bytes.
	MaxMessageSize int

	// Embedding model settings (OpenAI compatible API).
	EmbeddingBaseURL string
	EmbeddingModel   string
	EmbeddingAPIKey  string `json:"-"`
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: qdrant host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid qdrant port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: embedding model required", ErrInvalidConfig)
	}
	return nil
}

// Embedder turns texts into vectors. langchaingo's embeddings.Embedder satisfies it.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// pointsClient is the subset of *qdrant.Client used by QdrantStore.
type pointsClient interface {
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Close() error
}

// QdrantStore embeds summaries and upserts them as Qdrant points. The document ID
// is a UUID and is used directly as the point ID, so re-indexing overwrites.
type QdrantStore struct {
	client      pointsClient
	embedder    Embedder
	vectorSize  uint64
	collections sync.Map
}

// NewQdrantStore connects to Qdrant and builds an OpenAI compatible embedder.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	maxMessageSize := cfg.MaxMessageSize
	if maxMessageSize <= 0 {
		maxMessageSize = 50 * 1024 * 1024
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(maxMessageSize),
				grpc.MaxCallSendMsgSize(maxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	apiKey := cfg.EmbeddingAPIKey
	if apiKey == "" {
		// langchaingo requires a token even for local OpenAI compatible servers
		apiKey = "placeholder"
	}
	opts := []openai.Option{
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
		openai.WithToken(apiKey),
	}
	if cfg.EmbeddingBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.EmbeddingBaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("creating embedding client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return newQdrantStore(client, embedder, cfg.VectorSize), nil
}

func newQdrantStore(client pointsClient, embedder Embedder, vectorSize uint64) *QdrantStore {
	return &QdrantStore{
		client:     client,
		embedder:   embedder,
		vectorSize: vectorSize,
	}
}

// IndexMany embeds and upserts docs, grouped by their index target (the collection).
func (s *QdrantStore) IndexMany(ctx context.Context, docs []domain.IndexDocument) error {
	if len(docs) == 0 {
		return nil
	}

	order := make([]string, 0, 1)
	byTarget := make(map[string][]domain.IndexDocument)
	for _, doc := range docs {
		if _, ok := byTarget[doc.IndexTarget]; !ok {
			order = append(order, doc.IndexTarget)
		}
		byTarget[doc.IndexTarget] = append(byTarget[doc.IndexTarget], doc)
	}

	for _, collection := range order {
		if err := s.upsert(ctx, collection, byTarget[collection]); err != nil {
			return err
		}
	}
	return nil
}

func (s *QdrantStore) upsert(ctx context.Context, collection string, docs []domain.IndexDocument) error {
	if err := s.ensureCollection(ctx, collection); err != nil {
		return err
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding documents: %w", err)
	}
	if len(vectors) != len(docs) {
		return fmt.Errorf("embedding returned %d vectors for %d documents", len(vectors), len(docs))
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(doc.ID),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				PayloadText:       doc.Text,
				PayloadRepository: doc.Metadata.Repository,
				PayloadFilePath:   doc.Metadata.FilePath,
				PayloadIndex:      doc.IndexTarget,
			}),
		}
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points to collection %s: %w", collection, err)
	}
	return nil
}

// ensureCollection creates collection on first use. Existence is cached.
func (s *QdrantStore) ensureCollection(ctx context.Context, collection string) error {
	if _, ok := s.collections.Load(collection); ok {
		return nil
	}

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", collection, err)
	}
	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     s.vectorSize,
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", collection, err)
		}
	}

	s.collections.Store(collection, true)
	return nil
}

// Close closes the underlying client.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

var _ Embedder = (embeddings.Embedder)(nil)
