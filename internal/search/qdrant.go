package search

import (
	"context"
	"fmt"
	"time"

	"triage/internal/apperr"
	"triage/internal/llm"

	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Payload keys stored with every indexed chunk
const (
	payloadFileID   = "file_id"
	payloadFilename = "filename"
	payloadText     = "text"
)

// qdrantAPI is the subset of *qdrant.Client used here
type qdrantAPI interface {
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
}

// QdrantConfig locates the Qdrant gRPC endpoint
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// QdrantSearcher searches a Qdrant collection named after the index id
type QdrantSearcher struct {
	client   qdrantAPI
	embedder llm.Embedder
	cb       *gobreaker.CircuitBreaker
	logger   zerolog.Logger
}

// NewQdrantClient dials Qdrant
func NewQdrantClient(cfg QdrantConfig) (*qdrant.Client, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	return client, nil
}

// NewQdrantSearcher wraps a Qdrant client and a query embedder
func NewQdrantSearcher(client qdrantAPI, embedder llm.Embedder, logger zerolog.Logger) *QdrantSearcher {
	logger = logger.With().Str("component", "search").Str("backend", "qdrant").Logger()
	return &QdrantSearcher{
		client:   client,
		embedder: embedder,
		cb:       newBreaker("vector-search", logger),
		logger:   logger,
	}
}

// Search embeds query and returns the topK nearest chunks
func (s *QdrantSearcher) Search(ctx context.Context, indexID, query string, topK int) (*Result, error) {
	vector, err := embedOne(ctx, s.embedder, query)
	if err != nil {
		return nil, err
	}

	out, err := s.cb.Execute(func() (interface{}, error) {
		return s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: indexID,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(topK)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
	})
	if err != nil {
		return nil, apperr.Upstream(err, "vector search failed")
	}

	points := out.([]*qdrant.ScoredPoint)
	result := &Result{Data: make([]Hit, 0, len(points))}
	for _, p := range points {
		result.Data = append(result.Data, hitFromPoint(p))
	}
	return result, nil
}

func hitFromPoint(p *qdrant.ScoredPoint) Hit {
	payload := p.GetPayload()
	h := Hit{
		Filename: payload[payloadFilename].GetStringValue(),
		FileID:   payload[payloadFileID].GetStringValue(),
		Score:    float64(p.GetScore()),
	}
	if h.FileID == "" {
		if id := p.GetId(); id != nil {
			if u := id.GetUuid(); u != "" {
				h.FileID = u
			} else {
				h.FileID = fmt.Sprintf("%d", id.GetNum())
			}
		}
	}
	if text := payload[payloadText].GetStringValue(); text != "" {
		h.Content = []Chunk{{Text: text}}
	}
	return h
}

// EnsureCollection creates the collection for indexID when it does not exist
func (s *QdrantSearcher) EnsureCollection(ctx context.Context, indexID string, dim int) error {
	exists, err := s.client.CollectionExists(ctx, indexID)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", indexID, err)
	}
	if exists {
		return nil
	}

	s.logger.Info().Str("collection", indexID).Int("dim", dim).Msg("Creating collection")
	return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: indexID,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// Upsert stores embedded documents in the collection for indexID
func (s *QdrantSearcher) Upsert(ctx context.Context, indexID string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := s.EnsureCollection(ctx, indexID, len(docs[0].Vector)); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, d := range docs {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(d.ID),
			Vectors: qdrant.NewVectors(d.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadFileID:   d.FileID,
				payloadFilename: d.Filename,
				payloadText:     d.Text,
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: indexID,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d points into %s: %w", len(points), indexID, err)
	}
	return nil
}

func embedOne(ctx context.Context, embedder llm.Embedder, text string) ([]float32, error) {
	vecs, err := embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, apperr.Upstream(nil, "embedding service returned no vectors")
	}
	return vecs[0], nil
}

func newBreaker(name string, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})
}
