package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/cinerag/internal/filter"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// DenseVector names the dense vector in the collection schema. Empty
	// selects the unnamed default vector.
	DenseVector string

	// SparseVector names the sparse vector used in hybrid mode.
	SparseVector string

	// Hybrid selects candidates by dense+sparse reciprocal rank fusion and
	// scores them by dense similarity. When false, only the dense vector is
	// queried.
	Hybrid bool
}

// pointQuerier is the subset of *qdrant.Client used by QdrantIndex.
type pointQuerier interface {
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
}

// QdrantIndex implements Index backed by a Qdrant instance.
type QdrantIndex struct {
	client pointQuerier
	cfg    QdrantConfig
	closer func() error
}

// NewQdrantClient dials Qdrant with defaults applied to cfg. The returned
// client is shared by the index and the readiness probe.
func NewQdrantClient(cfg *QdrantConfig) (*qdrant.Client, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}
	return client, nil
}

// NewQdrantIndex wraps an existing client.
func NewQdrantIndex(client *qdrant.Client, cfg QdrantConfig) *QdrantIndex {
	return &QdrantIndex{client: client, cfg: cfg, closer: client.Close}
}

// Query runs a filtered similarity query and decodes the scored points.
func (s *QdrantIndex) Query(ctx context.Context, q IndexQuery) ([]Hit, error) {
	req := s.buildRequest(q)
	points, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant: query %q failed: %w", q.Collection, err)
	}

	hits := make([]Hit, 0, len(points))
	for _, p := range points {
		hits = append(hits, Hit{
			ID:      pointID(p.GetId()),
			Score:   float64(p.GetScore()),
			Payload: decodePayload(p.GetPayload()),
		})
	}
	return hits, nil
}

// buildRequest translates an IndexQuery into a Qdrant QueryPoints request.
// In hybrid mode with a non-empty sparse vector the dense and sparse
// legs are prefetched under the same filter and fused with RRF, then the
// fused set is rescored against the dense vector.
func (s *QdrantIndex) buildRequest(q IndexQuery) *qdrant.QueryPoints {
	limit := uint64(q.Limit)
	qf := toQdrantFilter(q.Predicate)

	req := &qdrant.QueryPoints{
		CollectionName: q.Collection,
		Filter:         qf,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayloadInclude(q.Fields...),
	}
	if len(q.Fields) == 0 {
		req.WithPayload = qdrant.NewWithPayload(false)
	}

	if !s.cfg.Hybrid || q.Sparse.IsEmpty() {
		req.Query = qdrant.NewQueryDense(q.Dense)
		if s.cfg.DenseVector != "" {
			req.Using = qdrant.PtrOf(s.cfg.DenseVector)
		}
		return req
	}

	dense := &qdrant.PrefetchQuery{
		Query:  qdrant.NewQueryDense(q.Dense),
		Filter: qf,
		Limit:  &limit,
	}
	if s.cfg.DenseVector != "" {
		dense.Using = qdrant.PtrOf(s.cfg.DenseVector)
	}
	sparse := &qdrant.PrefetchQuery{
		Query:  qdrant.NewQuerySparse(q.Sparse.Indices, q.Sparse.Values),
		Using:  qdrant.PtrOf(s.cfg.SparseVector),
		Filter: qf,
		Limit:  &limit,
	}
	fused := &qdrant.PrefetchQuery{
		Prefetch: []*qdrant.PrefetchQuery{dense, sparse},
		Query:    qdrant.NewQueryFusion(qdrant.Fusion_RRF),
		Limit:    &limit,
	}
	// Fusion picks the candidates; the dense rescore restores raw similarity
	// as the hit score.
	req.Prefetch = []*qdrant.PrefetchQuery{fused}
	req.Query = qdrant.NewQueryDense(q.Dense)
	if s.cfg.DenseVector != "" {
		req.Using = qdrant.PtrOf(s.cfg.DenseVector)
	}
	return req
}

// collectionInspector is the subset of *qdrant.Client used by DenseVectorSize.
type collectionInspector interface {
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
}

// DenseVectorSize returns the configured size of the dense vector in
// collection. vector names the vector; empty selects the unnamed one.
func DenseVectorSize(ctx context.Context, c collectionInspector, collection, vector string) (uint64, error) {
	info, err := c.GetCollectionInfo(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("qdrant: collection info %q: %w", collection, err)
	}
	vc := info.GetConfig().GetParams().GetVectorsConfig()
	if vector == "" {
		if p := vc.GetParams(); p != nil {
			return p.GetSize(), nil
		}
		return 0, fmt.Errorf("qdrant: collection %q has no unnamed vector", collection)
	}
	if p, ok := vc.GetParamsMap().GetMap()[vector]; ok {
		return p.GetSize(), nil
	}
	return 0, fmt.Errorf("qdrant: collection %q has no vector %q", collection, vector)
}

// Close releases the underlying gRPC connection.
func (s *QdrantIndex) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// toQdrantFilter maps the predicate onto Qdrant's boolean filter: each
// clause becomes one must condition; a multi-valued clause is a nested
// filter of should conditions.
func toQdrantFilter(p filter.Predicate) *qdrant.Filter {
	if p.IsEmpty() {
		return nil
	}
	var must []*qdrant.Condition
	for _, c := range p.Clauses() {
		if r, ok := c.Range(); ok {
			must = append(must, qdrant.NewRange(c.Field(), &qdrant.Range{
				Gte: qdrant.PtrOf(float64(r.Min)),
				Lte: qdrant.PtrOf(float64(r.Max)),
			}))
			continue
		}
		values := c.Values()
		should := make([]*qdrant.Condition, 0, len(values))
		for _, v := range values {
			should = append(should, qdrant.NewMatch(c.Field(), v))
		}
		must = append(must, qdrant.NewFilterAsCondition(&qdrant.Filter{Should: should}))
	}
	return &qdrant.Filter{Must: must}
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func decodePayload(p map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = decodeValue(v)
	}
	return out
}

func decodeValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_ListValue:
		items := k.ListValue.GetValues()
		list := make([]any, 0, len(items))
		for _, item := range items {
			list = append(list, decodeValue(item))
		}
		return list
	default:
		return nil
	}
}
