// Package weaviate implements the vector index over one Weaviate class.
package weaviate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"ragdocs/internal/vector"
)

const (
	sourcePageSize = 500
	upsertBatch    = 100
)

var chunkFields = []graphql.Field{
	{Name: "text"},
	{Name: "url"},
	{Name: "title"},
	{Name: "chunkIndex"},
	{Name: "createdAt"},
	{Name: "type"},
	{Name: "language"},
}

type Store struct {
	client *weaviate.Client
	class  string
	logger *slog.Logger
}

func NewStore(client *weaviate.Client, class string) *Store {
	return &Store{
		client: client,
		class:  class,
		logger: slog.Default().With("component", "weaviate-store", "class", class),
	}
}

func (s *Store) Class() string { return s.class }

// EnsureCollection creates or validates the store's class for vectors of the given width.
func (s *Store) EnsureCollection(ctx context.Context, dimension int) error {
	return vector.EnsureCollection(ctx, vector.NewWeaviateClientAdapter(s.client), s.class, dimension)
}

// Upsert writes chunks in batches; objects with an existing id are replaced.
func (s *Store) Upsert(ctx context.Context, chunks []vector.Chunk) error {
	for start := 0; start < len(chunks); start += upsertBatch {
		end := min(start+upsertBatch, len(chunks))
		if err := s.upsertBatch(ctx, chunks[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertBatch(ctx context.Context, chunks []vector.Chunk) error {
	batcher := s.client.Batch().ObjectsBatcher()
	for _, c := range chunks {
		id := c.ID
		if id == "" {
			id = vector.ChunkID(c.URL, c.ChunkIndex)
		}
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		batcher = batcher.WithObjects(&models.Object{
			Class: s.class,
			ID:    strfmt.UUID(id),
			Properties: map[string]interface{}{
				"text":       c.Text,
				"url":        c.URL,
				"title":      c.Title,
				"chunkIndex": c.ChunkIndex,
				"createdAt":  createdAt.Format(time.RFC3339Nano),
				"type":       c.Type,
				"language":   c.Language,
			},
			Vector: c.Vector,
		})
	}

	resp, err := batcher.Do(ctx)
	if err != nil {
		return vector.Classify("upsert chunks", err)
	}
	for _, obj := range resp {
		if obj.Result == nil || obj.Result.Errors == nil {
			continue
		}
		for _, e := range obj.Result.Errors.Error {
			if e != nil {
				return vector.ValidationError(fmt.Sprintf("upsert chunk %s", obj.ID), fmt.Errorf("%s", e.Message))
			}
		}
	}
	return nil
}

// DeleteByURL removes every chunk whose url is in urls. Weaviate caps the
// matches of one batch delete, so it repeats until a pass deletes nothing.
func (s *Store) DeleteByURL(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}

	operands := make([]*filters.WhereBuilder, 0, len(urls))
	for _, u := range urls {
		operands = append(operands, filters.Where().
			WithPath([]string{"url"}).
			WithOperator(filters.Equal).
			WithValueText(u))
	}
	where := operands[0]
	if len(operands) > 1 {
		where = filters.Where().WithOperator(filters.Or).WithOperands(operands)
	}

	for {
		resp, err := s.client.Batch().ObjectsBatchDeleter().
			WithClassName(s.class).
			WithOutput("minimal").
			WithWhere(where).
			Do(ctx)
		if err != nil {
			return vector.Classify("delete chunks", err)
		}
		if resp == nil || resp.Results == nil {
			return nil
		}
		if resp.Results.Failed > 0 {
			return vector.ValidationError(fmt.Sprintf("delete chunks: %d objects failed", resp.Results.Failed), nil)
		}
		if resp.Results.Successful == 0 || resp.Results.Matches < resp.Results.Limit {
			return nil
		}
	}
}

// searchTieMargin is how many rows beyond k Search fetches so that chunks
// tying with the k-th result compete on recency.
const searchTieMargin = 10

// Search returns the k nearest chunks by cosine similarity, best first.
// Equal scores are ordered newest first.
func (s *Store) Search(ctx context.Context, queryVector []float32, k int) ([]vector.Match, error) {
	if k <= 0 {
		return nil, vector.ValidationError(fmt.Sprintf("invalid result limit %d", k), nil)
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(queryVector)
	fields := append(append([]graphql.Field{}, chunkFields...),
		graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}})

	res, err := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithNearVector(nearVector).
		WithLimit(k + searchTieMargin).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, vector.Classify("search", err)
	}
	if len(res.Errors) > 0 {
		return nil, vector.ValidationError("search", fmt.Errorf("graphql error: %s", res.Errors[0].Message))
	}

	objects := vector.GetObjects(res.Data, s.class)
	matches := make([]vector.Match, 0, len(objects))
	for _, obj := range objects {
		chunk := parseChunk(obj)
		var distance float64
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			if id, ok := additional["id"].(string); ok {
				chunk.ID = id
			}
			distance = toFloat(additional["distance"])
		}
		matches = append(matches, vector.Match{Chunk: chunk, Score: 1 - distance})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Chunk.CreatedAt.After(matches[j].Chunk.CreatedAt)
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// ListSources walks the class with cursor pagination and groups chunks by
// url, keeping the first title seen for each.
func (s *Store) ListSources(ctx context.Context) ([]vector.Source, error) {
	fields := []graphql.Field{
		{Name: "url"},
		{Name: "title"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}}},
	}

	var sources []vector.Source
	seen := make(map[string]bool)
	after := ""
	for {
		query := s.client.GraphQL().Get().
			WithClassName(s.class).
			WithLimit(sourcePageSize).
			WithFields(fields...)
		if after != "" {
			query = query.WithAfter(after)
		}

		res, err := query.Do(ctx)
		if err != nil {
			return nil, vector.Classify("list sources", err)
		}
		if len(res.Errors) > 0 {
			return nil, vector.ValidationError("list sources", fmt.Errorf("graphql error: %s", res.Errors[0].Message))
		}

		objects := vector.GetObjects(res.Data, s.class)
		for _, obj := range objects {
			url, _ := obj["url"].(string)
			if url == "" || seen[url] {
				continue
			}
			seen[url] = true
			title, _ := obj["title"].(string)
			sources = append(sources, vector.Source{URL: url, Title: title})
		}

		if len(objects) < sourcePageSize {
			break
		}
		additional, _ := objects[len(objects)-1]["_additional"].(map[string]interface{})
		next, _ := additional["id"].(string)
		if next == "" || next == after {
			break
		}
		after = next
	}

	s.logger.DebugContext(ctx, "listed sources", "count", len(sources))
	return sources, nil
}

func (s *Store) CountChunks(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(s.class).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, vector.Classify("count chunks", err)
	}
	if len(res.Errors) > 0 {
		return 0, vector.ValidationError("count chunks", fmt.Errorf("graphql error: %s", res.Errors[0].Message))
	}

	agg, ok := res.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	rows, ok := agg[s.class].([]interface{})
	if !ok || len(rows) == 0 {
		return 0, nil
	}
	row, _ := rows[0].(map[string]interface{})
	meta, _ := row["meta"].(map[string]interface{})
	return int(toFloat(meta["count"])), nil
}

func parseChunk(props map[string]interface{}) vector.Chunk {
	chunk := vector.Chunk{}
	chunk.Text, _ = props["text"].(string)
	chunk.URL, _ = props["url"].(string)
	chunk.Title, _ = props["title"].(string)
	chunk.Type, _ = props["type"].(string)
	chunk.Language, _ = props["language"].(string)
	chunk.ChunkIndex = int(toFloat(props["chunkIndex"]))
	if ts, ok := props["createdAt"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			chunk.CreatedAt = t
		}
	}
	return chunk
}

// toFloat accepts the number shapes the GraphQL client decodes into.
func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case string:
		var f float64
		fmt.Sscanf(n, "%f", &f)
		return f
	}
	return 0
}
