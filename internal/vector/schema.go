package vector

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// SchemaClient defines the Weaviate schema operations EnsureCollection needs.
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
	// StoredVectorWidth returns the width of one stored vector, or ok=false
	// when the class holds no objects yet.
	StoredVectorWidth(ctx context.Context, className string) (width int, ok bool, err error)
}

// Properties is the chunk property set. url, type and language use field
// tokenization so equality filters match the whole value.
func Properties() []*models.Property {
	return []*models.Property{
		{Name: "text", DataType: []string{"text"}},
		{Name: "url", DataType: []string{"text"}, Tokenization: models.PropertyTokenizationField},
		{Name: "title", DataType: []string{"text"}},
		{Name: "chunkIndex", DataType: []string{"int"}},
		{Name: "createdAt", DataType: []string{"date"}},
		{Name: "type", DataType: []string{"text"}, Tokenization: models.PropertyTokenizationField},
		{Name: "language", DataType: []string{"text"}, Tokenization: models.PropertyTokenizationField},
	}
}

// EnsureCollection creates the class if it is missing, adds any missing
// properties to an existing class and checks that vectors already stored in
// it have the configured width. Safe to call on every startup.
func EnsureCollection(ctx context.Context, client SchemaClient, name string, dimension int) error {
	if name == "" {
		return ValidationError("collection name is empty", nil)
	}
	if dimension <= 0 {
		return ValidationError(fmt.Sprintf("invalid vector dimension %d", dimension), nil)
	}

	exists, err := client.ClassExists(ctx, name)
	if err != nil {
		return Classify("check collection", err)
	}

	if !exists {
		class := &models.Class{
			Class:           name,
			Description:     "Chunks of ingested web documents",
			Vectorizer:      "none",
			VectorIndexType: "hnsw",
			VectorIndexConfig: map[string]interface{}{
				"distance": "cosine",
			},
			Properties: Properties(),
		}
		if err := client.CreateClass(ctx, class); err != nil {
			return Classify("create collection", err)
		}
		return nil
	}

	class, err := client.GetClass(ctx, name)
	if err != nil {
		return Classify("get collection", err)
	}

	existing := make(map[string]bool)
	for _, p := range class.Properties {
		existing[p.Name] = true
	}
	for _, p := range Properties() {
		if existing[p.Name] {
			continue
		}
		if err := client.AddProperty(ctx, name, p); err != nil {
			return Classify("add property "+p.Name, err)
		}
	}

	width, ok, err := client.StoredVectorWidth(ctx, name)
	if err != nil {
		return Classify("read stored vector", err)
	}
	if ok && width != dimension {
		return ValidationError(fmt.Sprintf(
			"collection %s holds %d-dimensional vectors but the embedding provider produces %d",
			name, width, dimension), nil)
	}
	return nil
}
