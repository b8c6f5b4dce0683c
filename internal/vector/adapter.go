package vector

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

type WeaviateClientAdapter struct {
	Client *weaviate.Client
}

func NewWeaviateClientAdapter(client *weaviate.Client) *WeaviateClientAdapter {
	return &WeaviateClientAdapter{Client: client}
}

func (a *WeaviateClientAdapter) ClassExists(ctx context.Context, className string) (bool, error) {
	return a.Client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
}

func (a *WeaviateClientAdapter) CreateClass(ctx context.Context, class *models.Class) error {
	return a.Client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

func (a *WeaviateClientAdapter) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return a.Client.Schema().ClassGetter().WithClassName(className).Do(ctx)
}

func (a *WeaviateClientAdapter) AddProperty(ctx context.Context, className string, property *models.Property) error {
	return a.Client.Schema().PropertyCreator().WithClassName(className).WithProperty(property).Do(ctx)
}

func (a *WeaviateClientAdapter) StoredVectorWidth(ctx context.Context, className string) (int, bool, error) {
	res, err := a.Client.GraphQL().Get().
		WithClassName(className).
		WithLimit(1).
		WithFields(graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "vector"}}}).
		Do(ctx)
	if err != nil {
		return 0, false, err
	}
	if len(res.Errors) > 0 {
		return 0, false, fmt.Errorf("graphql error: %s", res.Errors[0].Message)
	}

	objects := GetObjects(res.Data, className)
	if len(objects) == 0 {
		return 0, false, nil
	}
	additional, _ := objects[0]["_additional"].(map[string]interface{})
	vec, _ := additional["vector"].([]interface{})
	if len(vec) == 0 {
		return 0, false, nil
	}
	return len(vec), true, nil
}

// GetObjects pulls data.Get.<className> out of a GraphQL response.
func GetObjects(data map[string]models.JSONObject, className string) []map[string]interface{} {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := get[className].([]interface{})
	if !ok {
		return nil
	}
	objects := make([]map[string]interface{}, 0, len(raw))
	for _, r := range raw {
		if obj, ok := r.(map[string]interface{}); ok {
			objects = append(objects, obj)
		}
	}
	return objects
}
