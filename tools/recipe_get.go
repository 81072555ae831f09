package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"plantagent/plant"
	"plantagent/tools/storage"
)

type RecipeGet struct{ source storage.RecipeSource }

func NewRecipeGet(source storage.RecipeSource) *RecipeGet { return &RecipeGet{source: source} }

func (t *RecipeGet) Name() string  { return "recipe_get" }
func (t *RecipeGet) Title() string { return "Get Product Recipe" }
func (t *RecipeGet) Description() string {
	return "Returns the per-batch raw material requirements for a product, including which storage tank each material is drawn from."
}

func (t *RecipeGet) InputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"product": {
				Type:        "string",
				Description: "Product name, e.g. \"Product A\"",
			},
		},
		Required: []string{"product"},
	}
}

func (t *RecipeGet) OutputSchema() *jsonschema.Schema {
	minQty := 0.0
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"product": {Type: "string"},
			"recipe": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"material":      {Type: "string"},
						"tank":          {Type: "integer"},
						"qty_per_batch": {Type: "number", Minimum: &minQty},
						"unit":          {Type: "string"},
					},
					Required: []string{"material", "qty_per_batch", "unit"},
				},
			},
		},
		Required: []string{"product", "recipe"},
	}
}

func (t *RecipeGet) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	product, _ := input["product"].(string)
	if strings.TrimSpace(product) == "" {
		return nil, &plant.ValidationError{Field: "product", Reason: "must be a non-empty string"}
	}

	recipe, err := t.source.GetRecipe(ctx, product)
	if err != nil {
		return nil, fmt.Errorf("get recipe: %w", err)
	}

	out := struct {
		Product string                      `json:"product"`
		Recipe  []plant.MaterialRequirement `json:"recipe"`
	}{
		Product: recipe.Product,
		Recipe:  recipe.Requirements,
	}

	// Initialize to prevent nil when the product has no requirements
	if out.Recipe == nil {
		out.Recipe = make([]plant.MaterialRequirement, 0)
	}

	// marshal -> map[string]any to keep outputs uniform
	b, _ := json.Marshal(out)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m, nil
}
