package storage

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"plantagent/plant"
)

// loader fetches the raw recipe artifact bytes from wherever they live.
type loader func(ctx context.Context) ([]byte, error)

func fileLoader(path string) loader {
	return func(ctx context.Context) ([]byte, error) {
		return os.ReadFile(path)
	}
}

// loadRecipes parses a recipe artifact: a JSON array of recipes, each with a
// product name and its per-batch requirements.
func loadRecipes(ctx context.Context, load loader) ([]plant.Recipe, error) {
	b, err := load(ctx)
	if err != nil {
		return nil, &plant.StoreUnavailableError{Err: err}
	}
	var recipes []plant.Recipe
	if err := json.Unmarshal(b, &recipes); err != nil {
		return nil, &plant.StoreUnavailableError{Err: err}
	}
	return recipes, nil
}

func findRecipe(recipes []plant.Recipe, product string) (plant.Recipe, error) {
	want := normalizeProduct(product)
	for _, r := range recipes {
		if normalizeProduct(r.Product) == want {
			return r, nil
		}
	}
	return plant.Recipe{}, &plant.NotFoundError{Product: product}
}

// normalizeProduct makes product lookups case and whitespace insensitive.
func normalizeProduct(product string) string {
	return strings.ToLower(strings.TrimSpace(product))
}
