package storage

import (
	"context"

	"plantagent/plant"
)

// RecipeSource fetches the per-batch material requirements for a product.
type RecipeSource interface {
	GetRecipe(ctx context.Context, product string) (plant.Recipe, error)
}

// EquipmentSource reads live plant telemetry. Each call produces a fresh
// snapshot; per-item failures are carried inside the snapshot rather than
// collapsing the whole read.
type EquipmentSource interface {
	ReadTankLevels(ctx context.Context) (plant.TankSnapshot, error)
	ReadMachineStates(ctx context.Context) (plant.MachineSnapshot, error)
}

// TestRecipeSource is a simple in-memory implementation for testing
type TestRecipeSource struct {
	recipes map[string]plant.Recipe
	err     error
}

func NewTestRecipeSource(recipes ...plant.Recipe) *TestRecipeSource {
	byName := make(map[string]plant.Recipe, len(recipes))
	for _, r := range recipes {
		byName[normalizeProduct(r.Product)] = r
	}
	return &TestRecipeSource{recipes: byName}
}

func NewTestRecipeSourceWithError(err error) *TestRecipeSource {
	return &TestRecipeSource{err: err}
}

func (t *TestRecipeSource) GetRecipe(ctx context.Context, product string) (plant.Recipe, error) {
	if t.err != nil {
		return plant.Recipe{}, t.err
	}
	if r, ok := t.recipes[normalizeProduct(product)]; ok {
		return r, nil
	}
	return plant.Recipe{}, &plant.NotFoundError{Product: product}
}

// TestEquipmentSource is a simple in-memory implementation for testing
type TestEquipmentSource struct {
	tanks    plant.TankSnapshot
	machines plant.MachineSnapshot
	err      error
}

func NewTestEquipmentSource(tanks plant.TankSnapshot, machines plant.MachineSnapshot) *TestEquipmentSource {
	return &TestEquipmentSource{tanks: tanks, machines: machines}
}

func NewTestEquipmentSourceWithError(err error) *TestEquipmentSource {
	return &TestEquipmentSource{err: err}
}

func (t *TestEquipmentSource) ReadTankLevels(ctx context.Context) (plant.TankSnapshot, error) {
	if t.err != nil {
		return plant.TankSnapshot{}, t.err
	}
	return t.tanks, nil
}

func (t *TestEquipmentSource) ReadMachineStates(ctx context.Context) (plant.MachineSnapshot, error) {
	if t.err != nil {
		return plant.MachineSnapshot{}, t.err
	}
	return t.machines, nil
}
