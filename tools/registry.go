package tools

import (
	"fmt"

	"plantagent/tools/storage"
)

// Registry maps tool names to implementations
type Registry map[string]Tool

// NewRegistry creates a new tool registry over the given recipe and equipment sources.
func NewRegistry(recipes storage.RecipeSource, equipment storage.EquipmentSource) (*Registry, error) {
	tools := map[string]Tool{
		"recipe_get":         NewRecipeGet(recipes),
		"tank_levels_get":    NewTankLevelsGet(equipment),
		"machine_states_get": NewMachineStatesGet(equipment),
	}

	registry := Registry(tools)
	return &registry, nil
}

// GetTools returns all tools in the registry as a slice
func (r *Registry) GetTools() []Tool {
	tools := make([]Tool, 0, len(*r))
	for _, tool := range *r {
		tools = append(tools, tool)
	}
	return tools
}

// GetTool retrieves a tool by name from the registry
func (r Registry) GetTool(name string) (Tool, error) {
	tool, exists := r[name]
	if !exists {
		return nil, fmt.Errorf("tool %q not found in registry", name)
	}
	return tool, nil
}
