package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"plantagent/plant"
	"plantagent/tools/storage"
)

type TankLevelsGet struct{ source storage.EquipmentSource }

func NewTankLevelsGet(source storage.EquipmentSource) *TankLevelsGet {
	return &TankLevelsGet{source: source}
}

func (t *TankLevelsGet) Name() string  { return "tank_levels_get" }
func (t *TankLevelsGet) Title() string { return "Get Tank Levels" }
func (t *TankLevelsGet) Description() string {
	return "Returns the current raw-material level of every storage tank. Tanks that could not be read are listed under failures; never assume their contents."
}

func (t *TankLevelsGet) InputSchema() *jsonschema.Schema {
	// No arguments; the tank set is plant configuration.
	return &jsonschema.Schema{Type: "object"}
}

func (t *TankLevelsGet) OutputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"tanks": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"tank_id":  {Type: "string"},
						"material": {Type: "string"},
						"level":    {Type: "number"},
						"unit":     {Type: "string"},
						"read_at":  {Type: "string"},
					},
					Required: []string{"tank_id", "material", "level", "unit"},
				},
			},
			"failures": {
				Type: "array",
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"tank_id":  {Type: "string"},
						"material": {Type: "string"},
						"reason":   {Type: "string"},
					},
					Required: []string{"tank_id", "reason"},
				},
			},
		},
		Required: []string{"tanks"},
	}
}

func (t *TankLevelsGet) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	snap, err := t.source.ReadTankLevels(ctx)
	if err != nil {
		return nil, fmt.Errorf("read tank levels: %w", err)
	}

	out := struct {
		Tanks    []plant.TankReading `json:"tanks"`
		Failures []plant.TankFailure `json:"failures,omitempty"`
	}{
		Tanks:    snap.Readings,
		Failures: snap.Failures,
	}
	if out.Tanks == nil {
		out.Tanks = make([]plant.TankReading, 0)
	}

	b, _ := json.Marshal(out)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m, nil
}
