package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/jsonschema"

	"plantagent/tools/storage"
)

type MachineStatesGet struct{ source storage.EquipmentSource }

func NewMachineStatesGet(source storage.EquipmentSource) *MachineStatesGet {
	return &MachineStatesGet{source: source}
}

func (t *MachineStatesGet) Name() string  { return "machine_states_get" }
func (t *MachineStatesGet) Title() string { return "Get Machine States" }
func (t *MachineStatesGet) Description() string {
	return "Returns the current operational state of every machine in the batch plant (running, idle, starved, blocked, disabled, planned_downtime, unplanned_downtime, other)."
}

func (t *MachineStatesGet) InputSchema() *jsonschema.Schema {
	// No arguments; the machine set is plant configuration.
	return &jsonschema.Schema{Type: "object"}
}

func (t *MachineStatesGet) OutputSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"machines": {
				Type:                 "object",
				AdditionalProperties: &jsonschema.Schema{Type: "string"},
			},
			"failures": {
				Type:                 "object",
				AdditionalProperties: &jsonschema.Schema{Type: "string"},
			},
		},
		Required: []string{"machines"},
	}
}

func (t *MachineStatesGet) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	snap, err := t.source.ReadMachineStates(ctx)
	if err != nil {
		return nil, fmt.Errorf("read machine states: %w", err)
	}

	machines := make(map[string]string, len(snap.States))
	for id, state := range snap.States {
		machines[id] = state.String()
	}

	out := map[string]any{"machines": machines}
	if len(snap.Failures) > 0 {
		out["failures"] = snap.Failures
	}

	b, _ := json.Marshal(out)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m, nil
}
