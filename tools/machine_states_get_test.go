package tools

import (
	"context"
	"errors"
	"testing"

	"plantagent/plant"
	"plantagent/tools/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachineStatesGet_Run(t *testing.T) {
	source := storage.NewTestEquipmentSource(
		plant.TankSnapshot{},
		plant.MachineSnapshot{
			States: map[string]plant.MachineState{
				"mixer":   plant.StateRunning,
				"reactor": plant.StateUnplannedDowntime,
				"filler":  plant.StateIdle,
			},
		},
	)
	tool := NewMachineStatesGet(source)

	result, err := tool.Run(context.Background(), map[string]any{})
	require.NoError(t, err)

	machines, ok := result["machines"].(map[string]any)
	require.True(t, ok, "machines should be a JSON object")
	assert.Equal(t, "running", machines["mixer"])
	assert.Equal(t, "unplanned_downtime", machines["reactor"])
	assert.Equal(t, "idle", machines["filler"])

	_, hasFailures := result["failures"]
	assert.False(t, hasFailures, "no failures expected")
}

func TestMachineStatesGet_Run_PartialFailure(t *testing.T) {
	source := storage.NewTestEquipmentSource(
		plant.TankSnapshot{},
		plant.MachineSnapshot{
			States: map[string]plant.MachineState{
				"mixer": plant.StateRunning,
			},
			Failures: map[string]string{
				"reactor": "read ns=3;s=ReactorState: bad status",
			},
		},
	)
	tool := NewMachineStatesGet(source)

	result, err := tool.Run(context.Background(), map[string]any{})
	require.NoError(t, err)

	failures, ok := result["failures"].(map[string]any)
	require.True(t, ok, "failures should be a JSON object")
	assert.Contains(t, failures["reactor"], "bad status")
}

func TestMachineStatesGet_Run_ConnectionError(t *testing.T) {
	connErr := &plant.ConnectionError{Endpoint: "opc.tcp://localhost:4840/BatchPlantServer", Err: errors.New("timeout")}
	tool := NewMachineStatesGet(storage.NewTestEquipmentSourceWithError(connErr))

	_, err := tool.Run(context.Background(), map[string]any{})
	require.Error(t, err)

	var conn *plant.ConnectionError
	assert.ErrorAs(t, err, &conn)
}

func TestMachineStatesGet_ToolMethods(t *testing.T) {
	tool := NewMachineStatesGet(storage.NewTestEquipmentSource(plant.TankSnapshot{}, plant.MachineSnapshot{}))

	assert.Equal(t, "machine_states_get", tool.Name())
	assert.NotEmpty(t, tool.Title())
	assert.NotEmpty(t, tool.Description())
	assert.NotNil(t, tool.InputSchema())
	assert.NotNil(t, tool.OutputSchema())
}

func TestRegistry(t *testing.T) {
	registry, err := NewRegistry(
		storage.NewTestRecipeSource(testRecipes()...),
		storage.NewTestEquipmentSource(plant.TankSnapshot{}, plant.MachineSnapshot{}),
	)
	require.NoError(t, err)

	assert.Len(t, registry.GetTools(), 3)

	for _, name := range []string{"recipe_get", "tank_levels_get", "machine_states_get"} {
		tool, err := registry.GetTool(name)
		require.NoError(t, err)
		assert.Equal(t, name, tool.Name())
	}

	_, err = registry.GetTool("pump_toggle")
	assert.Error(t, err)
}
