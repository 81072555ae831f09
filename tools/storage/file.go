package storage

import (
	"context"
	"encoding/json"
	"time"

	"plantagent/plant"
)

// FileRecipeSource serves recipes from a JSON artifact. Used for local runs
// and demos when no plant database is configured.
type FileRecipeSource struct {
	FilePath string
}

func NewFileRecipeSource(filePath string) *FileRecipeSource {
	return &FileRecipeSource{FilePath: filePath}
}

func (s *FileRecipeSource) GetRecipe(ctx context.Context, product string) (plant.Recipe, error) {
	recipes, err := loadRecipes(ctx, fileLoader(s.FilePath))
	if err != nil {
		return plant.Recipe{}, err
	}
	return findRecipe(recipes, product)
}

// fileEquipment is the on-disk shape of a simulated equipment snapshot.
type fileEquipment struct {
	Tanks           []plant.TankReading           `json:"tanks"`
	TankFailures    []plant.TankFailure           `json:"tank_failures,omitempty"`
	Machines        map[string]plant.MachineState `json:"machines"`
	MachineFailures map[string]string             `json:"machine_failures,omitempty"`
}

// FileEquipmentSource serves tank levels and machine states from a JSON
// artifact, standing in for a live OPC UA server. Re-read per call so edits
// to the artifact show up like fresh telemetry.
type FileEquipmentSource struct {
	FilePath string
}

func NewFileEquipmentSource(filePath string) *FileEquipmentSource {
	return &FileEquipmentSource{FilePath: filePath}
}

func (s *FileEquipmentSource) ReadTankLevels(ctx context.Context) (plant.TankSnapshot, error) {
	eq, err := s.load(ctx)
	if err != nil {
		return plant.TankSnapshot{}, err
	}
	snap := plant.TankSnapshot{Readings: eq.Tanks, Failures: eq.TankFailures}
	now := time.Now().UTC()
	for i := range snap.Readings {
		if snap.Readings[i].ReadAt.IsZero() {
			snap.Readings[i].ReadAt = now
		}
	}
	return snap, nil
}

func (s *FileEquipmentSource) ReadMachineStates(ctx context.Context) (plant.MachineSnapshot, error) {
	eq, err := s.load(ctx)
	if err != nil {
		return plant.MachineSnapshot{}, err
	}
	snap := plant.MachineSnapshot{States: eq.Machines, Failures: eq.MachineFailures}
	if snap.States == nil {
		snap.States = map[string]plant.MachineState{}
	}
	return snap, nil
}

func (s *FileEquipmentSource) load(ctx context.Context) (fileEquipment, error) {
	b, err := fileLoader(s.FilePath)(ctx)
	if err != nil {
		return fileEquipment{}, &plant.ConnectionError{Endpoint: s.FilePath, Err: err}
	}
	var eq fileEquipment
	if err := json.Unmarshal(b, &eq); err != nil {
		return fileEquipment{}, &plant.ConnectionError{Endpoint: s.FilePath, Err: err}
	}
	return eq, nil
}
