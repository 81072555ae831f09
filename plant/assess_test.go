package plant_test

import (
	"testing"

	"plantagent/plant"

	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"
)

func productARecipe() plant.Recipe {
	return plant.Recipe{
		Product: "Product A",
		Requirements: []plant.MaterialRequirement{
			{Material: "Material A", Tank: 1, QtyPerBatch: 100, Unit: "l"},
			{Material: "Material B", Tank: 2, QtyPerBatch: 200, Unit: "l"},
			{Material: "Material C", Tank: 3, QtyPerBatch: 150, Unit: "l"},
		},
	}
}

func fullTanks() plant.TankSnapshot {
	return plant.TankSnapshot{
		Readings: []plant.TankReading{
			{TankID: "tank-1", Material: "Material A", Level: 8000, Unit: "l"},
			{TankID: "tank-2", Material: "Material B", Level: 13032, Unit: "l"},
			{TankID: "tank-3", Material: "Material C", Level: 18947, Unit: "l"},
		},
	}
}

func runningMachines() plant.MachineSnapshot {
	return plant.MachineSnapshot{
		States: map[string]plant.MachineState{
			"mixer":   plant.StateRunning,
			"reactor": plant.StateIdle,
			"filler":  plant.StateRunning,
		},
	}
}

func TestAssessGo(t *testing.T) {
	a, err := plant.Assess(plant.AssessmentInput{
		Batches:  3,
		Recipe:   productARecipe(),
		Tanks:    fullTanks(),
		Machines: runningMachines(),
	})
	must.NoError(t, err)

	should.True(t, a.Decision)
	should.True(t, a.Complete)
	should.Equal(t, "Product A", a.Product)
	should.Equal(t, 3, a.Batches)

	must.Len(t, a.Materials, 3)
	should.Equal(t, "Material A", a.Materials[0].Material)
	should.Equal(t, 300.0, a.Materials[0].Required)
	should.Equal(t, 8000.0, a.Materials[0].Available)
	should.Equal(t, plant.StatusSufficient, a.Materials[0].Status)
	should.Equal(t, 600.0, a.Materials[1].Required)
	should.Equal(t, 450.0, a.Materials[2].Required)

	must.Len(t, a.Machines, 3)
	for _, mc := range a.Machines {
		should.True(t, mc.Known)
		should.True(t, mc.Operational)
	}

	should.Contains(t, a.Reasoning, "Material A: required 300 l <= available 8000 l [OK]")
	should.Contains(t, a.Reasoning, "mixer: running [OK]")
	should.Contains(t, a.Reasoning, "decision: GO for 3 batches of Product A")
}

func TestAssessNoGoInsufficientMaterial(t *testing.T) {
	a, err := plant.Assess(plant.AssessmentInput{
		Batches:  100,
		Recipe:   productARecipe(),
		Tanks:    fullTanks(),
		Machines: runningMachines(),
	})
	must.NoError(t, err)

	should.False(t, a.Decision)
	should.True(t, a.Complete)

	// 100 batches needs 10000 l of A against 8000 and 20000 l of B against 13032.
	should.Equal(t, plant.StatusInsufficient, a.Materials[0].Status)
	should.Equal(t, plant.StatusInsufficient, a.Materials[1].Status)
	should.Equal(t, plant.StatusSufficient, a.Materials[2].Status)

	should.Contains(t, a.Reasoning, "Material A: required 10000 l > available 8000 l [FAIL]")
	should.Contains(t, a.Reasoning, "decision: NO-GO for 100 batches of Product A (insufficient materials: Material A, Material B)")
}

func TestAssessNoGoMachineDown(t *testing.T) {
	machines := runningMachines()
	machines.States["reactor"] = plant.StateUnplannedDowntime

	a, err := plant.Assess(plant.AssessmentInput{
		Batches:  3,
		Recipe:   productARecipe(),
		Tanks:    fullTanks(),
		Machines: machines,
	})
	must.NoError(t, err)

	should.False(t, a.Decision)
	should.True(t, a.Complete)
	should.Contains(t, a.Reasoning, "reactor: unplanned_downtime [FAIL]")
	should.Contains(t, a.Reasoning, "machines not operational: reactor")
}

func TestAssessExactlyEnoughIsSufficient(t *testing.T) {
	tanks := plant.TankSnapshot{
		Readings: []plant.TankReading{
			{TankID: "tank-1", Material: "Material A", Level: 300, Unit: "l"},
			{TankID: "tank-2", Material: "Material B", Level: 600, Unit: "l"},
			{TankID: "tank-3", Material: "Material C", Level: 450, Unit: "l"},
		},
	}

	a, err := plant.Assess(plant.AssessmentInput{
		Batches:  3,
		Recipe:   productARecipe(),
		Tanks:    tanks,
		Machines: runningMachines(),
	})
	must.NoError(t, err)
	should.True(t, a.Decision)
}

func TestAssessInvalidBatchCount(t *testing.T) {
	for _, batches := range []int{0, -4} {
		_, err := plant.Assess(plant.AssessmentInput{
			Batches:  batches,
			Recipe:   productARecipe(),
			Tanks:    fullTanks(),
			Machines: runningMachines(),
		})
		must.Error(t, err)

		var verr *plant.ValidationError
		must.ErrorAs(t, err, &verr)
		should.Equal(t, "batch_count", verr.Field)
	}
}

func TestAssessMissingReadingDegradesToUnknown(t *testing.T) {
	tanks := fullTanks()
	tanks.Readings = tanks.Readings[:2] // drop Material C

	a, err := plant.Assess(plant.AssessmentInput{
		Batches:  3,
		Recipe:   productARecipe(),
		Tanks:    tanks,
		Machines: runningMachines(),
	})
	must.NoError(t, err)

	should.True(t, a.Decision, "unknown availability must not force a no-go on its own")
	should.False(t, a.Complete)
	should.Equal(t, plant.StatusUnknown, a.Materials[2].Status)
	should.Contains(t, a.Reasoning, "Material C: required 450 l, availability unknown [UNVERIFIED: no tank reading for this material]")
	should.Contains(t, a.Reasoning, "[incomplete: unverified materials: Material C]")
}

func TestAssessTankFailureDegradesToUnknown(t *testing.T) {
	tanks := fullTanks()
	tanks.Readings = tanks.Readings[:2]
	tanks.Failures = []plant.TankFailure{
		{TankID: "tank-3", Material: "Material C", Reason: "read timed out"},
	}

	a, err := plant.Assess(plant.AssessmentInput{
		Batches:  3,
		Recipe:   productARecipe(),
		Tanks:    tanks,
		Machines: runningMachines(),
	})
	must.NoError(t, err)

	should.False(t, a.Complete)
	should.Equal(t, plant.StatusUnknown, a.Materials[2].Status)
	should.Contains(t, a.Reasoning, "Material C: required 450 l, availability unknown [UNVERIFIED: tank tank-3 unreadable: read timed out]")
}

func TestAssessStrictMissingReadingIsMappingError(t *testing.T) {
	tanks := fullTanks()
	tanks.Readings = tanks.Readings[:2]

	_, err := plant.Assess(plant.AssessmentInput{
		Batches:  3,
		Recipe:   productARecipe(),
		Tanks:    tanks,
		Machines: runningMachines(),
		Strict:   true,
	})
	must.Error(t, err)

	var merr *plant.MappingError
	must.ErrorAs(t, err, &merr)
	should.Equal(t, "Material C", merr.Material)
}

func TestAssessNegativeReadingIsInsufficient(t *testing.T) {
	tanks := fullTanks()
	tanks.Readings[0].Level = -12

	a, err := plant.Assess(plant.AssessmentInput{
		Batches:  3,
		Recipe:   productARecipe(),
		Tanks:    tanks,
		Machines: runningMachines(),
	})
	must.NoError(t, err)

	should.False(t, a.Decision)
	should.Equal(t, plant.StatusInsufficient, a.Materials[0].Status)
	should.Contains(t, a.Materials[0].Note, "negative reading from tank tank-1")
}

func TestAssessUnitMismatchIsInsufficient(t *testing.T) {
	tanks := fullTanks()
	tanks.Readings[1].Unit = "kg"

	a, err := plant.Assess(plant.AssessmentInput{
		Batches:  3,
		Recipe:   productARecipe(),
		Tanks:    tanks,
		Machines: runningMachines(),
	})
	must.NoError(t, err)

	should.False(t, a.Decision)
	should.Equal(t, plant.StatusInsufficient, a.Materials[1].Status)
	should.Contains(t, a.Materials[1].Note, "unit mismatch: recipe in l, tank tank-2 reports kg")
}

func TestAssessUnknownMachineState(t *testing.T) {
	machines := runningMachines()
	machines.States["reactor"] = plant.StateUnknown

	a, err := plant.Assess(plant.AssessmentInput{
		Batches:  3,
		Recipe:   productARecipe(),
		Tanks:    fullTanks(),
		Machines: machines,
	})
	must.NoError(t, err)

	should.True(t, a.Decision, "unknown machine state must not force a no-go on its own")
	should.False(t, a.Complete)
	should.Contains(t, a.Reasoning, "reactor: state unknown [UNVERIFIED: state value outside known encoding]")
	should.Contains(t, a.Reasoning, "[incomplete: unverified machines: reactor]")
}

func TestAssessMachineReadFailure(t *testing.T) {
	machines := runningMachines()
	delete(machines.States, "filler")
	machines.Failures = map[string]string{"filler": "bad node id"}

	a, err := plant.Assess(plant.AssessmentInput{
		Batches:  3,
		Recipe:   productARecipe(),
		Tanks:    fullTanks(),
		Machines: machines,
	})
	must.NoError(t, err)

	should.False(t, a.Complete)
	should.Contains(t, a.Reasoning, "filler: state unknown [UNVERIFIED: bad node id]")
}

func TestAssessEmptyRecipe(t *testing.T) {
	a, err := plant.Assess(plant.AssessmentInput{
		Product:  "Product X",
		Batches:  1,
		Recipe:   plant.Recipe{Product: "Product X"},
		Tanks:    fullTanks(),
		Machines: runningMachines(),
	})
	must.NoError(t, err)

	should.True(t, a.Decision)
	should.Empty(t, a.Materials)
	should.Contains(t, a.Reasoning, "decision: GO for 1 batch of Product X (no material constraints defined; machines only)")
}

func TestAssessAggregatesDuplicateMaterials(t *testing.T) {
	recipe := plant.Recipe{
		Product: "Product B",
		Requirements: []plant.MaterialRequirement{
			{Material: "Material A", QtyPerBatch: 100, Unit: "l"},
			{Material: "material a", QtyPerBatch: 50, Unit: "l"},
		},
	}

	a, err := plant.Assess(plant.AssessmentInput{
		Batches:  2,
		Recipe:   recipe,
		Tanks:    fullTanks(),
		Machines: runningMachines(),
	})
	must.NoError(t, err)

	must.Len(t, a.Materials, 1)
	should.Equal(t, 300.0, a.Materials[0].Required)
}

func TestAssessConflictingUnitsRejected(t *testing.T) {
	recipe := plant.Recipe{
		Product: "Product B",
		Requirements: []plant.MaterialRequirement{
			{Material: "Material A", QtyPerBatch: 100, Unit: "l"},
			{Material: "Material A", QtyPerBatch: 50, Unit: "kg"},
		},
	}

	_, err := plant.Assess(plant.AssessmentInput{
		Batches:  2,
		Recipe:   recipe,
		Tanks:    fullTanks(),
		Machines: runningMachines(),
	})
	must.Error(t, err)

	var verr *plant.ValidationError
	must.ErrorAs(t, err, &verr)
	should.Equal(t, "unit", verr.Field)
}

func TestAssessNegativeQuantityRejected(t *testing.T) {
	recipe := plant.Recipe{
		Product: "Product B",
		Requirements: []plant.MaterialRequirement{
			{Material: "Material A", QtyPerBatch: -1, Unit: "l"},
		},
	}

	_, err := plant.Assess(plant.AssessmentInput{
		Batches:  1,
		Recipe:   recipe,
		Tanks:    fullTanks(),
		Machines: runningMachines(),
	})
	must.Error(t, err)

	var verr *plant.ValidationError
	must.ErrorAs(t, err, &verr)
	should.Equal(t, "qty_per_batch", verr.Field)
}

func TestAssessReasoningIsDeterministic(t *testing.T) {
	in := plant.AssessmentInput{
		Batches:  3,
		Recipe:   productARecipe(),
		Tanks:    fullTanks(),
		Machines: runningMachines(),
	}

	first, err := plant.Assess(in)
	must.NoError(t, err)
	second, err := plant.Assess(in)
	must.NoError(t, err)

	should.Equal(t, first.Reasoning, second.Reasoning)
	should.Equal(t, first, second)
}
