package bedrock

import (
	"encoding/json"
	"fmt"

	"plantagent"
	"plantagent/plant"
)

// capturedData is the most recent output of each capability, kept so the
// coordinator can re-run the decision engine against the same facts the model
// saw.
type capturedData struct {
	recipe      *plant.Recipe
	recipeErr   string
	tanks       *plant.TankSnapshot
	machines    *plant.MachineSnapshot
	tanksErr    string
	machinesErr string
	hasTanks    bool
	hasMachines bool
}

// capture records a tool result for later verification. Error payloads are
// kept too: a failed read is a fact the verdict has to be consistent with.
func (c *capturedData) capture(toolName string, result map[string]any) {
	if errMsg, ok := result["error"].(string); ok && errMsg != "" {
		switch toolName {
		case "recipe_get":
			c.recipeErr = errMsg
		case "tank_levels_get":
			c.tanksErr = errMsg
		case "machine_states_get":
			c.machinesErr = errMsg
		}
		return
	}

	switch toolName {
	case "recipe_get":
		var out struct {
			Product string                      `json:"product"`
			Recipe  []plant.MaterialRequirement `json:"recipe"`
		}
		if decode(result, &out) == nil {
			c.recipe = &plant.Recipe{Product: out.Product, Requirements: out.Recipe}
			c.recipeErr = ""
		}

	case "tank_levels_get":
		var out struct {
			Tanks    []plant.TankReading `json:"tanks"`
			Failures []plant.TankFailure `json:"failures"`
		}
		if decode(result, &out) == nil {
			c.tanks = &plant.TankSnapshot{Readings: out.Tanks, Failures: out.Failures}
			c.hasTanks = true
			c.tanksErr = ""
		}

	case "machine_states_get":
		var out struct {
			Machines map[string]string `json:"machines"`
			Failures map[string]string `json:"failures"`
		}
		if decode(result, &out) == nil {
			snap := plant.MachineSnapshot{
				States:   map[string]plant.MachineState{},
				Failures: out.Failures,
			}
			for id, name := range out.Machines {
				state, err := plant.ParseMachineState(name)
				if err != nil {
					state = plant.StateUnknown
				}
				snap.States[id] = state
			}
			c.machines = &snap
			c.hasMachines = true
			c.machinesErr = ""
		}
	}
}

func firstFailure(errs ...string) string {
	for _, e := range errs {
		if e != "" {
			return e
		}
	}
	return ""
}

func decode(m map[string]any, out any) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// verify re-runs the decision engine against the captured tool outputs and
// checks the model's verdict. A final answer is acceptable because the recipe
// lookup or an equipment read failed (nothing to compare, verdict must be
// no-go) or because the recomputed decision agrees with the model's.
func (c *capturedData) verify(pa plantagent.ProductionAssessment) (ok bool, problems []string, err error) {
	if c.recipeErr != "" {
		if pa.CanProduce {
			return false, []string{fmt.Sprintf("recipe lookup failed (%s) but verdict is go", c.recipeErr)}, nil
		}
		return true, nil, nil
	}

	if c.recipe == nil {
		return false, []string{"no recipe_get result to verify against"}, nil
	}

	if !c.hasTanks || !c.hasMachines {
		// A recorded read failure cannot support a go verdict, but a no-go
		// that reports the failure is the correct final answer.
		if failure := firstFailure(c.tanksErr, c.machinesErr); failure != "" {
			if pa.CanProduce {
				return false, []string{fmt.Sprintf("equipment read failed (%s) but verdict is go", failure)}, nil
			}
			return true, nil, nil
		}
		if !c.hasTanks {
			return false, []string{"no tank_levels_get result to verify against"}, nil
		}
		return false, []string{"no machine_states_get result to verify against"}, nil
	}

	assessment, aerr := plant.Assess(plant.AssessmentInput{
		Product:  pa.Product,
		Batches:  pa.Batches,
		Recipe:   *c.recipe,
		Tanks:    *c.tanks,
		Machines: *c.machines,
	})
	if aerr != nil {
		return false, nil, fmt.Errorf("recompute assessment: %w", aerr)
	}

	if assessment.Decision != pa.CanProduce {
		problems = append(problems, fmt.Sprintf(
			"verdict mismatch: model says can_produce=%t, recomputation says %t", pa.CanProduce, assessment.Decision))
		problems = append(problems, assessment.Reasoning)
		return false, problems, nil
	}

	return true, nil, nil
}
