// Package plant holds the batch plant domain model and the decision engine
// that turns a recipe plus live tank/machine telemetry into a go/no-go
// production verdict.
package plant

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MaterialRequirement is one raw material line of a recipe: the quantity
// consumed per batch and the storage tank it is drawn from.
type MaterialRequirement struct {
	Material    string  `json:"material"`
	Tank        int     `json:"tank,omitempty"`
	QtyPerBatch float64 `json:"qty_per_batch"`
	Unit        string  `json:"unit"`
}

// Recipe is the fixed per-batch material requirement list for a product.
// Read-only reference data; never mutated by this system.
type Recipe struct {
	Product      string                `json:"product"`
	Requirements []MaterialRequirement `json:"requirements"`
}

// TankReading is a snapshot measurement of raw-material volume in one tank.
type TankReading struct {
	TankID   string    `json:"tank_id"`
	Material string    `json:"material"`
	Level    float64   `json:"level"`
	Unit     string    `json:"unit"`
	ReadAt   time.Time `json:"read_at,omitempty"`
}

// TankFailure records a tank whose level could not be read. Failed reads are
// carried alongside the successful ones so the decision engine can degrade
// the affected material to "unknown" instead of guessing.
type TankFailure struct {
	TankID   string `json:"tank_id"`
	Material string `json:"material,omitempty"`
	Reason   string `json:"reason"`
}

// TankSnapshot is the result of one equipment read: every tank either has a
// reading or a failure. There is no cross-tank transactional guarantee.
type TankSnapshot struct {
	Readings []TankReading `json:"readings"`
	Failures []TankFailure `json:"failures,omitempty"`
}

// Reading returns the tank reading for a material, matching case-insensitively.
func (s TankSnapshot) Reading(material string) (TankReading, bool) {
	for _, r := range s.Readings {
		if matchMaterial(r.Material, material) {
			return r, true
		}
	}
	return TankReading{}, false
}

// Failure returns the read failure recorded for a material, if any.
func (s TankSnapshot) Failure(material string) (TankFailure, bool) {
	for _, f := range s.Failures {
		if matchMaterial(f.Material, material) {
			return f, true
		}
	}
	return TankFailure{}, false
}

// MachineSnapshot is the result of one machine-state read.
type MachineSnapshot struct {
	States   map[string]MachineState `json:"states"`
	Failures map[string]string       `json:"failures,omitempty"`
}

func matchMaterial(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// MachineState is the operational status of a piece of process equipment,
// matching the integer encoding published by the plant server.
type MachineState int

const (
	StateDisabled MachineState = iota
	StateIdle
	StateRunning
	StateStarved
	StateBlocked
	StatePlannedDowntime
	StateUnplannedDowntime
	StateOther
)

// StateUnknown marks a value outside the published encoding.
const StateUnknown MachineState = -1

var stateNames = map[MachineState]string{
	StateDisabled:          "disabled",
	StateIdle:              "idle",
	StateRunning:           "running",
	StateStarved:           "starved",
	StateBlocked:           "blocked",
	StatePlannedDowntime:   "planned_downtime",
	StateUnplannedDowntime: "unplanned_downtime",
	StateOther:             "other",
}

func (s MachineState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown_state_%d", int(s))
}

// Operational reports whether a machine in this state can take part in a
// production run. Starved and blocked machines are waiting on flow, not
// broken, so they count as operational.
func (s MachineState) Operational() bool {
	switch s {
	case StateRunning, StateIdle, StateStarved, StateBlocked:
		return true
	}
	return false
}

// MachineStateFromInt converts the server's integer encoding to a MachineState.
func MachineStateFromInt(v int) MachineState {
	if _, ok := stateNames[MachineState(v)]; ok {
		return MachineState(v)
	}
	return StateUnknown
}

// ParseMachineState converts a state name to a MachineState. "fault" and
// "error" are accepted as aliases for unplanned downtime since operators use
// them interchangeably.
func ParseMachineState(s string) (MachineState, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "fault", "error":
		return StateUnplannedDowntime, nil
	}
	for state, n := range stateNames {
		if n == name {
			return state, nil
		}
	}
	return StateUnknown, fmt.Errorf("unknown machine state %q", s)
}

// MarshalJSON encodes the state as its name so tool outputs and artifacts
// stay human-readable.
func (s MachineState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *MachineState) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		// Fall back to the integer encoding.
		var v int
		if ierr := json.Unmarshal(b, &v); ierr != nil {
			return err
		}
		*s = MachineStateFromInt(v)
		return nil
	}
	state, err := ParseMachineState(name)
	if err != nil {
		*s = StateUnknown
		return nil
	}
	*s = state
	return nil
}
