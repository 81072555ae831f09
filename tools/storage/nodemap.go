package storage

import (
	"encoding/json"
	"fmt"
	"os"
)

// TankNode ties one tank-level data point to the material stored in that tank.
type TankNode struct {
	TankID   string `json:"tank_id"`
	Material string `json:"material"`
	NodeID   string `json:"node_id"`
	Unit     string `json:"unit"`
}

// MachineNode names one machine-state data point.
type MachineNode struct {
	MachineID string `json:"machine_id"`
	NodeID    string `json:"node_id"`
}

// NodeMap is the set of named data points the equipment reader knows about.
// It is plant configuration, loaded once at startup.
type NodeMap struct {
	Tanks    []TankNode    `json:"tanks"`
	Machines []MachineNode `json:"machines"`
}

// LoadNodeMap reads a node map from a JSON artifact.
func LoadNodeMap(path string) (NodeMap, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return NodeMap{}, fmt.Errorf("read node map: %w", err)
	}
	var nm NodeMap
	if err := json.Unmarshal(b, &nm); err != nil {
		return NodeMap{}, fmt.Errorf("parse node map: %w", err)
	}
	if len(nm.Tanks) == 0 && len(nm.Machines) == 0 {
		return NodeMap{}, fmt.Errorf("node map %s defines no data points", path)
	}
	return nm, nil
}
