package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"

	"plantagent/plant"
)

// OPCUAEquipmentSource reads tank levels and machine states from the plant's
// OPC UA server. It holds one long-lived session: Connect before first use,
// Close on shutdown. Reads are batched into a single service call per
// snapshot; a bad status on one node degrades that item without failing the
// rest.
type OPCUAEquipmentSource struct {
	endpoint string
	nodes    NodeMap
	timeout  time.Duration
	client   *opcua.Client
}

func NewOPCUAEquipmentSource(endpoint string, nodes NodeMap, timeout time.Duration) *OPCUAEquipmentSource {
	return &OPCUAEquipmentSource{
		endpoint: endpoint,
		nodes:    nodes,
		timeout:  timeout,
	}
}

// Connect establishes the session. The plant server accepts anonymous
// connections without message security.
func (s *OPCUAEquipmentSource) Connect(ctx context.Context) error {
	client, err := opcua.NewClient(
		s.endpoint,
		opcua.SecurityMode(ua.MessageSecurityModeNone),
		opcua.AuthAnonymous(),
	)
	if err != nil {
		return &plant.ConnectionError{Endpoint: s.endpoint, Err: err}
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		return &plant.ConnectionError{Endpoint: s.endpoint, Err: err}
	}
	s.client = client
	return nil
}

// Close releases the session.
func (s *OPCUAEquipmentSource) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close(ctx)
	s.client = nil
	return err
}

// ReadTankLevels reads every configured tank-level node in one request.
func (s *OPCUAEquipmentSource) ReadTankLevels(ctx context.Context) (plant.TankSnapshot, error) {
	if s.client == nil {
		return plant.TankSnapshot{}, &plant.ConnectionError{Endpoint: s.endpoint, Err: errors.New("session not established")}
	}

	var snap plant.TankSnapshot
	ids := make([]*ua.ReadValueID, 0, len(s.nodes.Tanks))
	read := make([]TankNode, 0, len(s.nodes.Tanks))

	for _, tn := range s.nodes.Tanks {
		nodeID, err := ua.ParseNodeID(tn.NodeID)
		if err != nil {
			snap.Failures = append(snap.Failures, plant.TankFailure{
				TankID:   tn.TankID,
				Material: tn.Material,
				Reason:   fmt.Sprintf("bad node id %q: %v", tn.NodeID, err),
			})
			continue
		}
		ids = append(ids, &ua.ReadValueID{NodeID: nodeID})
		read = append(read, tn)
	}

	if len(ids) == 0 {
		return snap, nil
	}

	resp, err := s.read(ctx, ids)
	if err != nil {
		return plant.TankSnapshot{}, err
	}

	for i, dv := range resp.Results {
		tn := read[i]
		if dv.Status != ua.StatusOK {
			snap.Failures = append(snap.Failures, plant.TankFailure{
				TankID:   tn.TankID,
				Material: tn.Material,
				Reason:   (&plant.ReadError{Node: tn.NodeID, Err: dv.Status}).Error(),
			})
			continue
		}
		level, ok := toFloat(dv.Value.Value())
		if !ok {
			snap.Failures = append(snap.Failures, plant.TankFailure{
				TankID:   tn.TankID,
				Material: tn.Material,
				Reason:   fmt.Sprintf("node %s returned non-numeric value %v", tn.NodeID, dv.Value.Value()),
			})
			continue
		}
		snap.Readings = append(snap.Readings, plant.TankReading{
			TankID:   tn.TankID,
			Material: tn.Material,
			Level:    level,
			Unit:     tn.Unit,
			ReadAt:   readTime(dv),
		})
	}

	return snap, nil
}

// ReadMachineStates reads every configured machine-state node in one request.
func (s *OPCUAEquipmentSource) ReadMachineStates(ctx context.Context) (plant.MachineSnapshot, error) {
	if s.client == nil {
		return plant.MachineSnapshot{}, &plant.ConnectionError{Endpoint: s.endpoint, Err: errors.New("session not established")}
	}

	snap := plant.MachineSnapshot{
		States:   map[string]plant.MachineState{},
		Failures: map[string]string{},
	}

	ids := make([]*ua.ReadValueID, 0, len(s.nodes.Machines))
	read := make([]MachineNode, 0, len(s.nodes.Machines))

	for _, mn := range s.nodes.Machines {
		nodeID, err := ua.ParseNodeID(mn.NodeID)
		if err != nil {
			snap.Failures[mn.MachineID] = fmt.Sprintf("bad node id %q: %v", mn.NodeID, err)
			continue
		}
		ids = append(ids, &ua.ReadValueID{NodeID: nodeID})
		read = append(read, mn)
	}

	if len(ids) == 0 {
		return snap, nil
	}

	resp, err := s.read(ctx, ids)
	if err != nil {
		return plant.MachineSnapshot{}, err
	}

	for i, dv := range resp.Results {
		mn := read[i]
		if dv.Status != ua.StatusOK {
			snap.Failures[mn.MachineID] = (&plant.ReadError{Node: mn.NodeID, Err: dv.Status}).Error()
			continue
		}
		v, ok := toInt(dv.Value.Value())
		if !ok {
			snap.Failures[mn.MachineID] = fmt.Sprintf("node %s returned non-integer value %v", mn.NodeID, dv.Value.Value())
			continue
		}
		snap.States[mn.MachineID] = plant.MachineStateFromInt(v)
	}

	return snap, nil
}

func (s *OPCUAEquipmentSource) read(ctx context.Context, ids []*ua.ReadValueID) (*ua.ReadResponse, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	resp, err := s.client.Read(ctx, &ua.ReadRequest{
		MaxAge:             2000,
		NodesToRead:        ids,
		TimestampsToReturn: ua.TimestampsToReturnSource,
	})
	if err != nil {
		return nil, &plant.ConnectionError{Endpoint: s.endpoint, Err: err}
	}
	if len(resp.Results) != len(ids) {
		return nil, &plant.ConnectionError{
			Endpoint: s.endpoint,
			Err:      fmt.Errorf("server returned %d results for %d nodes", len(resp.Results), len(ids)),
		}
	}
	return resp, nil
}

func (s *OPCUAEquipmentSource) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func readTime(dv *ua.DataValue) time.Time {
	if !dv.SourceTimestamp.IsZero() {
		return dv.SourceTimestamp
	}
	return time.Now().UTC()
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int16:
		return int(t), true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case uint16:
		return int(t), true
	case uint32:
		return int(t), true
	case uint64:
		return int(t), true
	case float64:
		return int(t), true
	case float32:
		return int(t), true
	}
	return 0, false
}
