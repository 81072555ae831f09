package plant

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CheckStatus classifies one material comparison.
type CheckStatus string

const (
	StatusSufficient   CheckStatus = "sufficient"
	StatusInsufficient CheckStatus = "insufficient"
	StatusUnknown      CheckStatus = "unknown"
)

// MaterialCheck is one required-vs-available comparison.
type MaterialCheck struct {
	Material  string      `json:"material"`
	Required  float64     `json:"required"`
	Available float64     `json:"available"`
	Unit      string      `json:"unit"`
	Status    CheckStatus `json:"status"`
	Note      string      `json:"note,omitempty"`
}

// MachineCheck is one machine's contribution to the verdict.
type MachineCheck struct {
	Machine     string       `json:"machine"`
	State       MachineState `json:"state"`
	Operational bool         `json:"operational"`
	Known       bool         `json:"known"`
	Note        string       `json:"note,omitempty"`
}

// Assessment is the computed go/no-go verdict for one query. It is transient:
// derived per request and never persisted. Complete is false when any
// underlying read failed and a check had to be degraded to unknown.
type Assessment struct {
	Product   string          `json:"product"`
	Batches   int             `json:"batches"`
	Materials []MaterialCheck `json:"materials"`
	Machines  []MachineCheck  `json:"machines"`
	Decision  bool            `json:"decision"`
	Complete  bool            `json:"complete"`
	Reasoning string          `json:"reasoning"`
}

// AssessmentInput carries everything the decision engine needs. Strict makes
// a missing tank reading a hard MappingError instead of degrading the
// material to unknown.
type AssessmentInput struct {
	Product  string
	Batches  int
	Recipe   Recipe
	Tanks    TankSnapshot
	Machines MachineSnapshot
	Strict   bool
}

// Assess computes the production verdict: every required material must have
// available >= qty_per_batch * batches (ties count as sufficient) and every
// machine must be in an operational state. Materials or machines whose reads
// failed are excluded from the decision and mark the assessment incomplete.
// The reasoning text is a pure function of the resulting checks, so identical
// inputs always produce byte-identical output.
func Assess(in AssessmentInput) (Assessment, error) {
	if in.Batches <= 0 {
		return Assessment{}, &ValidationError{Field: "batch_count", Reason: "must be a positive integer"}
	}

	product := in.Product
	if product == "" {
		product = in.Recipe.Product
	}

	reqs, err := aggregateRequirements(in.Recipe.Requirements)
	if err != nil {
		return Assessment{}, err
	}

	a := Assessment{
		Product:  product,
		Batches:  in.Batches,
		Decision: true,
		Complete: true,
	}

	for _, req := range reqs {
		check := MaterialCheck{
			Material: req.Material,
			Required: req.QtyPerBatch * float64(in.Batches),
			Unit:     req.Unit,
		}

		reading, ok := in.Tanks.Reading(req.Material)
		switch {
		case !ok:
			if fail, failed := in.Tanks.Failure(req.Material); failed {
				check.Status = StatusUnknown
				check.Note = fmt.Sprintf("tank %s unreadable: %s", fail.TankID, fail.Reason)
				a.Complete = false
				break
			}
			if in.Strict {
				return Assessment{}, &MappingError{Material: req.Material}
			}
			check.Status = StatusUnknown
			check.Note = "no tank reading for this material"
			a.Complete = false

		case reading.Level < 0:
			check.Available = reading.Level
			check.Status = StatusInsufficient
			check.Note = fmt.Sprintf("negative reading from tank %s", reading.TankID)
			a.Decision = false

		case reading.Unit != "" && req.Unit != "" && !strings.EqualFold(reading.Unit, req.Unit):
			check.Available = reading.Level
			check.Status = StatusInsufficient
			check.Note = fmt.Sprintf("unit mismatch: recipe in %s, tank %s reports %s", req.Unit, reading.TankID, reading.Unit)
			a.Decision = false

		default:
			check.Available = reading.Level
			if check.Required <= reading.Level {
				check.Status = StatusSufficient
			} else {
				check.Status = StatusInsufficient
				a.Decision = false
			}
		}

		a.Materials = append(a.Materials, check)
	}

	a.Machines = machineChecks(in.Machines)
	for _, mc := range a.Machines {
		if !mc.Known {
			a.Complete = false
			continue
		}
		if !mc.Operational {
			a.Decision = false
		}
	}

	a.Reasoning = RenderReasoning(a)
	return a, nil
}

// aggregateRequirements folds duplicate material lines together and returns
// them sorted by material name for deterministic output.
func aggregateRequirements(reqs []MaterialRequirement) ([]MaterialRequirement, error) {
	byName := map[string]MaterialRequirement{}
	for _, r := range reqs {
		if r.QtyPerBatch < 0 {
			return nil, &ValidationError{
				Field:  "qty_per_batch",
				Reason: fmt.Sprintf("negative quantity for material %q", r.Material),
			}
		}
		key := strings.ToLower(strings.TrimSpace(r.Material))
		if key == "" {
			return nil, &ValidationError{Field: "material", Reason: "requirement with empty material name"}
		}
		cur, ok := byName[key]
		if !ok {
			byName[key] = r
			continue
		}
		if !strings.EqualFold(cur.Unit, r.Unit) {
			return nil, &ValidationError{
				Field:  "unit",
				Reason: fmt.Sprintf("conflicting units for material %q (%s vs %s)", r.Material, cur.Unit, r.Unit),
			}
		}
		cur.QtyPerBatch += r.QtyPerBatch
		byName[key] = cur
	}

	out := make([]MaterialRequirement, 0, len(byName))
	for _, r := range byName {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Material) < strings.ToLower(out[j].Material)
	})
	return out, nil
}

func machineChecks(snap MachineSnapshot) []MachineCheck {
	ids := make([]string, 0, len(snap.States)+len(snap.Failures))
	for id := range snap.States {
		ids = append(ids, id)
	}
	for id := range snap.Failures {
		if _, ok := snap.States[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	checks := make([]MachineCheck, 0, len(ids))
	for _, id := range ids {
		if reason, failed := snap.Failures[id]; failed {
			checks = append(checks, MachineCheck{
				Machine: id,
				State:   StateUnknown,
				Known:   false,
				Note:    reason,
			})
			continue
		}
		state := snap.States[id]
		if state == StateUnknown {
			checks = append(checks, MachineCheck{
				Machine: id,
				State:   StateUnknown,
				Known:   false,
				Note:    "state value outside known encoding",
			})
			continue
		}
		checks = append(checks, MachineCheck{
			Machine:     id,
			State:       state,
			Operational: state.Operational(),
			Known:       true,
		})
	}
	return checks
}

// RenderReasoning renders the per-check comparisons plus a one-line summary.
// It depends only on the assessment's checks, so re-rendering the same
// assessment always yields identical text.
func RenderReasoning(a Assessment) string {
	var b strings.Builder

	for _, m := range a.Materials {
		switch m.Status {
		case StatusSufficient:
			fmt.Fprintf(&b, "%s: required %s %s <= available %s %s [OK]\n",
				m.Material, formatQty(m.Required), m.Unit, formatQty(m.Available), m.Unit)
		case StatusInsufficient:
			if m.Note != "" {
				fmt.Fprintf(&b, "%s: required %s %s, available %s %s [FAIL: %s]\n",
					m.Material, formatQty(m.Required), m.Unit, formatQty(m.Available), m.Unit, m.Note)
			} else {
				fmt.Fprintf(&b, "%s: required %s %s > available %s %s [FAIL]\n",
					m.Material, formatQty(m.Required), m.Unit, formatQty(m.Available), m.Unit)
			}
		case StatusUnknown:
			fmt.Fprintf(&b, "%s: required %s %s, availability unknown [UNVERIFIED: %s]\n",
				m.Material, formatQty(m.Required), m.Unit, m.Note)
		}
	}

	for _, mc := range a.Machines {
		switch {
		case !mc.Known:
			fmt.Fprintf(&b, "%s: state unknown [UNVERIFIED: %s]\n", mc.Machine, mc.Note)
		case mc.Operational:
			fmt.Fprintf(&b, "%s: %s [OK]\n", mc.Machine, mc.State)
		default:
			fmt.Fprintf(&b, "%s: %s [FAIL]\n", mc.Machine, mc.State)
		}
	}

	b.WriteString(summaryLine(a))
	return b.String()
}

func summaryLine(a Assessment) string {
	var reasons []string

	if bad := materialsWithStatus(a, StatusInsufficient); len(bad) > 0 {
		reasons = append(reasons, "insufficient materials: "+strings.Join(bad, ", "))
	}
	if down := machinesNotOperational(a); len(down) > 0 {
		reasons = append(reasons, "machines not operational: "+strings.Join(down, ", "))
	}

	var caveats []string
	if unk := materialsWithStatus(a, StatusUnknown); len(unk) > 0 {
		caveats = append(caveats, "unverified materials: "+strings.Join(unk, ", "))
	}
	if unk := machinesUnknown(a); len(unk) > 0 {
		caveats = append(caveats, "unverified machines: "+strings.Join(unk, ", "))
	}

	batchWord := "batches"
	if a.Batches == 1 {
		batchWord = "batch"
	}

	var line string
	if a.Decision {
		line = fmt.Sprintf("decision: GO for %d %s of %s", a.Batches, batchWord, a.Product)
		if len(a.Materials) == 0 {
			line += " (no material constraints defined; machines only)"
		}
	} else {
		line = fmt.Sprintf("decision: NO-GO for %d %s of %s (%s)",
			a.Batches, batchWord, a.Product, strings.Join(reasons, "; "))
	}
	if len(caveats) > 0 {
		line += " [incomplete: " + strings.Join(caveats, "; ") + "]"
	}
	return line
}

func materialsWithStatus(a Assessment, status CheckStatus) []string {
	var out []string
	for _, m := range a.Materials {
		if m.Status == status {
			out = append(out, m.Material)
		}
	}
	return out
}

func machinesNotOperational(a Assessment) []string {
	var out []string
	for _, mc := range a.Machines {
		if mc.Known && !mc.Operational {
			out = append(out, mc.Machine)
		}
	}
	return out
}

func machinesUnknown(a Assessment) []string {
	var out []string
	for _, mc := range a.Machines {
		if !mc.Known {
			out = append(out, mc.Machine)
		}
	}
	return out
}

// formatQty prints quantities without a fixed precision so 300 stays "300"
// and 13032.5 stays "13032.5".
func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
