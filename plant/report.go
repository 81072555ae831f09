package plant

import (
	"errors"
	"fmt"
	"strings"
)

// RenderReport formats an assessment as the user-facing report: the overall
// verdict, each required-vs-available comparison with a pass/fail marker,
// every machine state, and which capabilities were invoked.
func RenderReport(a Assessment, toolsUsed []string) string {
	var b strings.Builder

	line := strings.Repeat("=", 50)
	b.WriteString(line + "\n")
	b.WriteString("PRODUCTION ASSESSMENT\n")
	b.WriteString(line + "\n")

	verdict := "NO-GO"
	if a.Decision {
		verdict = "GO"
	}
	fmt.Fprintf(&b, "Decision: %s (%d batches of %s)\n", verdict, a.Batches, a.Product)
	if !a.Complete {
		b.WriteString("Warning: one or more checks could not be completed; see detail below.\n")
	}

	if len(a.Materials) > 0 {
		b.WriteString("\nMaterials:\n")
		for _, m := range a.Materials {
			fmt.Fprintf(&b, "  [%s] %-24s required %10s %-4s available %10s %s",
				statusMarker(m.Status), m.Material,
				formatQty(m.Required), m.Unit,
				formatQty(m.Available), m.Unit)
			if m.Note != "" {
				fmt.Fprintf(&b, "  (%s)", m.Note)
			}
			b.WriteByte('\n')
		}
	} else {
		b.WriteString("\nMaterials: none required by recipe\n")
	}

	if len(a.Machines) > 0 {
		b.WriteString("\nMachines:\n")
		for _, mc := range a.Machines {
			marker := "x"
			switch {
			case !mc.Known:
				marker = "?"
			case mc.Operational:
				marker = "+"
			}
			fmt.Fprintf(&b, "  [%s] %-24s %s", marker, mc.Machine, mc.State)
			if mc.Note != "" {
				fmt.Fprintf(&b, "  (%s)", mc.Note)
			}
			b.WriteByte('\n')
		}
	}

	b.WriteString("\nReasoning:\n")
	for _, l := range strings.Split(strings.TrimRight(a.Reasoning, "\n"), "\n") {
		b.WriteString("  " + l + "\n")
	}

	if len(toolsUsed) > 0 {
		fmt.Fprintf(&b, "\nTools used: %s\n", strings.Join(toolsUsed, ", "))
	}
	b.WriteString(line + "\n")

	return b.String()
}

func statusMarker(s CheckStatus) string {
	switch s {
	case StatusSufficient:
		return "+"
	case StatusInsufficient:
		return "x"
	default:
		return "?"
	}
}

// ExplainFailure maps a capability failure to the user-visible statement of
// which check could not be completed and why. The caller gets a report, not a
// raw error, regardless of what went wrong.
func ExplainFailure(err error) string {
	var (
		validation  *ValidationError
		notFound    *NotFoundError
		conn        *ConnectionError
		unavailable *StoreUnavailableError
		read        *ReadError
		mapping     *MappingError
	)

	switch {
	case errors.As(err, &validation):
		return fmt.Sprintf("Could not assess production: %s.", validation.Error())
	case errors.As(err, &notFound):
		return fmt.Sprintf("Could not assess production: %s. No equipment checks were attempted.", notFound.Error())
	case errors.As(err, &unavailable):
		return "Could not assess production: the recipe store is unavailable, so material requirements are unknown. " +
			"Underlying error: " + unavailable.Err.Error()
	case errors.As(err, &conn):
		return fmt.Sprintf("Could not verify tank levels or machine states: equipment source %s is unreachable.", conn.Endpoint)
	case errors.As(err, &read):
		return fmt.Sprintf("Could not complete equipment checks: data point %s failed to read.", read.Node)
	case errors.As(err, &mapping):
		return fmt.Sprintf("Could not assess production: %s, so sufficiency cannot be confirmed.", mapping.Error())
	}
	return "Could not assess production: " + err.Error()
}
