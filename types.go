package plantagent

import (
	"context"
	"net/http"
	"plantagent/tools"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type SlackClient interface {
	PostMessage(ctx context.Context, channel string, message string) error
}

type ToolProvider interface {
	GetTools() []tools.Tool
	GetTool(name string) (tools.Tool, error)
}

type Coordinator interface {
	Run(ctx context.Context, task string) (string, error)
}

// ProductionAssessment is the final structured answer expected from the LLM:
// a go/no-go verdict for producing a number of batches of a product, with the
// per-material and per-machine detail backing it.
type ProductionAssessment struct {
	Decision      string            `json:"decision"` // "go" or "no-go"
	CanProduce    bool              `json:"can_produce"`
	Product       string            `json:"product"`
	Batches       int               `json:"batches"`
	Reasoning     string            `json:"reasoning"`
	Materials     []MaterialVerdict `json:"materials"`
	MachineStates map[string]string `json:"machine_states"`
	ToolsUsed     []string          `json:"tools_used"`
}

// MaterialVerdict is one required-vs-available comparison in the final answer.
type MaterialVerdict struct {
	Material   string  `json:"material"`
	Required   float64 `json:"required"`
	Available  float64 `json:"available"`
	Unit       string  `json:"unit"`
	Sufficient bool    `json:"sufficient"`
}

// IsValid checks if the ProductionAssessment meets basic validation requirements.
func (pa *ProductionAssessment) IsValid() bool {
	if pa.Decision != "go" && pa.Decision != "no-go" {
		return false
	}

	// The verdict label and the boolean must agree.
	if (pa.Decision == "go") != pa.CanProduce {
		return false
	}

	if pa.Product == "" || pa.Batches <= 0 {
		return false
	}

	// Every listed material comparison must be fully specified.
	for _, m := range pa.Materials {
		if m.Material == "" || m.Required < 0 {
			return false
		}
	}

	// Reasoning should not be empty
	if pa.Reasoning == "" {
		return false
	}

	return true
}
