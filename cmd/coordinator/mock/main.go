package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joeshaw/envdecode"

	"plantagent"
	"plantagent/coordinator/mock"
	"plantagent/plant"
	"plantagent/tools"
	"plantagent/tools/storage"
)

// Runs the canned coordinator against the file-backed artifacts, then
// recomputes the verdict with the decision engine and prints the full report.
// Useful for exercising the coordination loop without a model endpoint.
func main() {
	ctx := context.Background()

	var agentConfig plantagent.AgentConfig
	if err := envdecode.Decode(&agentConfig); err != nil {
		log.Fatalf("SETUP: Failed to decode: %s", err)
	}

	rs := storage.NewFileRecipeSource(agentConfig.ArtifactsRecipesPath)
	es := storage.NewFileEquipmentSource(agentConfig.ArtifactsEquipmentPath)

	registry, err := tools.NewRegistry(rs, es)
	if err != nil {
		slog.Error("SETUP: Failed to create tool registry", "error", err)
		return
	}

	task := argOr(1, "Can we produce 3 batches of Product A?")
	product, batches := parseTask(task)

	llm := mock.NewLLMClient(mock.Prompt{})
	output, err := mock.NewCoordinator(llm, registry, agentConfig.MaxIterations, plantagent.NewStdoutCoordinationLogger()).Run(ctx, task)
	if err != nil {
		slog.Error("FAILURE: Error handling task", "error", err)
		return
	}

	fmt.Println(output)

	// Recompute the verdict from the same sources and render the full report.
	recipe, err := rs.GetRecipe(ctx, product)
	if err != nil {
		slog.Error("FAILURE: Recipe lookup failed", "error", err)
		fmt.Println(plant.ExplainFailure(err))
		return
	}

	tanks, err := es.ReadTankLevels(ctx)
	if err != nil {
		slog.Error("FAILURE: Tank read failed", "error", err)
		fmt.Println(plant.ExplainFailure(err))
		return
	}

	machines, err := es.ReadMachineStates(ctx)
	if err != nil {
		slog.Error("FAILURE: Machine read failed", "error", err)
		fmt.Println(plant.ExplainFailure(err))
		return
	}

	assessment, err := plant.Assess(plant.AssessmentInput{
		Product:  recipe.Product,
		Batches:  batches,
		Recipe:   recipe,
		Tanks:    tanks,
		Machines: machines,
		Strict:   agentConfig.StrictMaterials,
	})
	if err != nil {
		slog.Error("FAILURE: Assessment failed", "error", err)
		return
	}

	if agentConfig.Debug {
		plantagent.Dump(recipe, tanks, machines, assessment)
	}

	fmt.Println(plant.RenderReport(assessment, []string{"recipe_get", "tank_levels_get", "machine_states_get"}))
}

func argOr(i int, def string) string {
	if len(os.Args) > i {
		return os.Args[i]
	}
	return def
}

var taskPattern = regexp.MustCompile(`(?i)(\d+)\s+batch(?:es)?\s+of\s+(.+)`)

// parseTask pulls the batch count and product name out of a
// "Can we produce N batches of P?" style question. Tasks that do not match
// fall back to the default query.
func parseTask(task string) (product string, batches int) {
	product, batches = "Product A", 3

	m := taskPattern.FindStringSubmatch(task)
	if m == nil {
		return product, batches
	}

	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return product, batches
	}

	p := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(m[2]), "?.!"))
	if p == "" {
		return product, batches
	}

	return p, n
}
