package plantagent

import "time"

type ModelConfig struct {
	ModelID     string  `env:"MODEL_ID,required"`
	MaxTokens   int32   `env:"MAX_TOKENS,default=1024"`
	Temperature float32 `env:"TEMPERATURE,default=0.2"`
	TopP        float32 `env:"TOP_P,default=0.9"`
}

type AgentConfig struct {
	ArtifactsRecipesPath   string        `env:"ARTIFACTS_RECIPES_PATH,default=artifacts/recipes.json"`
	ArtifactsEquipmentPath string        `env:"ARTIFACTS_EQUIPMENT_PATH,default=artifacts/equipment.json"`
	PlantNodesPath         string        `env:"PLANT_NODES_PATH,default=artifacts/plant_nodes.json"`
	OPCEndpoint            string        `env:"OPC_ENDPOINT,default=opc.tcp://localhost:4840/BatchPlantServer"`
	OPCTimeout             time.Duration `env:"OPC_TIMEOUT,default=5s"`
	RecipeSource           string        `env:"RECIPE_SOURCE,default=file"`    // file | postgres
	EquipmentSource        string        `env:"EQUIPMENT_SOURCE,default=file"` // file | opcua
	RecipeDSN              string        `env:"RECIPE_DSN,default="`
	RecipeTimeout          time.Duration `env:"RECIPE_TIMEOUT,default=5s"`
	BaseOllamaEndpoint     string        `env:"BASE_OLLAMA_ENDPOINT,default=http://localhost:11434"`
	MaxIterations          int           `env:"MAX_ITERATIONS,default=10"`
	StrictMaterials        bool          `env:"STRICT_MATERIALS,default=false"`
	Debug                  bool          `env:"AGENT_DEBUG,default=false"`
}
