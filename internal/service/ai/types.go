package ai

// ModelPreset represents the model usage preset
type ModelPreset string

const (
	PresetCreative ModelPreset = "creative"
	PresetPrecise  ModelPreset = "precise"
	PresetBalanced ModelPreset = "balanced"
)

// ModelConfig holds model configuration
type ModelConfig struct {
	Temperature      float32
	TopP             float32
	TopK             int
	MaxOutputTokens  int
	ResponseMimeType string // "application/json" or "text/plain"
}

// OpenAIPreset holds OpenAI-specific configuration
type OpenAIPreset struct {
	Temperature float32
	MaxTokens   int
	TopP        float32
}

// GenerateMetadata contains metadata about the generation
type GenerateMetadata struct {
	Provider     string
	Model        string
	UsedFallback bool
}

// GenerateOptions holds options for AI generation
type GenerateOptions struct {
	Model     string
	JSONMode  bool
	Overrides *ModelConfig
}

// GetPresetConfig returns the Gemini configuration for a preset
func GetPresetConfig(preset ModelPreset) ModelConfig {
	switch preset {
	case PresetCreative:
		return ModelConfig{
			Temperature:     0.9,
			TopP:            0.95,
			TopK:            40,
			MaxOutputTokens: 2048,
		}
	case PresetPrecise:
		return ModelConfig{
			Temperature:     0.1,
			TopP:            0.9,
			TopK:            20,
			MaxOutputTokens: 1024,
		}
	default:
		return ModelConfig{
			Temperature:     0.5,
			TopP:            0.9,
			TopK:            30,
			MaxOutputTokens: 1536,
		}
	}
}

// GetOpenAIPresetConfig returns the OpenAI configuration for a preset
func GetOpenAIPresetConfig(preset ModelPreset) OpenAIPreset {
	switch preset {
	case PresetCreative:
		return OpenAIPreset{Temperature: 0.9, TopP: 0.95, MaxTokens: 2048}
	case PresetPrecise:
		return OpenAIPreset{Temperature: 0.1, TopP: 0.9, MaxTokens: 1024}
	default:
		return OpenAIPreset{Temperature: 0.5, TopP: 0.9, MaxTokens: 1536}
	}
}
