package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
	openrouterx "github.com/tanpawarit/Chative-WhatsApp-Commerce/pkg/openrouter"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	AssistantModel        string  `envconfig:"ASSISTANT_MODEL" split_words:"true"`
	ClassifierModel       string  `envconfig:"CLASSIFIER_MODEL" split_words:"true"`
	VerifierModel         string  `envconfig:"VERIFIER_MODEL" split_words:"true"`
	AssistantTemperature  float32 `envconfig:"ASSISTANT_TEMPERATURE" split_words:"true" default:"-1"`
	ClassifierTemperature float32 `envconfig:"CLASSIFIER_TEMPERATURE" split_words:"true" default:"0"`
	VerifierTemperature   float32 `envconfig:"VERIFIER_TEMPERATURE" split_words:"true" default:"0"`

	// AssistantMaxStep bounds model/tool round trips inside one agent run.
	AssistantMaxStep int `envconfig:"ASSISTANT_MAX_STEP" split_words:"true" default:"12"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	if c.AssistantMaxStep < 0 {
		return fmt.Errorf("%w: assistant max step must not be negative", contractx.ErrValidation)
	}
	return nil
}

// OpenRouterFor resolves the model settings for one role. Role overrides win over the
// defaults; a negative temperature means "use the default".
func (c Config) OpenRouterFor(agentType contractx.AgentType) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature

	override := func(m string, t float32) {
		if v := strings.TrimSpace(m); v != "" {
			modelName = v
		}
		if t >= 0 {
			temp = t
		}
	}

	switch agentType {
	case contractx.AgentTypeAssistant:
		override(c.AssistantModel, c.AssistantTemperature)
	case contractx.AgentTypeClassifier:
		override(c.ClassifierModel, c.ClassifierTemperature)
	case contractx.AgentTypeVerifier:
		override(c.VerifierModel, c.VerifierTemperature)
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
