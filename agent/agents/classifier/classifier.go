package classifier

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
	"github.com/tanpawarit/Chative-WhatsApp-Commerce/pkg/metrics"
)

// IntentClassifier labels a message with one intent from the closed set.
type IntentClassifier struct {
	runner compose.Runnable[map[string]any, *schema.Message]
	labels string
}

var _ contractx.Classifier = (*IntentClassifier)(nil)

func NewIntentClassifier(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*IntentClassifier, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: intent prompt", contractx.ErrPromptMissing)
	}
	runner, err := compileLabelGraph(ctx, chatModel, systemPrompt, "classifier.intent_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}

	labels := make([]string, 0, len(contractx.Intents))
	for _, in := range contractx.Intents {
		labels = append(labels, string(in))
	}
	return &IntentClassifier{runner: runner, labels: strings.Join(labels, ", ")}, nil
}

// Classify never fails: invocation errors and unknown labels both become GENERAL,
// which routes the message down the immediate path.
func (c *IntentClassifier) Classify(ctx context.Context, text string) contractx.Intent {
	msg, err := c.runner.Invoke(ctx, map[string]any{
		"labels": c.labels,
		"input":  text,
	})
	if err != nil {
		log.Error().Err(err).Msg("intent classification failed")
		metrics.Intent(string(contractx.IntentGeneral))
		return contractx.IntentGeneral
	}

	intent, ok := parseIntent(msg.Content)
	if !ok {
		log.Warn().Str("answer", msg.Content).Msg("classifier answered outside label set")
	}
	metrics.Intent(string(intent))
	return intent
}

func (c *IntentClassifier) RequiresDeferral(ctx context.Context, text string) bool {
	return c.Classify(ctx, text).IsSlow()
}

// parseIntent accepts only an exact label. Anything looser falls back to GENERAL so a
// sloppy answer can never push a message onto the slow path.
func parseIntent(answer string) (contractx.Intent, bool) {
	s := strings.TrimSpace(answer)
	for _, in := range contractx.Intents {
		if s == string(in) {
			return in, true
		}
	}
	return contractx.IntentGeneral, false
}
