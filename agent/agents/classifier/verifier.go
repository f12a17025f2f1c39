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
)

// RelevanceVerifier asks the model whether a retrieved product is the one the user meant.
type RelevanceVerifier struct {
	runner compose.Runnable[map[string]any, *schema.Message]
}

var _ contractx.Verifier = (*RelevanceVerifier)(nil)

func NewRelevanceVerifier(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*RelevanceVerifier, error) {
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: relevance prompt", contractx.ErrPromptMissing)
	}
	runner, err := compileLabelGraph(ctx, chatModel, systemPrompt, "classifier.relevance_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	return &RelevanceVerifier{runner: runner}, nil
}

// Verify fails closed: only an answer equal to "true", ignoring case, accepts the candidate.
func (v *RelevanceVerifier) Verify(ctx context.Context, candidateName string, userText string) bool {
	msg, err := v.runner.Invoke(ctx, map[string]any{
		"product": candidateName,
		"input":   userText,
	})
	if err != nil {
		log.Error().Err(err).Str("product", candidateName).Msg("relevance verification failed")
		return false
	}
	return strings.EqualFold(msg.Content, "true")
}
