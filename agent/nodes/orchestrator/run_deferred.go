package orchestratornode

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
	statex "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/state"
	toolx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/tool"
	"github.com/tanpawarit/Chative-WhatsApp-Commerce/pkg/metrics"
)

// RunDeferredTask produces the answer for a background task. Only the agent run can fail;
// once an answer exists it is delivered and never retried.
func RunDeferredTask(
	ctx context.Context,
	task contractx.DeferredTask,
	store statex.Store,
	assistant contractx.Assistant,
	messenger contractx.Messenger,
) error {
	if strings.TrimSpace(task.UserID) == "" || len(task.History) == 0 {
		return fmt.Errorf("%w: deferred task is incomplete", contractx.ErrValidation)
	}

	answer, err := assistant.Invoke(toolx.WithIdentity(ctx, task.UserID), statex.CloneHistory(task.History))
	if err != nil {
		return err
	}
	DeliverDeferred(ctx, task, answer, store, messenger)
	return nil
}

// DeliverDeferred sends reply and replaces the stored history with the task snapshot plus
// reply. The replace overwrites whatever was stored in between.
func DeliverDeferred(
	ctx context.Context,
	task contractx.DeferredTask,
	reply string,
	store statex.Store,
	messenger contractx.Messenger,
) {
	logger := log.With().Str("user_id", task.UserID).Str("task", task.ID).Logger()

	err := messenger.SendMessage(ctx, task.Destination, reply)
	metrics.Send(err)
	if err != nil {
		logger.Error().Err(err).Msg("deferred reply send failed")
	}

	history := append(statex.CloneHistory(task.History), statex.AssistantMessage(reply))
	if err := store.ReplaceHistory(ctx, task.UserID, history); err != nil {
		logger.Error().Err(err).Msg("deferred history replace failed")
		return
	}
	logger.Info().Msg("deferred reply delivered")
}
