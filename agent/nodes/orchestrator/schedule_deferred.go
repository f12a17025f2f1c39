package orchestratornode

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
	statex "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/state"
)

// ScheduleDeferred hands the turn to background execution and replies with the provisional
// text, which is never persisted. If the task cannot be queued the turn runs inline instead.
func ScheduleDeferred(
	ctx context.Context,
	in *GraphState,
	deferrer contractx.Deferrer,
	store statex.Store,
	assistant contractx.Assistant,
) (*GraphState, error) {
	if in == nil || len(in.History) == 0 {
		return nil, fmt.Errorf("%w: working history is empty", contractx.ErrValidation)
	}

	task := contractx.DeferredTask{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		Destination: in.Inbound.From,
		History:     statex.CloneHistory(in.History),
		FromAudio:   in.FromAudio,
		EnqueuedAt:  in.Now,
	}

	if deferrer != nil {
		err := deferrer.Defer(ctx, task)
		if err == nil {
			in.Reply = ProvisionalReply
			in.Path = PathDeferred
			return in, nil
		}
		log.Warn().Err(err).Str("user_id", in.UserID).Str("task", task.ID).Msg("deferral rejected, answering inline")
	}

	return RunImmediate(ctx, in, store, assistant)
}
