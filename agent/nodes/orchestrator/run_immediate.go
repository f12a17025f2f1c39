package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
	statex "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/state"
	toolx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/tool"
)

// RunImmediate answers within the request and persists the user and assistant turns.
// Nothing is written when the agent fails: the user turn is stored only together with
// the answer it produced.
func RunImmediate(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
	assistant contractx.Assistant,
) (*GraphState, error) {
	if in == nil || len(in.History) == 0 {
		return nil, fmt.Errorf("%w: working history is empty", contractx.ErrValidation)
	}

	answer, err := assistant.Invoke(toolx.WithIdentity(ctx, in.UserID), statex.CloneHistory(in.History))
	if err != nil {
		return nil, err
	}

	if err := persistImmediate(ctx, store, in, answer); err != nil {
		return nil, err
	}

	in.Reply = answer
	in.Path = PathImmediate
	return in, nil
}

// persistImmediate appends atomically when the stored history already has its system
// message. A first exchange has to write the seeded list, which only a replace can do.
func persistImmediate(ctx context.Context, store statex.Store, in *GraphState, answer string) error {
	assistantMsg := statex.AssistantMessage(answer)

	if in.StoredHistory == 0 {
		full := append(statex.CloneHistory(in.History), assistantMsg)
		if err := store.ReplaceHistory(ctx, in.UserID, full); err != nil {
			return fmt.Errorf("persist first exchange: %w", err)
		}
		return nil
	}

	userMsg := in.History[len(in.History)-1]
	if err := store.AppendHistory(ctx, in.UserID, userMsg); err != nil {
		return fmt.Errorf("persist user turn: %w", err)
	}
	if err := store.AppendHistory(ctx, in.UserID, assistantMsg); err != nil {
		return fmt.Errorf("persist assistant turn: %w", err)
	}
	return nil
}
