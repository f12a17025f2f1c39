package orchestratornode

import (
	"fmt"

	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
	statex "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/state"
)

// AppendHistory builds the working history for this turn. Nothing is persisted here.
func AppendHistory(in *GraphState, systemPrompt string) (*GraphState, error) {
	if in == nil || in.User == nil {
		return nil, fmt.Errorf("%w: graph user is nil", contractx.ErrValidation)
	}

	in.StoredHistory = len(in.User.History)
	history := statex.SeedHistory(in.User.History, systemPrompt)
	in.History = append(history, statex.UserMessage(in.Text))
	return in, nil
}
