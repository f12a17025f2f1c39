package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
)

// Classify decides the dispatch path. Voice notes always go deferred.
func Classify(ctx context.Context, in *GraphState, classifier contractx.Classifier) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	in.Intent = classifier.Classify(ctx, in.Text)
	in.Defer = in.Intent.IsSlow() || in.FromAudio
	return in, nil
}
