package orchestratornode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
	statex "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/state"
)

func LoadOrCreateUser(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
	locale string,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	user, err := loadOrCreateUser(ctx, store, in.Inbound, in.UserID, locale)
	if err != nil {
		return nil, err
	}
	in.User = user
	return in, nil
}

func loadOrCreateUser(
	ctx context.Context,
	store statex.Store,
	msg contractx.InboundMessage,
	userID string,
	locale string,
) (*statex.User, error) {
	user, err := store.Get(ctx, userID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, statex.ErrUserNotFound) {
		return nil, fmt.Errorf("load user: %w", err)
	}

	phone := msg.Phone
	if phone == "" {
		phone = strings.TrimPrefix(msg.From, "whatsapp:")
	}
	user, err = store.Create(ctx, userID, phone, msg.ProfileName, locale)
	if errors.Is(err, statex.ErrUserExists) {
		// Another delivery for the same sender created it first.
		return store.Get(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	log.Info().Str("user_id", userID).Msg("user created on first contact")
	return user, nil
}
