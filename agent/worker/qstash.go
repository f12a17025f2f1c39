package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
	qstashx "github.com/tanpawarit/Chative-WhatsApp-Commerce/pkg/qstash"
)

type publisher interface {
	Publish(ctx context.Context, destination string, body []byte) (qstashx.PublishResult, error)
}

// QStashDeferrer publishes tasks to QStash, which delivers them back to the callback URL.
type QStashDeferrer struct {
	client      publisher
	callbackURL string
}

var _ contractx.Deferrer = (*QStashDeferrer)(nil)

func NewQStashDeferrer(client *qstashx.Client, callbackURL string) (*QStashDeferrer, error) {
	if client == nil {
		return nil, errors.New("qstash client is required")
	}
	callbackURL = strings.TrimSpace(callbackURL)
	if callbackURL == "" {
		return nil, errors.New("deferred callback url is required")
	}
	return &QStashDeferrer{client: client, callbackURL: callbackURL}, nil
}

func (d *QStashDeferrer) Defer(ctx context.Context, task contractx.DeferredTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal deferred task: %w", err)
	}
	res, err := d.client.Publish(ctx, d.callbackURL, body)
	if err != nil {
		return fmt.Errorf("publish deferred task: %w", err)
	}
	log.Info().Str("user_id", task.UserID).Str("task", task.ID).Str("message_id", res.MessageID).Msg("deferred task published")
	return nil
}
