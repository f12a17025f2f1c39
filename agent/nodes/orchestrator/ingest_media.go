package orchestratornode

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
	statex "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/state"
)

// IngestMedia records every media URL and transcribes the first audio item. A failed
// transcription sets the apology reply, which routes the graph straight to finalize_reply.
func IngestMedia(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
	transcriber contractx.Transcriber,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	var audio *contractx.Media
	for i, m := range in.Inbound.Media {
		url := strings.TrimSpace(m.URL)
		if url == "" {
			continue
		}
		if err := store.AppendMedia(ctx, in.UserID, url); err != nil {
			return nil, fmt.Errorf("append media: %w", err)
		}
		if audio == nil && m.IsAudio() {
			audio = &in.Inbound.Media[i]
		}
	}

	if audio != nil {
		in.FromAudio = true
		text, err := transcribe(ctx, transcriber, audio.URL)
		if err != nil {
			log.Warn().Err(err).Str("user_id", in.UserID).Msg("voice message transcription failed")
			in.Reply = TranscriptionApology
			in.Path = PathTranscriptionFailed
			return in, nil
		}
		in.Text = text
	}

	if in.Text == "" {
		return nil, ErrInvalidMessage
	}
	return in, nil
}

func transcribe(ctx context.Context, transcriber contractx.Transcriber, url string) (string, error) {
	if transcriber == nil {
		return "", fmt.Errorf("%w: no transcriber configured", contractx.ErrTranscription)
	}
	text, err := transcriber.Transcribe(ctx, url)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty transcript", contractx.ErrTranscription)
	}
	return text, nil
}
