package openai

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
)

// MediaFetcher downloads inbound media. The messaging transport implements it.
type MediaFetcher interface {
	FetchMedia(ctx context.Context, mediaURL string) ([]byte, string, error)
}

type audioTranscriber interface {
	TranscribeAudio(ctx context.Context, audio []byte, contentType string) (string, error)
}

// Transcriber turns a voice note URL into text.
type Transcriber struct {
	fetcher MediaFetcher
	stt     audioTranscriber
}

var _ contractx.Transcriber = (*Transcriber)(nil)

func NewTranscriber(fetcher MediaFetcher, client *Client) *Transcriber {
	return &Transcriber{fetcher: fetcher, stt: client}
}

// Transcribe returns contract.ErrTranscription when the audio cannot be turned into non-empty text.
func (t *Transcriber) Transcribe(ctx context.Context, mediaURL string) (string, error) {
	audio, contentType, err := t.fetcher.FetchMedia(ctx, mediaURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrTranscription, err)
	}
	if contentType == "" {
		contentType = "audio/ogg"
	}

	text, err := t.stt.TranscribeAudio(ctx, audio, contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrTranscription, err)
	}
	if text == "" {
		return "", fmt.Errorf("%w: empty transcript", contractx.ErrTranscription)
	}
	return text, nil
}
