package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/philippgille/chromem-go"
)

const defaultLanguage = "en"

type Config struct {
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true"`
	EmbeddingModel     string        `envconfig:"EMBEDDING_MODEL" split_words:"true" default:"text-embedding-3-small"`
	TranscriptionModel string        `envconfig:"TRANSCRIPTION_MODEL" split_words:"true" default:"whisper-1"`
	Language           string        `envconfig:"LANGUAGE" split_words:"true" default:"en"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
	MaxRetries         int           `envconfig:"MAX_RETRIES" split_words:"true" default:"2"`
}

// Client wraps the OpenAI SDK for the two non-chat calls the assistant needs.
type Client struct {
	api                openai.Client
	embeddingModel     string
	transcriptionModel string
	language           string
}

func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errors.New("openai api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(max(cfg.MaxRetries, 0)),
	}
	if trimmed := strings.TrimSpace(cfg.BaseURL); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	c := &Client{
		api:                openai.NewClient(opts...),
		embeddingModel:     strings.TrimSpace(cfg.EmbeddingModel),
		transcriptionModel: strings.TrimSpace(cfg.TranscriptionModel),
		language:           strings.TrimSpace(cfg.Language),
	}
	if c.embeddingModel == "" {
		c.embeddingModel = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	if c.transcriptionModel == "" {
		c.transcriptionModel = string(openai.AudioModelWhisper1)
	}
	if c.language == "" {
		c.language = defaultLanguage
	}
	return c, nil
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("create embedding: empty response")
	}

	out := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		out[i] = float32(v)
	}
	return out, nil
}

// EmbeddingFunc adapts Embed to the catalog collection.
func (c *Client) EmbeddingFunc() chromem.EmbeddingFunc {
	return c.Embed
}

// TranscribeAudio sends raw audio to the speech-to-text model.
func (c *Client) TranscribeAudio(ctx context.Context, audio []byte, contentType string) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), audioFilename(contentType), contentType),
		Model: openai.AudioModel(c.transcriptionModel),
	}
	if c.language != "" {
		params.Language = openai.String(c.language)
	}

	resp, err := c.api.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func audioFilename(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "audio.ogg"
	}
	switch mediaType {
	case "audio/mpeg", "audio/mp3":
		return "audio.mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "audio.m4a"
	case "audio/wav", "audio/x-wav":
		return "audio.wav"
	case "audio/webm":
		return "audio.webm"
	case "audio/amr":
		return "audio.amr"
	default:
		return "audio.ogg"
	}
}
