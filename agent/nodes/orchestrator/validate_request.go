package orchestratornode

import (
	"errors"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
	statex "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidUser    = errors.New("user id is empty")
)

const (
	FallbackReply        = "Sorry, something went wrong while handling your message. Please try again."
	ProvisionalReply     = "Processing your request..."
	TranscriptionApology = "Sorry, I couldn't transcribe your voice message. Please try again or send text."
)

type Path string

const (
	PathImmediate           Path = "immediate"
	PathDeferred            Path = "deferred"
	PathTranscriptionFailed Path = "transcription_failed"
	PathFallback            Path = "fallback"
)

type GraphInput struct {
	Message contractx.InboundMessage
}

type GraphOutput struct {
	Reply  string
	Path   Path
	Intent contractx.Intent
}

type GraphState struct {
	Inbound contractx.InboundMessage
	UserID  string
	Now     time.Time

	User      *statex.User
	Text      string
	FromAudio bool

	// History is the working copy: stored history (seeded when empty) plus this turn's user message.
	History       []statex.Message
	StoredHistory int

	Intent contractx.Intent
	Defer  bool

	Reply string
	Path  Path
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	userID := strings.TrimSpace(in.Message.UserID)
	if userID == "" {
		return nil, ErrInvalidUser
	}
	if strings.TrimSpace(in.Message.Body) == "" && len(in.Message.Media) == 0 {
		return nil, ErrInvalidMessage
	}

	return &GraphState{
		Inbound: in.Message,
		UserID:  userID,
		Text:    strings.TrimSpace(in.Message.Body),
		Now:     nowFn().UTC(),
	}, nil
}
