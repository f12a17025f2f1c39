package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
	nodex "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/nodes/orchestrator"
	statex "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/state"
	"github.com/tanpawarit/Chative-WhatsApp-Commerce/pkg/metrics"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidUser    = nodex.ErrInvalidUser
)

const (
	FallbackReply        = nodex.FallbackReply
	ProvisionalReply     = nodex.ProvisionalReply
	TranscriptionApology = nodex.TranscriptionApology
)

type Config struct {
	SystemPrompt string
	Locale       string
}

type Dependencies struct {
	Store       statex.Store
	Classifier  contractx.Classifier
	Assistant   contractx.Assistant
	Transcriber contractx.Transcriber
	Messenger   contractx.Messenger
	Deferrer    contractx.Deferrer
}

// Orchestrator is the dispatch controller: it runs the per-message graph and executes
// deferred tasks handed back by the worker.
type Orchestrator struct {
	store       statex.Store
	classifier  contractx.Classifier
	assistant   contractx.Assistant
	transcriber contractx.Transcriber
	messenger   contractx.Messenger
	deferrer    contractx.Deferrer

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	systemPrompt string
	locale       string

	now func() time.Time
}

var _ contractx.TaskRunner = (*Orchestrator)(nil)

func New(deps Dependencies, cfg Config) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("conversation store is required")
	}
	if deps.Classifier == nil {
		return nil, errors.New("intent classifier is required")
	}
	if deps.Assistant == nil {
		return nil, errors.New("assistant is required")
	}
	if deps.Messenger == nil {
		return nil, errors.New("messenger is required")
	}

	systemPrompt := strings.TrimSpace(cfg.SystemPrompt)
	if systemPrompt == "" {
		return nil, contractx.ErrPromptMissing
	}
	locale := strings.TrimSpace(cfg.Locale)
	if locale == "" {
		locale = "en"
	}

	o := &Orchestrator{
		store:        deps.Store,
		classifier:   deps.Classifier,
		assistant:    deps.Assistant,
		transcriber:  deps.Transcriber,
		messenger:    deps.Messenger,
		deferrer:     deps.Deferrer,
		systemPrompt: systemPrompt,
		locale:       locale,
		now:          time.Now,
	}

	graphRunner, err := o.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

func (o *Orchestrator) HandleMessage(ctx context.Context, msg contractx.InboundMessage) (nodex.GraphOutput, error) {
	return o.graphRunner.Invoke(ctx, nodex.GraphInput{Message: msg})
}

// Respond always yields a reply for the webhook. Graph errors turn into the fallback text.
func (o *Orchestrator) Respond(ctx context.Context, msg contractx.InboundMessage) string {
	out, err := o.HandleMessage(ctx, msg)
	if err != nil {
		log.Error().Err(err).Str("user_id", msg.UserID).Msg("handle message failed")
		metrics.Dispatch(string(nodex.PathFallback))
		return FallbackReply
	}

	log.Info().
		Str("user_id", msg.UserID).
		Str("path", string(out.Path)).
		Str("intent", string(out.Intent)).
		Msg("message handled")
	metrics.Dispatch(string(out.Path))
	return out.Reply
}

func (o *Orchestrator) RunDeferred(ctx context.Context, task contractx.DeferredTask) error {
	return nodex.RunDeferredTask(ctx, task, o.store, o.assistant, o.messenger)
}

// AbandonDeferred gives up on a task: the user gets the fallback text, and it is recorded
// as the assistant turn.
func (o *Orchestrator) AbandonDeferred(ctx context.Context, task contractx.DeferredTask, cause error) {
	log.Error().Err(cause).Str("user_id", task.UserID).Str("task", task.ID).Msg("deferred task abandoned")
	nodex.DeliverDeferred(ctx, task, FallbackReply, o.store, o.messenger)
}
