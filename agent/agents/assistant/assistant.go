package assistant

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
	statex "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/state"
)

const DefaultMaxStep = 12

// Agent runs the tool-calling loop over a conversation history.
type Agent struct {
	react *react.Agent
}

var _ contractx.Assistant = (*Agent)(nil)

func New(ctx context.Context, chatModel einomodel.ToolCallingChatModel, tools []einotool.BaseTool, maxStep int) (*Agent, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("%w: assistant model is required", contractx.ErrValidation)
	}
	if maxStep <= 0 {
		maxStep = DefaultMaxStep
	}

	agent, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: chatModel,
		ToolsConfig:      compose.ToolsNodeConfig{Tools: tools},
		MaxStep:          maxStep,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: build assistant agent: %v", contractx.ErrModelInvoke, err)
	}
	return &Agent{react: agent}, nil
}

// Invoke returns the final assistant text. history is not modified.
func (a *Agent) Invoke(ctx context.Context, history []statex.Message) (string, error) {
	if len(history) == 0 {
		return "", fmt.Errorf("%w: history is empty", contractx.ErrValidation)
	}

	out, err := a.react.Generate(ctx, toSchemaMessages(history))
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	answer := strings.TrimSpace(out.Content)
	if answer == "" {
		return "", fmt.Errorf("%w: empty assistant answer", contractx.ErrSchemaViolation)
	}
	return answer, nil
}

func toSchemaMessages(history []statex.Message) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case statex.RoleSystem:
			msgs = append(msgs, schema.SystemMessage(m.Content))
		case statex.RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
		default:
			msgs = append(msgs, schema.UserMessage(m.Content))
		}
	}
	return msgs
}
