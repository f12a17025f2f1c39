package classifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
	promptx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/prompt"
)

type fakeChatModel struct {
	mu     sync.Mutex
	answer string
	err    error
	inputs [][]*schema.Message
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.answer, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func TestClassifyRequiresExactLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		answer   string
		want     contractx.Intent
		deferred bool
	}{
		{answer: "ORDER", want: contractx.IntentOrder, deferred: true},
		{answer: " SUPPORT\n", want: contractx.IntentSupport, deferred: true},
		{answer: "  support\n", want: contractx.IntentGeneral},
		{answer: `"Search".`, want: contractx.IntentGeneral},
		{answer: "order.", want: contractx.IntentGeneral},
		{answer: "STATUS", want: contractx.IntentStatus},
		{answer: "I think it is an order", want: contractx.IntentGeneral},
		{answer: "", want: contractx.IntentGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			t.Parallel()

			fake := &fakeChatModel{answer: tt.answer}
			c, err := NewIntentClassifier(context.Background(), fake, promptx.LoadPromptSet().Intent)
			if err != nil {
				t.Fatalf("NewIntentClassifier() error = %v", err)
			}
			if got := c.Classify(context.Background(), "hello"); got != tt.want {
				t.Fatalf("Classify() = %s, want %s", got, tt.want)
			}
			if got := c.RequiresDeferral(context.Background(), "hello"); got != tt.deferred {
				t.Fatalf("RequiresDeferral() = %v, want %v", got, tt.deferred)
			}
		})
	}
}

func TestClassifyModelErrorIsGeneral(t *testing.T) {
	t.Parallel()

	fake := &fakeChatModel{err: errors.New("rate limited")}
	c, err := NewIntentClassifier(context.Background(), fake, promptx.LoadPromptSet().Intent)
	if err != nil {
		t.Fatalf("NewIntentClassifier() error = %v", err)
	}
	if got := c.Classify(context.Background(), "buy shoes"); got != contractx.IntentGeneral {
		t.Fatalf("Classify() = %s, want GENERAL", got)
	}
}

func TestClassifyRendersLabelsAndInput(t *testing.T) {
	t.Parallel()

	fake := &fakeChatModel{answer: "SEARCH"}
	c, err := NewIntentClassifier(context.Background(), fake, promptx.LoadPromptSet().Intent)
	if err != nil {
		t.Fatalf("NewIntentClassifier() error = %v", err)
	}
	c.Classify(context.Background(), "show me {curly} hats")

	if len(fake.inputs) != 1 || len(fake.inputs[0]) != 2 {
		t.Fatalf("model inputs = %#v", fake.inputs)
	}
	system, user := fake.inputs[0][0], fake.inputs[0][1]
	if !strings.Contains(system.Content, "SEARCH, ORDER, STATUS, SUPPORT, GENERAL") {
		t.Fatalf("system prompt missing labels: %q", system.Content)
	}
	if user.Content != "show me {curly} hats" {
		t.Fatalf("user content = %q", user.Content)
	}
}

func TestVerifierFailsClosed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		answer string
		err    error
		want   bool
	}{
		{answer: "true", want: true},
		{answer: "TRUE", want: true},
		{answer: " TRUE\n", want: false},
		{answer: "true\n", want: false},
		{answer: "  true", want: false},
		{answer: "True.", want: false},
		{answer: "yes", want: false},
		{answer: "false", want: false},
		{answer: "true, it matches", want: false},
		{err: errors.New("timeout"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			t.Parallel()

			fake := &fakeChatModel{answer: tt.answer, err: tt.err}
			v, err := NewRelevanceVerifier(context.Background(), fake, promptx.LoadPromptSet().Relevance)
			if err != nil {
				t.Fatalf("NewRelevanceVerifier() error = %v", err)
			}
			if got := v.Verify(context.Background(), "Red Shoes", "red shoes please"); got != tt.want {
				t.Fatalf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifierRendersProduct(t *testing.T) {
	t.Parallel()

	fake := &fakeChatModel{answer: "true"}
	v, err := NewRelevanceVerifier(context.Background(), fake, promptx.LoadPromptSet().Relevance)
	if err != nil {
		t.Fatalf("NewRelevanceVerifier() error = %v", err)
	}
	v.Verify(context.Background(), "Red Shoes", "red sneakers")
	if !strings.Contains(fake.inputs[0][0].Content, "Product from catalog: Red Shoes") {
		t.Fatalf("system prompt = %q", fake.inputs[0][0].Content)
	}
}

func TestConstructorsRequirePrompt(t *testing.T) {
	t.Parallel()

	if _, err := NewIntentClassifier(context.Background(), &fakeChatModel{}, " "); !errors.Is(err, contractx.ErrPromptMissing) {
		t.Fatalf("NewIntentClassifier() error = %v", err)
	}
	if _, err := NewRelevanceVerifier(context.Background(), &fakeChatModel{}, ""); !errors.Is(err, contractx.ErrPromptMissing) {
		t.Fatalf("NewRelevanceVerifier() error = %v", err)
	}
}
