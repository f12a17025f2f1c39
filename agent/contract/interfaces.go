package contract

import (
	"context"

	statex "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/state"
)

type Classifier interface {
	Classify(ctx context.Context, text string) Intent
	RequiresDeferral(ctx context.Context, text string) bool
}

type Verifier interface {
	Verify(ctx context.Context, candidateName string, userText string) bool
}

type Assistant interface {
	Invoke(ctx context.Context, history []statex.Message) (string, error)
}

type CatalogIndex interface {
	Search(ctx context.Context, query string, k int) ([]Candidate, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, userID string, productID string) (OrderReceipt, error)
	OrdersForUser(ctx context.Context, userID string) ([]OrderSummary, error)
	ListProducts(ctx context.Context) ([]Product, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, mediaURL string) (string, error)
}

type Messenger interface {
	SendMessage(ctx context.Context, to string, body string) error
}

type Notifier interface {
	NotifySupport(ctx context.Context, userID string, issue string) error
}

type Deferrer interface {
	Defer(ctx context.Context, task DeferredTask) error
}

type TaskRunner interface {
	RunDeferred(ctx context.Context, task DeferredTask) error
	AbandonDeferred(ctx context.Context, task DeferredTask, cause error)
}
