package contract

import (
	"strings"
	"time"

	statex "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/state"
)

type AgentType string

const (
	AgentTypeAssistant  AgentType = "assistant"
	AgentTypeClassifier AgentType = "classifier"
	AgentTypeVerifier   AgentType = "verifier"
)

type Intent string

const (
	IntentSearch  Intent = "SEARCH"
	IntentOrder   Intent = "ORDER"
	IntentStatus  Intent = "STATUS"
	IntentSupport Intent = "SUPPORT"
	IntentGeneral Intent = "GENERAL"
)

// Intents is the closed label set the classifier may answer with.
var Intents = []Intent{IntentSearch, IntentOrder, IntentStatus, IntentSupport, IntentGeneral}

// IsSlow reports whether the intent is expected to need tool-heavy handling.
func (i Intent) IsSlow() bool {
	return i == IntentOrder || i == IntentSupport
}

type Media struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

func (m Media) IsAudio() bool {
	return strings.HasPrefix(strings.TrimSpace(m.ContentType), "audio")
}

// InboundMessage is the channel-neutral view of one webhook delivery.
type InboundMessage struct {
	UserID      string  `json:"user_id"`
	From        string  `json:"from"`
	Phone       string  `json:"phone"`
	ProfileName string  `json:"profile_name"`
	Body        string  `json:"body"`
	Media       []Media `json:"media,omitempty"`
}

type Product struct {
	ID    string  `json:"product_id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type Candidate struct {
	ID    string  `json:"product_id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Score float32 `json:"score"`
}

type OrderStatus string

const OrderProcessing OrderStatus = "processing"

type OrderReceipt struct {
	OrderID string      `json:"order_id"`
	Status  OrderStatus `json:"status"`
	ETA     string      `json:"eta"`
}

type OrderSummary struct {
	OrderID   string      `json:"order_id"`
	UserID    string      `json:"user_id"`
	ProductID string      `json:"product_id"`
	Name      string      `json:"name"`
	Price     float64     `json:"price"`
	Status    OrderStatus `json:"status"`
	ETA       string      `json:"eta"`
	CreatedAt time.Time   `json:"created_at"`
}

// DeferredTask carries everything the slow path needs once the webhook response is gone.
type DeferredTask struct {
	ID          string           `json:"id"`
	UserID      string           `json:"user_id"`
	Destination string           `json:"destination"`
	History     []statex.Message `json:"history"`
	FromAudio   bool             `json:"from_audio,omitempty"`
	EnqueuedAt  time.Time        `json:"enqueued_at"`
}
