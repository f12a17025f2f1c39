package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	"github.com/tanpawarit/Chative-WhatsApp-Commerce/pkg/metrics"
)

type Name string

const (
	ListProducts        Name = "list_products"
	CreateOrder         Name = "create_order"
	CreateSupportTicket Name = "create_support_ticket"
	LookupOrderStatus   Name = "lookup_order_status"
)

// Names is the fixed order tools are offered to the model in.
var Names = []Name{ListProducts, CreateOrder, LookupOrderStatus, CreateSupportTicket}

// Model-visible sentinel results.
const (
	ProductNotFound      = "product_not_found"
	InvalidProductID     = "Invalid product_id"
	SupportTicketCreated = "Your support ticket has been created."
	SupportTicketFailed  = "support_ticket_failed"
)

type Handler func(ctx context.Context, args map[string]any) (string, error)

// Capability is one row of the tool table.
type Capability struct {
	Info    *schema.ToolInfo
	Handler Handler
	Output  string
}

func queryParams(desc string) *schema.ParamsOneOf {
	return schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
		"query": {Type: schema.String, Desc: desc, Required: true},
	})
}

// Capabilities builds the static tool table bound to ts.
func (ts *Toolset) Capabilities() map[Name]Capability {
	return map[Name]Capability{
		ListProducts: {
			Info: &schema.ToolInfo{
				Name:        string(ListProducts),
				Desc:        "Gives the list of products matching the query. ONLY list product name and price.",
				ParamsOneOf: queryParams("What the user is looking for"),
			},
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				query, err := stringArg(args, "query")
				if err != nil {
					return "", err
				}
				text, _, err := ts.ListProducts(ctx, query)
				return text, err
			},
			Output: "Product names and prices, one per line.",
		},
		CreateOrder: {
			Info: &schema.ToolInfo{
				Name:        string(CreateOrder),
				Desc:        "Creates an order. Input ONLY the product name. Outputs the order_id, status and eta; give the user this information.",
				ParamsOneOf: queryParams("Product name"),
			},
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				query, err := stringArg(args, "query")
				if err != nil {
					return "", err
				}
				return ts.CreateOrder(ctx, query)
			},
			Output: `JSON {"order_id","status","eta"}, or product_not_found, or Invalid product_id.`,
		},
		CreateSupportTicket: {
			Info: &schema.ToolInfo{
				Name:        string(CreateSupportTicket),
				Desc:        "Create a support ticket for a problem, complaint or order cancellation.",
				ParamsOneOf: queryParams("Description of the user's issue"),
			},
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				query, err := stringArg(args, "query")
				if err != nil {
					return "", err
				}
				return ts.CreateSupportTicket(ctx, query)
			},
			Output: "A confirmation sentence, or support_ticket_failed.",
		},
		LookupOrderStatus: {
			Info: &schema.ToolInfo{
				Name: string(LookupOrderStatus),
				Desc: "Returns the user's orders. Give the user the order id, product name, eta, created at and status.",
			},
			Handler: func(ctx context.Context, _ map[string]any) (string, error) {
				return ts.LookupOrderStatus(ctx)
			},
			Output: "JSON array of orders with current product name and price.",
		},
	}
}

// EinoTools adapts the table to the agent runtime, in Names order.
func (ts *Toolset) EinoTools() []einotool.BaseTool {
	caps := ts.Capabilities()
	out := make([]einotool.BaseTool, 0, len(Names))
	for _, name := range Names {
		out = append(out, &invokable{name: name, cap: caps[name]})
	}
	return out
}

type invokable struct {
	name Name
	cap  Capability
}

var _ einotool.InvokableTool = (*invokable)(nil)

func (t *invokable) Info(context.Context) (*schema.ToolInfo, error) {
	return t.cap.Info, nil
}

// InvokableRun never fails the agent run: handler errors are logged and handed back to
// the model as {"error": "..."} so it can explain the failure to the user.
func (t *invokable) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...einotool.Option) (string, error) {
	args := map[string]any{}
	if raw := strings.TrimSpace(argumentsInJSON); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			metrics.Tool(string(t.name), "bad_arguments")
			return errorResult(fmt.Errorf("invalid arguments: %w", err)), nil
		}
	}

	userID, _ := IdentityFrom(ctx)
	out, err := t.cap.Handler(ctx, args)
	if err != nil {
		log.Error().Err(err).Str("tool", string(t.name)).Str("user_id", userID).Msg("tool failed")
		metrics.Tool(string(t.name), "error")
		return errorResult(err), nil
	}

	log.Debug().Str("tool", string(t.name)).Str("user_id", userID).Msg("tool succeeded")
	metrics.Tool(string(t.name), "ok")
	return out, nil
}

func errorResult(err error) string {
	raw, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(raw)
}

func stringArg(args map[string]any, key string) (string, error) {
	raw, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%s is required", key)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}
