package prompt

import (
	"strings"
	"testing"
)

func TestLoadPromptSet(t *testing.T) {
	t.Parallel()

	p := LoadPromptSet()
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !strings.Contains(p.Intent, "{labels}") {
		t.Fatal("intent prompt must carry the {labels} placeholder")
	}
	if !strings.Contains(p.Relevance, "{product}") {
		t.Fatal("relevance prompt must carry the {product} placeholder")
	}
	if strings.ContainsAny(p.System, "{}") {
		t.Fatal("system prompt is stored verbatim in history and must not contain template braces")
	}
	for _, tool := range []string{"list_products", "create_order", "lookup_order_status", "create_support_ticket"} {
		if !strings.Contains(p.System, tool) {
			t.Fatalf("system prompt does not mention %s", tool)
		}
	}
}

func TestValidateMissing(t *testing.T) {
	t.Parallel()

	if err := (PromptSet{System: "s", Intent: "i"}).Validate(); err == nil {
		t.Fatal("expected error for missing relevance prompt")
	}
}
