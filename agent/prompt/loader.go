package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/Chative-WhatsApp-Commerce/agent/contract"
)

var (
	//go:embed template/system.txt
	systemRaw string

	//go:embed template/intent.txt
	intentRaw string

	//go:embed template/relevance.txt
	relevanceRaw string
)

// PromptSet holds loaded prompt content.
// Intent and Relevance are FString templates: {labels}, {product} and {input} are filled per call.
type PromptSet struct {
	System    string
	Intent    string
	Relevance string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		System:    strings.TrimSpace(systemRaw),
		Intent:    strings.TrimSpace(intentRaw),
		Relevance: strings.TrimSpace(relevanceRaw),
	}
}

func (p PromptSet) Validate() error {
	for name, v := range map[string]string{"system": p.System, "intent": p.Intent, "relevance": p.Relevance} {
		if v == "" {
			return fmt.Errorf("%w: %s", contractx.ErrPromptMissing, name)
		}
	}
	return nil
}
