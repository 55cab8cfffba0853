package reasoning

import (
	"context"
	"strings"
)

// RuleGenerator is the offline fallback generator: deterministic template
// narration derived from the prompt's scene inventory, no model involved.
// It keeps the reasoning path functional on devices without a language
// model installed.
type RuleGenerator struct{}

// NewRuleGenerator returns the template-based generator.
func NewRuleGenerator() *RuleGenerator { return &RuleGenerator{} }

// Generate renders the prompt's object inventory as a short sentence.
func (RuleGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	_, inventory, found := strings.Cut(prompt, "Visible objects:")
	if !found {
		return prompt, nil
	}
	inventory = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(inventory), ";"))
	if inventory == "none." || inventory == "" {
		return "Nothing notable around you.", nil
	}

	items := strings.Split(inventory, ";")
	for i := range items {
		items[i] = strings.TrimSpace(items[i])
	}
	return "Around you: " + strings.Join(items, ", ") + ".", nil
}
