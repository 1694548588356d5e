package reply

import (
	"github.com/BTreeMap/LeadRelay/internal/models"
)

// BuildHistory assembles the completion history for a lead. The tenant
// system prompt comes first, then the rendered initial prompt as the
// assistant's opening message, then the persisted turns in order. Virtual
// turns carry ID 0 and are never written back to the store. The initial
// prompt is skipped when an identical assistant turn was already persisted.
func BuildHistory(turns []models.Turn, system, initial *models.PromptTemplate, firstName string) []models.Turn {
	out := make([]models.Turn, 0, len(turns)+2)
	if system != nil && system.Template != "" {
		out = append(out, models.Turn{Role: models.RoleSystem, Content: system.Render(firstName)})
	}
	if initial != nil && initial.Template != "" {
		opening := initial.Render(firstName)
		if !hasAssistantTurn(turns, opening) {
			out = append(out, models.Turn{Role: models.RoleAssistant, Content: opening})
		}
	}
	return append(out, turns...)
}

func hasAssistantTurn(turns []models.Turn, content string) bool {
	for _, t := range turns {
		if t.Role == models.RoleAssistant && t.Content == content {
			return true
		}
	}
	return false
}
