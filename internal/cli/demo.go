package cli

import (
	"mystery-hunt-client/internal/domain"
	"mystery-hunt-client/internal/infra/memory"
)

// demoCatalog provides a small mystery for running without a backend.
func demoCatalog() *memory.Catalog {
	catalog := memory.NewCatalog()
	catalog.AddMystery("1",
		domain.Level{
			ID:         "level-1",
			Name:       "The Harbour",
			Quest:      "Find the keeper of the light.",
			IsUnlocked: true,
			Questions: []domain.Question{
				{ID: "1", LevelID: "level-1", Prompt: "What guides ships home at night?", Type: "text"},
				{ID: "2", LevelID: "level-1", Prompt: "Solve the tide puzzle.", Type: "puzzle"},
			},
			Present: &domain.Present{ID: "1", LevelID: "level-1", Type: domain.PresentText, Title: "A brass key", Content: "It opens something on the cliffs."},
		},
		domain.Level{
			ID:    "level-2",
			Name:  "The Cliffs",
			Quest: "Follow the gulls.",
			Questions: []domain.Question{
				{ID: "3", LevelID: "level-2", Prompt: "Ask the keeper for a hint, then name the bird.", Type: "match-mail"},
				{ID: "4", LevelID: "level-2", Prompt: "Describe what the key opened.", Type: "text-review"},
			},
		},
	)
	catalog.SetAnswer("1", "lighthouse")
	catalog.SetAnswer("3", "gull")
	catalog.SetHint("3", "Hint sent to your email.")
	catalog.SetPin(2, "0000")
	return catalog
}
