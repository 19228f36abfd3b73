// Package router owns model routing: which OpenAI-compatible endpoint
// serves chat traffic and which of its models is active.
package router

// Model describes one selectable model of a router.
type Model struct {
	ID          string
	Name        string
	Description string
}

// Router describes one OpenAI-compatible endpoint and its model catalog.
// Models are in canonical order; fallback selection walks this order.
type Router struct {
	ID             string
	Name           string
	Description    string
	DefaultBaseURL string
	Models         []Model
}

// DefaultRouterID is the selection used before any setting is written.
const DefaultRouterID = "router-a"

var registry = []Router{
	{
		ID:             "router-a",
		Name:           "OpenRouter",
		Description:    "Default router using the OpenAI SDK against OpenRouter",
		DefaultBaseURL: "https://openrouter.ai/api/v1",
		Models: []Model{
			{ID: "deepseek/deepseek-r1:free", Name: "DeepSeek R1", Description: "Open-source reasoning model with open reasoning tokens"},
			{ID: "openai/gpt-4o-mini", Name: "GPT-4o-mini", Description: "Small, fast general model"},
			{ID: "openai/gpt-4o-2024-11-20", Name: "GPT-4o", Description: "Stronger creative writing and file understanding"},
			{ID: "anthropic/claude-3.5-sonnet", Name: "Claude 3.5 Sonnet", Description: "Strong at coding, data work, and agentic tasks"},
		},
	},
	{
		ID:             "router-b",
		Name:           "Wildcard",
		Description:    "Alternative router using custom API endpoints",
		DefaultBaseURL: "https://api.wildcard.example.com/v1",
		Models: []Model{
			{ID: "deepseek-r1", Name: "DeepSeek R1", Description: "Code analysis and technical documentation"},
			{ID: "gpt-4o", Name: "GPT-4o", Description: "Natural language and complex reasoning"},
			{ID: "o3-mini", Name: "O3 Mini", Description: "Fast and efficient for quick responses"},
			{ID: "claude-3-5-sonnet-20241022", Name: "Claude 3.5 Sonnet", Description: "Balanced analysis, writing, and coding"},
		},
	},
}

// Routers returns the built-in router catalog.
func Routers() []Router {
	out := make([]Router, len(registry))
	copy(out, registry)
	return out
}

// GetRouter returns the router with the given id, or false.
func GetRouter(id string) (Router, bool) {
	for _, r := range registry {
		if r.ID == id {
			return r, true
		}
	}
	return Router{}, false
}
