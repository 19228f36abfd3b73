// Package docgen implements document synthesis: turning a conversation
// transcript into a persisted document through a dedicated generation
// stream.
package docgen

// DocType is one entry of the built-in document type catalog. A
// conversation started from a type copies both prompts; the chat prompt
// steers the dialogue and the generate prompt steers synthesis.
type DocType struct {
	ID             int
	Name           string
	Title          string
	Description    string
	ChatPrompt     string
	GeneratePrompt string
}

var docTypes = []DocType{
	{
		ID:          1,
		Name:        "research-outline",
		Title:       "Research Outline",
		Description: "Project research outline covering topics, goals, value proposition, stakeholders, and key questions.",
		ChatPrompt: `As a senior project management expert and business consultant specializing in digital transformation, guide the user through developing a comprehensive research outline.

Focus on these five key areas sequentially:
1. Project theme and problem statement
2. Current enterprise management status
3. Project goals and expected value
4. Target stakeholders and research subjects
5. Key interview questions for effective research

For each topic provide expert analysis, suggest frameworks, and ask probing questions before moving forward. Keep responses under 1000 words. Conclude by informing the user they can now generate a formal research outline document.`,
		GeneratePrompt: `As a project management and documentation expert, create a structured research outline based on the provided dialogue.

Analyze all dialogue content, create a concise table of contents, and generate detailed content with proper hierarchical numbering. Craft a descriptive title (max 48 characters). Summarize the points the user emphasized, exclude irrelevant dialogue content, and keep the total length between 800 and 2000 words.`,
	},
	{
		ID:          2,
		Name:        "case-analysis",
		Title:       "Case Analysis",
		Description: "Comprehensive business case analysis or industry best practice analysis.",
		ChatPrompt: `As a senior business analyst and industry expert, guide the user through developing a comprehensive business case or industry best practice analysis.

Explore the business context, comparable cases, and the lessons that transfer to the user's project. Ask probing questions and suggest analysis frameworks before moving forward.`,
		GeneratePrompt: `As a business analyst, create a structured business case analysis based on the provided dialogue. Organize findings into context, comparable cases, transferable lessons, and recommendations. Craft a descriptive title (max 48 characters).`,
	},
	{
		ID:          3,
		Name:        "research-report",
		Title:       "Research Report",
		Description: "Formal project research report prepared from completed research findings.",
		ChatPrompt: `As a research analyst, help the user review their completed project research findings to prepare a formal research report. Walk through findings, evidence quality, and conclusions one area at a time.`,
		GeneratePrompt: `Create a structured research report based on the dialogue about research findings. Include methodology, findings, analysis, and recommendations with hierarchical numbering. Craft a descriptive title (max 48 characters).`,
	},
	{
		ID:          4,
		Name:        "project-charter",
		Title:       "Project Charter",
		Description: "Project charter containing situation analysis, objectives, value proposition, and high-level planning.",
		ChatPrompt: `As a project management professional, help the user create a comprehensive project charter. Cover the current situation, objectives, value proposition, scope boundaries, and high-level planning.`,
		GeneratePrompt: `Create a comprehensive project charter based on the dialogue content. Include current situation analysis, objectives, value proposition, scope, and a high-level plan. Craft a descriptive title (max 48 characters).`,
	},
}

// DocTypes returns the built-in catalog.
func DocTypes() []DocType {
	out := make([]DocType, len(docTypes))
	copy(out, docTypes)
	return out
}

// GetDocType returns the catalog entry with the given name, or false.
func GetDocType(name string) (DocType, bool) {
	for _, t := range docTypes {
		if t.Name == name {
			return t, true
		}
	}
	return DocType{}, false
}
