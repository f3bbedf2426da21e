package generator

import "context"

// TextGenerator turns a system role and a user prompt into plain text.
type TextGenerator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Persona carries the brand voice used to build prompts.
type Persona struct {
	Brand  string
	Mascot string
	// Lore is optional background appended to the persona role.
	Lore string
	// NeutralAltText switches alt text to a literal describer role.
	NeutralAltText bool
}
