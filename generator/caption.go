package generator

import (
	"context"
	"fmt"
)

// ShortCaptionLimit is the character ceiling of the short-form caption.
const ShortCaptionLimit = 280

const ellipsis = "..."

// ShortCaption asks gen to rewrite caption for a length-constrained platform.
// The result never exceeds ShortCaptionLimit characters, whatever the model
// returns.
func ShortCaption(ctx context.Context, gen TextGenerator, persona Persona, caption string) (string, error) {
	out, err := gen.Generate(ctx, persona.ShortCaptionRole(), persona.ShortCaptionPrompt(caption))
	if err != nil {
		return "", fmt.Errorf("short caption: %w", err)
	}
	return Truncate(out, ShortCaptionLimit), nil
}
