package generator

import (
	"fmt"
	"strings"
)

// Prompt 表示发送给 LLM 的一次 system/user 请求。
type Prompt struct {
	System string
	User   string
}

const neutralAltTextRole = "You write concise, literal image descriptions for screen reader users. Describe only what is visible, without puns or character voice."

// IdeaRole is the creative-director system role used for ideation.
func (p Persona) IdeaRole() string {
	return fmt.Sprintf("You are a creative director for %s brand.", p.Brand)
}

// IdeaPrompt asks for a one-sentence illustration idea.
func (p Persona) IdeaPrompt() string {
	return fmt.Sprintf("Give me a simple, one-sentence idea for an illustration of %s. "+
		"Focus on a classic cat behavior like napping, playing, or being mischievous.", p.Mascot)
}

// CaptionRole is the persona system role. Lore, when present, is appended.
func (p Persona) CaptionRole() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("You are %s, the cat queen of %s. You are witty, regal, and slightly dramatic.", p.Mascot, p.Brand))
	if lore := strings.TrimSpace(p.Lore); lore != "" {
		sb.WriteString("\n\nBackground lore you must stay consistent with:\n")
		sb.WriteString(lore)
	}
	return sb.String()
}

// CaptionPrompt asks for the long-form caption.
func (p Persona) CaptionPrompt(idea string) string {
	return fmt.Sprintf("Write a witty, regal caption from the perspective of %s for an image depicting: '%s'. "+
		"Include 3-5 relevant hashtags.", p.Mascot, idea)
}

// AltTextRole is the persona role unless NeutralAltText is set.
func (p Persona) AltTextRole() string {
	if p.NeutralAltText {
		return neutralAltTextRole
	}
	return p.CaptionRole()
}

// AltTextPrompt asks for accessibility alt text.
func (p Persona) AltTextPrompt(idea string) string {
	return fmt.Sprintf("Write a descriptive alt text for an image of: '%s' in a whimsical storybook style.", idea)
}

// ShortCaptionRole is the persona role for length-constrained platforms.
func (p Persona) ShortCaptionRole() string {
	return fmt.Sprintf("You are %s, the cat queen. Create witty, royal Twitter posts.", p.Mascot)
}

// ShortCaptionPrompt asks to rewrite caption under the platform limit.
func (p Persona) ShortCaptionPrompt(caption string) string {
	return fmt.Sprintf("Create a Twitter version of this Instagram caption (under %d characters, keep the royal personality): '%s'",
		ShortCaptionLimit, caption)
}
