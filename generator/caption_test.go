package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedText struct {
	out     string
	err     error
	systems []string
	users   []string
}

func (f *fixedText) Generate(_ context.Context, system, user string) (string, error) {
	f.systems = append(f.systems, system)
	f.users = append(f.users, user)
	return f.out, f.err
}

var testPersona = Persona{Brand: "The Poof Palace", Mascot: "Lil Poof"}

func TestShortCaption_LengthGuarantee(t *testing.T) {
	for _, n := range []int{0, 1, 100, 277, 279, 280, 281, 310, 1000} {
		gen := &fixedText{out: strings.Repeat("x", n)}
		got, err := ShortCaption(context.Background(), gen, testPersona, "long caption")
		require.NoError(t, err)

		length := utf8.RuneCountInString(got)
		assert.LessOrEqual(t, length, ShortCaptionLimit, "n=%d", n)
		if n > ShortCaptionLimit {
			assert.Equal(t, ShortCaptionLimit, length)
			assert.True(t, strings.HasSuffix(got, "..."))
		} else {
			assert.Equal(t, n, length)
		}
	}
}

func TestShortCaption_UsesRewritePrompt(t *testing.T) {
	gen := &fixedText{out: "Bow, peasants."}
	_, err := ShortCaption(context.Background(), gen, testPersona, "By royal decree, belly rubs!")
	require.NoError(t, err)

	require.Len(t, gen.users, 1)
	assert.Contains(t, gen.users[0], "'By royal decree, belly rubs!'")
	assert.Contains(t, gen.users[0], "under 280 characters")
	assert.Equal(t, "You are Lil Poof, the cat queen. Create witty, royal Twitter posts.", gen.systems[0])
}

func TestShortCaption_PropagatesError(t *testing.T) {
	gen := &fixedText{err: ErrGeneration}
	_, err := ShortCaption(context.Background(), gen, testPersona, "x")
	assert.True(t, errors.Is(err, ErrGeneration))
}

func TestPersonaRoles(t *testing.T) {
	p := testPersona
	assert.Equal(t, "You are a creative director for The Poof Palace brand.", p.IdeaRole())
	assert.Equal(t, p.CaptionRole(), p.AltTextRole())
	assert.Contains(t, p.IdeaPrompt(), "illustration of Lil Poof")
	assert.Contains(t, p.CaptionPrompt("a nap"), "depicting: 'a nap'")

	p.Lore = "Lil Poof fears the Glimmering Red Dot."
	assert.Contains(t, p.CaptionRole(), "Glimmering Red Dot")

	p.NeutralAltText = true
	assert.NotEqual(t, p.CaptionRole(), p.AltTextRole())
	assert.NotContains(t, p.AltTextRole(), "cat queen")
}
