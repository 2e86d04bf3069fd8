package recognizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanLine_Defaults(t *testing.T) {
	in := "\uFEFF  Hello\tWorld\u200B!  "
	assert.Equal(t, "Hello World!", CleanLine(in, DefaultCleanOptions()))
}

func TestCleanLine_LanguageReplacements(t *testing.T) {
	in := "\u201CQuoted\u201D and \u2013 dash \u2014 and nbsp\u00A0here"
	opts := DefaultCleanOptions()
	opts.Language = "en"
	assert.Equal(t, `"Quoted" and - dash - and nbsp here`, CleanLine(in, opts))
}

func TestCleanLine_ReplaceMapOverridesLanguage(t *testing.T) {
	opts := DefaultCleanOptions()
	opts.Language = "de"
	opts.ReplaceMap = map[string]string{"rn": "m", "r": "R"}
	assert.Equal(t, "moR", CleanLine("rnor", opts))
}

func TestCleanLine_Normalization(t *testing.T) {
	decomposed := "e\u0301"
	assert.Equal(t, "\u00E9", CleanLine(decomposed, DefaultCleanOptions()))
	assert.Equal(t, decomposed, CleanLine(decomposed, CleanOptions{NormalizeForm: "none"}))
	assert.Equal(t, "fi", CleanLine("\uFB01", CleanOptions{NormalizeForm: "NFKC"}))
}

func TestCleanText_KeepsLines(t *testing.T) {
	in := "first   line\n\n\t\nsecond\x07 line \n"
	assert.Equal(t, "first line\nsecond line", CleanText(in, DefaultCleanOptions()))
	assert.Empty(t, CleanText("", DefaultCleanOptions()))
}
