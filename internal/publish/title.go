package publish

import (
	"path/filepath"
	"strings"
	"unicode"
)

// DeriveTitle picks a human-readable title for a record: the first transcript
// sentence when it is a reasonable length, otherwise a cleaned-up file name.
func DeriveTitle(fileName, transcript string) string {
	if s := firstSentence(transcript); len(s) >= 10 && len(s) <= 50 {
		return s
	}
	return titleFromFileName(fileName)
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, ".!?"); i > 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

// titleFromFileName turns "morning_notes-draft.m4a" into "Morning Notes Draft".
func titleFromFileName(fileName string) string {
	name := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)

	words := strings.Fields(name)
	for i, w := range words {
		r := []rune(w)
		if unicode.IsLetter(r[0]) {
			r[0] = unicode.ToUpper(r[0])
			words[i] = string(r)
		}
	}
	if len(words) == 0 {
		return "Untitled"
	}
	return strings.Join(words, " ")
}
