package spotify

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// artistSeparator splits multi-artist credits such as "A・B".
const artistSeparator = "・"

// bracketPattern matches one innermost bracketed annotation in half-width or
// full-width form, e.g. "(CV. Name)", "（feat. X）", "[Live]", "［...］", "【...】".
var bracketPattern = regexp.MustCompile(`\s*(?:[(（][^()（）]*[)）]|[\[［][^\[\]［］]*[\]］]|【[^【】]*】)`)

// stripBrackets removes bracketed annotations, innermost first, until none remain.
func stripBrackets(s string) string {
	for {
		next := bracketPattern.ReplaceAllString(s, "")
		if next == s {
			return strings.Join(strings.Fields(s), " ")
		}
		s = next
	}
}

// CleanTitle strips bracketed qualifiers from a song title.
// If nothing is left, the trimmed input is returned.
func CleanTitle(title string) string {
	if cleaned := stripBrackets(title); cleaned != "" {
		return cleaned
	}
	return strings.TrimSpace(title)
}

// CleanArtist strips voice-actor and other bracketed annotations from an
// artist credit and keeps only the first artist of a "・"-separated list.
// If nothing is left, the trimmed input is returned.
func CleanArtist(artist string) string {
	cleaned := stripBrackets(artist)
	if first, _, ok := strings.Cut(cleaned, artistSeparator); ok {
		cleaned = strings.TrimSpace(first)
	}
	if cleaned != "" {
		return cleaned
	}
	return strings.TrimSpace(artist)
}

// phrase quotes s for the search field syntax, dropping embedded quotes.
func phrase(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, "") + `"`
}

// StrictQuery builds an exact-phrase title AND artist query.
func StrictQuery(title, artist string) string {
	return fmt.Sprintf("track:%s artist:%s", phrase(title), phrase(artist))
}

// LenientQuery builds a title-only query.
func LenientQuery(title string) string {
	return "track:" + phrase(title)
}

// BestMatch returns the first track whose name contains the title or is
// contained in it, compared with Unicode case folding. Returns nil if none
// qualifies.
func BestMatch(title string, tracks []Track) *Track {
	fold := cases.Fold()
	want := fold.String(strings.TrimSpace(title))
	if want == "" {
		return nil
	}

	for i := range tracks {
		name := fold.String(strings.TrimSpace(tracks[i].Name))
		if name == "" {
			continue
		}
		if strings.Contains(want, name) || strings.Contains(name, want) {
			return &tracks[i]
		}
	}
	return nil
}
