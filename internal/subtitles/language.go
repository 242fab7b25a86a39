// Package subtitles parses and writes ASS and SRT subtitle files and
// carries the text-level helpers the translator needs: language tag
// sets, style classification, and override-tag handling.
package subtitles

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/language"
)

// languageTags maps an ISO 639-1 primary tag to every string treated as
// equivalent when scanning filenames or container metadata.
var languageTags = map[string][]string{
	"en": {"en", "eng", "english"},
	"de": {"de", "deu", "ger", "german"},
	"fr": {"fr", "fra", "fre", "french"},
	"es": {"es", "spa", "spanish"},
	"it": {"it", "ita", "italian"},
	"pt": {"pt", "por", "portuguese"},
	"nl": {"nl", "nld", "dut", "dutch"},
	"pl": {"pl", "pol", "polish"},
	"ru": {"ru", "rus", "russian"},
	"sv": {"sv", "swe", "swedish"},
	"no": {"no", "nor", "norwegian"},
	"da": {"da", "dan", "danish"},
	"fi": {"fi", "fin", "finnish"},
	"cs": {"cs", "ces", "cze", "czech"},
	"hu": {"hu", "hun", "hungarian"},
	"el": {"el", "ell", "gre", "greek"},
	"tr": {"tr", "tur", "turkish"},
	"ar": {"ar", "ara", "arabic"},
	"he": {"he", "heb", "hebrew"},
	"ja": {"ja", "jpn", "japanese"},
	"zh": {"zh", "zho", "chi", "chinese"},
	"ko": {"ko", "kor", "korean"},
}

// LanguageSet returns every tag equivalent to lang. Unknown languages
// get a singleton set so matching still works.
func LanguageSet(lang string) []string {
	lang = strings.ToLower(lang)
	if tags, ok := languageTags[lang]; ok {
		return tags
	}
	return []string{lang}
}

// Normalize reduces an arbitrary language tag to its ISO 639-1 primary
// code: "eng", "en-US", and "English" all become "en". The alias table
// covers bibliographic codes and full names that BCP 47 parsing rejects;
// everything else goes through golang.org/x/text. Unknown tags come back
// lowercased unchanged.
func Normalize(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" {
		return ""
	}
	for primary, tags := range languageTags {
		for _, t := range tags {
			if tag == t {
				return primary
			}
		}
	}
	if t, err := language.Parse(tag); err == nil {
		if base, conf := t.Base(); conf >= language.High {
			return base.String()
		}
	}
	return tag
}

// MatchesLanguage reports whether tag and lang name the same language.
func MatchesLanguage(tag, lang string) bool {
	if tag == "" {
		return false
	}
	return Normalize(tag) == Normalize(lang)
}

// SubtitlePath builds the sibling subtitle path for a media file:
// <basename>.<lang>.<ext>.
func SubtitlePath(mediaPath, lang, ext string) string {
	base := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath))
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return base + "." + lang + ext
}

// FindAdjacent looks next to a media file for a subtitle in one of the
// language's tags with one of the given extensions, using the supplied
// existence check. Returns the first match.
func FindAdjacent(mediaPath, lang string, exts []string, exists func(string) bool) (string, bool) {
	base := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath))
	for _, tag := range LanguageSet(lang) {
		for _, ext := range exts {
			candidate := base + "." + tag + ext
			if exists(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}
