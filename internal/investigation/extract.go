package investigation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/anacreon-labs/factledger/internal/domain"
)

const (
	minSentenceLen  = 20
	maxSentenceLen  = 200
	maxFactSentence = 5
)

var factPattern = regexp.MustCompile(`(?i)(^|[\s,;])(` +
	`é|são|foi|era|estava|tem|possui|contém|inclui|vive|habita|mora|reside|` +
	`nasceu|morreu|criou|descobriu|conhecido|conhecida|famoso|famosa|importante|` +
	`is|are|was|were|has|have|contains|includes|lives|born|died|created|discovered|known|famous` +
	`)([\s,;.!?]|$)`)

type triplePattern struct {
	re *regexp.Regexp
	// relation overrides the matched verb when set.
	relation string
	objGroup int
}

var triplePatterns = []triplePattern{
	{re: regexp.MustCompile(`(?i)^(.+?)\s+(é|são|foi|era)\s+(.+)$`), objGroup: 3},
	{re: regexp.MustCompile(`(?i)^(.+?)\s+(is|are|was|were)\s+(.+)$`), objGroup: 3},
	{re: regexp.MustCompile(`(?i)^(.+?)\s+(tem|possui|contém|inclui)\s+(.+)$`), objGroup: 3},
	{re: regexp.MustCompile(`(?i)^(.+?)\s+(has|have|contains|includes)\s+(.+)$`), objGroup: 3},
	{re: regexp.MustCompile(`(?i)^(.+?)\s+(vive|mora|habita|reside)\s+(em|no|na)\s+(.+)$`), relation: "vive em", objGroup: 4},
	{re: regexp.MustCompile(`(?i)^(.+?)\s+(lives|resides)\s+(in)\s+(.+)$`), relation: "lives in", objGroup: 4},
}

// SplitSentences breaks text after '.', '!' or '?' when whitespace follows.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r != '.' && r != '!' && r != '?' || i >= len(text) {
			continue
		}
		next, _ := utf8.DecodeRuneInString(text[i:])
		if !unicode.IsSpace(next) {
			continue
		}
		if s := strings.TrimSpace(text[start:i]); s != "" {
			sentences = append(sentences, s)
		}
		start = i
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// ExtractFactSentences keeps at most five sentences of reasonable length
// that look like factual statements.
func ExtractFactSentences(text string) []string {
	var out []string
	for _, s := range SplitSentences(text) {
		n := utf8.RuneCountInString(s)
		if n < minSentenceLen || n > maxSentenceLen {
			continue
		}
		if !factPattern.MatchString(s) {
			continue
		}
		out = append(out, s)
		if len(out) == maxFactSentence {
			break
		}
	}
	return out
}

// ParseTriple reads "X é Y", "X tem Y", "X vive em Y" and their English
// forms.
func ParseTriple(sentence string) (domain.Triple, bool) {
	sentence = strings.TrimSpace(sentence)
	for _, p := range triplePatterns {
		m := p.re.FindStringSubmatch(sentence)
		if m == nil {
			continue
		}
		relation := p.relation
		if relation == "" {
			relation = strings.ToLower(m[2])
		}
		t := domain.Triple{
			Subject:  domain.CleanText(m[1]),
			Relation: relation,
			Object:   domain.CleanText(strings.TrimRight(m[p.objGroup], ".!? ")),
		}
		if t.Empty() {
			continue
		}
		return t, true
	}
	return domain.Triple{}, false
}
